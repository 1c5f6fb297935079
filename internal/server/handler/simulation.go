package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/booksim/internal/domain"
)

// SimulationService defines what the simulation handler needs from the
// service layer.
type SimulationService interface {
	Simulate(ctx context.Context, order domain.SimulatedOrder) (domain.SimulationRecord, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.SimulationRecord, error)
	Get(ctx context.Context, id string) (domain.SimulationRecord, error)
}

// SimulationHandler runs and lists order simulations.
type SimulationHandler struct {
	sims   SimulationService
	logger *slog.Logger
}

// NewSimulationHandler creates a SimulationHandler.
func NewSimulationHandler(sims SimulationService, logger *slog.Logger) *SimulationHandler {
	return &SimulationHandler{sims: sims, logger: logger}
}

// Simulate estimates a hypothetical order against the current book.
// POST /api/simulate
func (h *SimulationHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var order domain.SimulatedOrder
	if err := decodeJSON(w, r, &order); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if order.Timing == "" {
		order.Timing = domain.TimingImmediate
	}

	rec, err := h.sims.Simulate(r.Context(), order)
	if err != nil {
		status := statusFor(err)
		switch {
		case errors.Is(err, domain.ErrInvalidOrder):
			writeError(w, status, err.Error())
		case status == http.StatusNotFound:
			writeError(w, status, "no book for "+order.Venue+":"+order.Symbol)
		default:
			h.logger.ErrorContext(r.Context(), "handler: simulate failed",
				slog.String("venue", order.Venue),
				slog.String("symbol", order.Symbol),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "simulation failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListSimulations returns recorded simulations, newest first.
// GET /api/simulations?limit=50&offset=0
func (h *SimulationHandler) ListSimulations(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	recs, err := h.sims.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list simulations failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list simulations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"simulations": recs,
		"limit":       opts.Limit,
		"offset":      opts.Offset,
	})
}

// GetSimulation returns one recorded simulation.
// GET /api/simulations/{id}
func (h *SimulationHandler) GetSimulation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.sims.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "simulation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load simulation")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
