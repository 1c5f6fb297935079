package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/booksim/internal/service"
)

// BookHandler serves book snapshots with their top-of-book metrics.
type BookHandler struct {
	md     MarketDataService
	logger *slog.Logger
}

// NewBookHandler creates a BookHandler.
func NewBookHandler(md MarketDataService, logger *slog.Logger) *BookHandler {
	return &BookHandler{md: md, logger: logger}
}

// ListBooks returns every streamed book.
// GET /api/books
func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"books": h.md.Books()})
}

// GetBook returns the latest book for one key.
// GET /api/books/{venue}/{symbol}
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	venue, symbol := r.PathValue("venue"), r.PathValue("symbol")

	md, err := h.md.Book(r.Context(), venue, symbol)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: get book failed",
				slog.String("venue", venue),
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
			writeError(w, status, "failed to load book")
			return
		}
		writeError(w, status, "no book for "+venue+":"+symbol)
		return
	}
	writeJSON(w, http.StatusOK, service.Summarize(md))
}
