package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/booksim/internal/domain"
	"github.com/alanyoungcy/booksim/internal/simulation"
)

// BookSource returns the latest book for a key.
type BookSource interface {
	Book(ctx context.Context, venue, symbol string) (domain.MarketData, error)
}

// SimulationService runs order simulations against live books and records
// each result.
type SimulationService struct {
	books  BookSource
	store  domain.SimulationStore
	bus    domain.SignalBus
	logger *slog.Logger
	now    func() time.Time
}

// NewSimulationService creates a SimulationService. store may be nil, in which
// case results are published but not persisted.
func NewSimulationService(
	books BookSource,
	store domain.SimulationStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *SimulationService {
	return &SimulationService{
		books:  books,
		store:  store,
		bus:    bus,
		logger: logger.With(slog.String("component", "simulation_service")),
		now:    time.Now,
	}
}

// Simulate validates order, runs it against the current book of its key and
// returns the recorded result.
func (s *SimulationService) Simulate(ctx context.Context, order domain.SimulatedOrder) (domain.SimulationRecord, error) {
	if err := simulation.Validate(order); err != nil {
		return domain.SimulationRecord{}, err
	}

	md, err := s.books.Book(ctx, order.Venue, order.Symbol)
	if err != nil {
		return domain.SimulationRecord{}, fmt.Errorf("simulation_service: %w", err)
	}

	placement, err := simulation.Simulate(order, md.OrderBook)
	if err != nil {
		return domain.SimulationRecord{}, err
	}

	rec := domain.SimulationRecord{
		ID:                  uuid.NewString(),
		Order:               order,
		Placement:           placement,
		Spread:              simulation.Spread(md.OrderBook),
		Imbalance:           simulation.Imbalance(md.OrderBook),
		SignificantSlippage: simulation.SignificantSlippage(placement),
		BookTimestamp:       md.OrderBook.Timestamp,
		CreatedAt:           s.now().UTC(),
	}
	if bid, ok := md.OrderBook.BestBid(); ok {
		rec.BestBid = bid.Price
	}
	if ask, ok := md.OrderBook.BestAsk(); ok {
		rec.BestAsk = ask.Price
	}

	if rec.SignificantSlippage {
		s.logger.InfoContext(ctx, "significant slippage",
			slog.String("venue", order.Venue),
			slog.String("symbol", order.Symbol),
			slog.Float64("slippage", placement.Slippage),
		)
	}

	if s.store != nil {
		if err := s.store.Insert(ctx, rec); err != nil {
			s.logger.WarnContext(ctx, "persist simulation failed",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if payload, err := json.Marshal(rec); err == nil {
		if pubErr := s.bus.Publish(ctx, domain.ChannelSimulation, payload); pubErr != nil {
			s.logger.WarnContext(ctx, "publish simulation failed", slog.String("error", pubErr.Error()))
		}
	}
	return rec, nil
}

// List returns recorded simulations, newest first. Without a store it
// returns an empty list.
func (s *SimulationService) List(ctx context.Context, opts domain.ListOpts) ([]domain.SimulationRecord, error) {
	if s.store == nil {
		return []domain.SimulationRecord{}, nil
	}
	recs, err := s.store.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("simulation_service: list: %w", err)
	}
	return recs, nil
}

// Get returns one recorded simulation.
func (s *SimulationService) Get(ctx context.Context, id string) (domain.SimulationRecord, error) {
	if s.store == nil {
		return domain.SimulationRecord{}, fmt.Errorf("simulation_service: %s: %w", id, domain.ErrNotFound)
	}
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.SimulationRecord{}, fmt.Errorf("simulation_service: get %s: %w", id, err)
	}
	return rec, nil
}
