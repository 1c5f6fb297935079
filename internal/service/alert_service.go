package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/booksim/internal/domain"
	"github.com/alanyoungcy/booksim/internal/notify"
)

// AlertService watches the signal bus and raises operator alerts for feeds
// that gave up reconnecting and for simulations with significant slippage.
type AlertService struct {
	bus      domain.SignalBus
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewAlertService creates an AlertService.
func NewAlertService(bus domain.SignalBus, notifier *notify.Notifier, logger *slog.Logger) *AlertService {
	return &AlertService{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "alert_service")),
	}
}

// Run consumes the feed status and simulation channels until ctx is done.
func (s *AlertService) Run(ctx context.Context) error {
	statuses, err := s.bus.Subscribe(ctx, domain.ChannelFeedStatus)
	if err != nil {
		return fmt.Errorf("alert_service: subscribe %s: %w", domain.ChannelFeedStatus, err)
	}
	sims, err := s.bus.Subscribe(ctx, domain.ChannelSimulation)
	if err != nil {
		return fmt.Errorf("alert_service: subscribe %s: %w", domain.ChannelSimulation, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consume(ctx, statuses, s.handleStatus) })
	g.Go(func() error { return consume(ctx, sims, s.handleSimulation) })
	return g.Wait()
}

func consume(ctx context.Context, ch <-chan []byte, fn func(context.Context, []byte)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return ctx.Err()
			}
			fn(ctx, payload)
		}
	}
}

func (s *AlertService) handleStatus(ctx context.Context, payload []byte) {
	var st domain.FeedStatus
	if err := json.Unmarshal(payload, &st); err != nil {
		return
	}
	if st.State != domain.FeedStateReconnectExhausted {
		return
	}
	msg := fmt.Sprintf("%s:%s stopped after %d reconnect attempts", st.Venue, st.Symbol, st.Attempt)
	if st.LastError != "" {
		msg += ": " + st.LastError
	}
	s.send(ctx, notify.EventReconnectExhausted, "Feed disconnected", msg)
}

func (s *AlertService) handleSimulation(ctx context.Context, payload []byte) {
	var rec domain.SimulationRecord
	if err := json.Unmarshal(payload, &rec); err != nil || !rec.SignificantSlippage {
		return
	}
	msg := fmt.Sprintf("%s %s %g %s:%s slippage %.2f%% (fill %.0f%%)",
		rec.Order.Side, rec.Order.OrderType, rec.Order.Quantity,
		rec.Order.Venue, rec.Order.Symbol,
		rec.Placement.Slippage, rec.Placement.FillPercentage,
	)
	s.send(ctx, notify.EventSignificantSlippage, "Significant slippage", msg)
}

func (s *AlertService) send(ctx context.Context, event, title, msg string) {
	if err := s.notifier.Notify(ctx, event, title, msg); err != nil {
		s.logger.WarnContext(ctx, "alert delivery failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
