package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/booksim/internal/domain"
)

// maxListLimit caps a single List page.
const maxListLimit = 500

// SimulationStore implements domain.SimulationStore using PostgreSQL.
type SimulationStore struct {
	pool *pgxpool.Pool
}

// NewSimulationStore creates a SimulationStore backed by the given pool.
func NewSimulationStore(pool *pgxpool.Pool) *SimulationStore {
	return &SimulationStore{pool: pool}
}

// Insert records one simulation.
func (s *SimulationStore) Insert(ctx context.Context, rec domain.SimulationRecord) error {
	const query = `
		INSERT INTO simulations (
			id, venue, symbol, order_type, side, price, quantity, timing,
			position, fill_percentage, market_impact, slippage, time_to_fill,
			best_bid, best_ask, spread, imbalance, significant_slippage,
			book_timestamp, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18,
			$19, $20
		)`

	var bookTS *time.Time
	if !rec.BookTimestamp.IsZero() {
		bookTS = &rec.BookTimestamp
	}

	o, p := rec.Order, rec.Placement
	_, err := s.pool.Exec(ctx, query,
		rec.ID, o.Venue, o.Symbol, string(o.OrderType), string(o.Side), o.Price, o.Quantity, string(o.Timing),
		p.Position, p.FillPercentage, p.MarketImpact, p.Slippage, p.TimeToFill,
		rec.BestBid, rec.BestAsk, rec.Spread, rec.Imbalance, rec.SignificantSlippage,
		bookTS, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert simulation %s: %w", rec.ID, err)
	}
	return nil
}

const simulationSelectCols = `id, venue, symbol, order_type, side, price, quantity, timing,
	position, fill_percentage, market_impact, slippage, time_to_fill,
	best_bid, best_ask, spread, imbalance, significant_slippage,
	book_timestamp, created_at`

func scanSimulation(scanner interface{ Scan(dest ...any) error }) (domain.SimulationRecord, error) {
	var rec domain.SimulationRecord
	var orderType, side, timing string
	var bookTS *time.Time

	o, p := &rec.Order, &rec.Placement
	err := scanner.Scan(
		&rec.ID, &o.Venue, &o.Symbol, &orderType, &side, &o.Price, &o.Quantity, &timing,
		&p.Position, &p.FillPercentage, &p.MarketImpact, &p.Slippage, &p.TimeToFill,
		&rec.BestBid, &rec.BestAsk, &rec.Spread, &rec.Imbalance, &rec.SignificantSlippage,
		&bookTS, &rec.CreatedAt,
	)
	if err != nil {
		return domain.SimulationRecord{}, err
	}
	o.OrderType = domain.OrderType(orderType)
	o.Side = domain.OrderSide(side)
	o.Timing = domain.OrderTiming(timing)
	if bookTS != nil {
		rec.BookTimestamp = *bookTS
	}
	return rec, nil
}

// GetByID returns one simulation, or domain.ErrNotFound.
func (s *SimulationStore) GetByID(ctx context.Context, id string) (domain.SimulationRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+simulationSelectCols+` FROM simulations WHERE id = $1`, id)
	rec, err := scanSimulation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SimulationRecord{}, domain.ErrNotFound
		}
		return domain.SimulationRecord{}, fmt.Errorf("postgres: get simulation %s: %w", id, err)
	}
	return rec, nil
}

// List returns simulations newest first.
func (s *SimulationStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.SimulationRecord, error) {
	query, args := listQuery(opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list simulations: %w", err)
	}
	defer rows.Close()

	recs := make([]domain.SimulationRecord, 0)
	for rows.Next() {
		rec, err := scanSimulation(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan simulation: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list simulations: %w", err)
	}
	return recs, nil
}

func listQuery(opts domain.ListOpts) (string, []any) {
	query := `SELECT ` + simulationSelectCols + ` FROM simulations WHERE TRUE`
	var args []any
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)
	argIdx++

	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}

var _ domain.SimulationStore = (*SimulationStore)(nil)
