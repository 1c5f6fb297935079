package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/booksim/internal/domain"
)

// defaultBookTTL expires mirrored books whose feed went quiet.
const defaultBookTTL = 5 * time.Minute

// BookCache implements domain.BookCache by storing each MarketData as a JSON
// string under book:{venue}:{symbol}.
type BookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	ttl := c.bookTTL
	if ttl <= 0 {
		ttl = defaultBookTTL
	}
	return &BookCache{rdb: c.rdb, ttl: ttl}
}

func bookKey(venue, symbol string) string { return "book:" + venue + ":" + symbol }

// SetMarketData replaces the mirrored book for md's key.
func (bc *BookCache) SetMarketData(ctx context.Context, md domain.MarketData) error {
	data, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("redis: marshal book %s: %w", md.Key(), err)
	}

	if err := bc.rdb.Set(ctx, bookKey(md.Venue, md.Symbol), data, bc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set book %s: %w", md.Key(), err)
	}
	return nil
}

// GetMarketData returns the mirrored book, or domain.ErrNotFound.
func (bc *BookCache) GetMarketData(ctx context.Context, venue, symbol string) (domain.MarketData, error) {
	data, err := bc.rdb.Get(ctx, bookKey(venue, symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketData{}, fmt.Errorf("redis: book %s:%s: %w", venue, symbol, domain.ErrNotFound)
		}
		return domain.MarketData{}, fmt.Errorf("redis: get book %s:%s: %w", venue, symbol, err)
	}

	var md domain.MarketData
	if err := json.Unmarshal(data, &md); err != nil {
		return domain.MarketData{}, fmt.Errorf("redis: decode book %s:%s: %w", venue, symbol, err)
	}
	return md, nil
}

// Delete drops the mirrored book for (venue, symbol).
func (bc *BookCache) Delete(ctx context.Context, venue, symbol string) error {
	if err := bc.rdb.Del(ctx, bookKey(venue, symbol)).Err(); err != nil {
		return fmt.Errorf("redis: delete book %s:%s: %w", venue, symbol, err)
	}
	return nil
}

var _ domain.BookCache = (*BookCache)(nil)
