// Package oracle turns an unreliable, rate limited spot price feed into a unit
// price that is always available.
//
// A live quote is reused for the TTL. After that the next lookup fetches again;
// if the fetch fails the last quote is served as is (stale), and if there has
// never been a quote the fixed backup amount is served. Neither fallback
// touches the cached quote, so every lookup after expiry tries the provider
// again.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"jewelry-catalog/pkg/clock"
	"jewelry-catalog/pkg/fetcher"
	"jewelry-catalog/pkg/metrics"
)

// SpotFetcher is anything that can fetch the current spot price per gram.
type SpotFetcher interface {
	FetchSpot(ctx context.Context) (fetcher.Spot, error)
}

// QuoteStore keeps the last live quote outside the process.
// LoadQuote returns nil, nil when nothing is stored.
type QuoteStore interface {
	LoadQuote(ctx context.Context) (*Quote, error)
	SaveQuote(ctx context.Context, q *Quote) error
}

// ErrInvalidQuote is returned for a fetched amount that is not a positive
// finite number.
var ErrInvalidQuote = errors.New("quote amount must be positive")

// Quote is a price per gram and the instant it was obtained. Quotes are never
// mutated; a refresh replaces the pointer.
type Quote struct {
	ID        uuid.UUID `json:"id"`
	Amount    float64   `json:"amount"`
	Field     string    `json:"field"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Source names the path that produced a unit price.
type Source string

const (
	SourceCacheHit Source = "cache_hit"
	SourceLive     Source = "live"
	SourceStale    Source = "stale"
	SourceBackup   Source = "backup"
)

// Reading is the result of a lookup. Quote is nil for SourceBackup.
type Reading struct {
	Amount float64
	Source Source
	Quote  *Quote
}

// Defaults for Config.
const (
	DefaultTTL          = 15 * time.Minute
	DefaultBackupAmount = 65.0
	DefaultFetchTimeout = 5 * time.Second
	storeTimeout        = 2 * time.Second
	refreshKey          = "spot"
)

// Config holds the fixed oracle settings.
type Config struct {
	TTL          time.Duration
	BackupAmount float64
	// FetchTimeout bounds a whole refresh, retries included.
	FetchTimeout time.Duration
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithClock sets the clock used for quote timestamps and expiry.
func WithClock(c clock.Clock) Option {
	return func(o *Oracle) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Oracle) { o.logger = l.With().Str("component", "oracle").Logger() }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Oracle) { o.metrics = m }
}

// WithStore persists live quotes to s and lets Warm seed from it.
func WithStore(s QuoteStore) Option {
	return func(o *Oracle) { o.store = s }
}

// Oracle holds the last quote and hands out unit prices.
type Oracle struct {
	fetcher SpotFetcher
	store   QuoteStore
	clock   clock.Clock
	logger  zerolog.Logger
	metrics *metrics.Metrics
	cfg     Config

	mu    sync.RWMutex
	last  *Quote
	group singleflight.Group
}

// New constructs an Oracle. Zero Config fields take the defaults.
func New(f SpotFetcher, cfg Config, opts ...Option) *Oracle {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.BackupAmount <= 0 {
		cfg.BackupAmount = DefaultBackupAmount
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	o := &Oracle{
		fetcher: f,
		clock:   clock.New(),
		logger:  zerolog.Nop(),
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// UnitPrice returns the price per gram to use right now. It never fails.
func (o *Oracle) UnitPrice(ctx context.Context) float64 {
	return o.Reading(ctx).Amount
}

// Reading is UnitPrice plus the path that produced the amount.
func (o *Oracle) Reading(ctx context.Context) Reading {
	now := o.clock.Now()
	if q := o.fresh(now); q != nil {
		left := o.cfg.TTL - now.Sub(q.FetchedAt)
		o.logger.Debug().
			Float64("amount", q.Amount).
			Int("minutes_left", int(math.Ceil(left.Minutes()))).
			Msg("Cache hit")
		return o.answer(Reading{Amount: q.Amount, Source: SourceCacheHit, Quote: q})
	}

	q, reused, err := o.refresh(ctx)
	if err == nil {
		if reused {
			return o.answer(Reading{Amount: q.Amount, Source: SourceCacheHit, Quote: q})
		}
		return o.answer(Reading{Amount: q.Amount, Source: SourceLive, Quote: q})
	}

	if last := o.Last(); last != nil {
		o.logger.Warn().Err(err).
			Float64("amount", last.Amount).
			Time("fetched_at", last.FetchedAt).
			Msg("Live fetch failed, using last cached price")
		return o.answer(Reading{Amount: last.Amount, Source: SourceStale, Quote: last})
	}

	o.logger.Warn().Err(err).
		Float64("amount", o.cfg.BackupAmount).
		Msg("Live fetch failed and nothing cached, using backup price")
	return o.answer(Reading{Amount: o.cfg.BackupAmount, Source: SourceBackup})
}

// Last returns the last live quote, or nil if there has never been one.
func (o *Oracle) Last() *Quote {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.last
}

// Warm seeds the last quote from the store, if one is configured. The loaded
// quote keeps its original timestamp, so an old one only serves the stale
// tier.
func (o *Oracle) Warm(ctx context.Context) error {
	if o.store == nil {
		return nil
	}
	q, err := o.store.LoadQuote(ctx)
	if err != nil {
		return fmt.Errorf("load quote: %w", err)
	}
	if q == nil || !valid(q.Amount) {
		return nil
	}

	o.mu.Lock()
	if o.last == nil || q.FetchedAt.After(o.last.FetchedAt) {
		o.last = q
	}
	o.mu.Unlock()

	o.logger.Info().
		Str("quote_id", q.ID.String()).
		Float64("amount", q.Amount).
		Time("fetched_at", q.FetchedAt).
		Msg("Seeded last quote from store")
	return nil
}

func (o *Oracle) fresh(now time.Time) *Quote {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last != nil && now.Sub(o.last.FetchedAt) < o.cfg.TTL {
		return o.last
	}
	return nil
}

type refreshResult struct {
	quote  *Quote
	reused bool
}

// refresh collapses concurrent refreshes into one upstream call. reused is
// true when another caller refreshed between our expiry check and the flight.
func (o *Oracle) refresh(ctx context.Context) (*Quote, bool, error) {
	ch := o.group.DoChan(refreshKey, func() (interface{}, error) {
		if q := o.fresh(o.clock.Now()); q != nil {
			return refreshResult{quote: q, reused: true}, nil
		}
		q, err := o.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		return refreshResult{quote: q}, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		r := res.Val.(refreshResult)
		return r.quote, r.reused, nil
	}
}

func (o *Oracle) fetch(ctx context.Context) (*Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	defer cancel()

	o.logger.Info().Msg("Fetching live gold price")
	start := time.Now()
	spot, err := o.fetcher.FetchSpot(ctx)
	if err == nil && !valid(spot.Amount) {
		err = fmt.Errorf("%w: got %v", ErrInvalidQuote, spot.Amount)
	}
	o.metrics.RecordFetch(err == nil, time.Since(start).Seconds())
	if err != nil {
		o.logger.Error().Err(err).Msg("Gold price fetch failed")
		return nil, err
	}

	q := &Quote{
		ID:        uuid.New(),
		Amount:    spot.Amount,
		Field:     spot.Field,
		FetchedAt: o.clock.Now(),
	}

	o.mu.Lock()
	o.last = q
	o.mu.Unlock()

	o.metrics.SetUnitPrice(q.Amount)
	o.logger.Info().
		Str("quote_id", q.ID.String()).
		Float64("amount", q.Amount).
		Str("field", q.Field).
		Msg("Live gold price cached")

	o.save(q)
	return q, nil
}

func (o *Oracle) save(q *Quote) {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := o.store.SaveQuote(ctx, q); err != nil {
		o.logger.Warn().Err(err).Str("quote_id", q.ID.String()).Msg("Failed to persist quote")
	}
}

func (o *Oracle) answer(r Reading) Reading {
	o.metrics.RecordLookup(string(r.Source))
	return r
}

func valid(amount float64) bool {
	return amount > 0 && !math.IsInf(amount, 0) && !math.IsNaN(amount)
}
