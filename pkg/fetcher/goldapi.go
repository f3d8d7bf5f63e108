// Package fetcher talks to the upstream gold spot price provider.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Upstream failures. Callers treat every error from FetchSpot as the provider
// being unavailable.
var (
	ErrNoUsableField = errors.New("no usable fineness field in payload")
	ErrNoEndpoints   = errors.New("no endpoints configured")
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	StatusCode int
	Endpoint   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.StatusCode)
}

// Spot is a per-gram price together with the fineness field it came from.
type Spot struct {
	Amount float64
	Field  string
}

// Defaults used when Config leaves a value unset.
const (
	DefaultEndpoint = "https://www.goldapi.io/api/XAU/USD"
	tokenHeader     = "x-access-token"
	requestTO       = 5 * time.Second
	baseBackoff     = 500 * time.Millisecond
	maxBodyBytes    = 1 << 20
)

// DefaultFields lists the fineness fields in preference order: 24k first,
// 22k when 24k is absent.
var DefaultFields = []string{"price_gram_24k", "price_gram_22k"}

// Config configures a GoldAPIFetcher.
type Config struct {
	// Endpoints are tried in order; later ones act as mirrors.
	Endpoints   []string
	AccessToken string
	// Fields are the fineness fields to read, most preferred first.
	Fields []string
	// Timeout bounds each HTTP attempt.
	Timeout time.Duration
	// MaxAttempts per endpoint. Only 429 and transport errors are retried.
	MaxAttempts int
	BaseBackoff time.Duration
	Client      *http.Client
}

// GoldAPIFetcher fetches the spot price per gram from a GoldAPI compatible
// provider.
type GoldAPIFetcher struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger
}

// NewGoldAPIFetcher constructs a GoldAPIFetcher, filling in defaults.
func NewGoldAPIFetcher(cfg Config, logger zerolog.Logger) *GoldAPIFetcher {
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = []string{DefaultEndpoint}
	}
	if len(cfg.Fields) == 0 {
		cfg.Fields = DefaultFields
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = requestTO
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = baseBackoff
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &GoldAPIFetcher{
		cfg:    cfg,
		client: client,
		logger: logger.With().Str("component", "fetcher").Logger(),
	}
}

// FetchSpot tries each endpoint in turn. On 429 or transport errors it
// retries up to MaxAttempts with exponential backoff; any other non-2xx status
// fails over to the next endpoint straight away.
func (f *GoldAPIFetcher) FetchSpot(ctx context.Context) (Spot, error) {
	if len(f.cfg.Endpoints) == 0 {
		return Spot{}, ErrNoEndpoints
	}

	var lastErr error
	for _, endpoint := range f.cfg.Endpoints {
		backoff := f.cfg.BaseBackoff

		for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
			spot, status, err := f.try(ctx, endpoint)
			if err == nil {
				return spot, nil
			}
			lastErr = err

			if ctx.Err() != nil {
				return Spot{}, fmt.Errorf("fetch spot: %w", ctx.Err())
			}
			if errors.Is(err, ErrNoUsableField) {
				return Spot{}, err
			}

			retryable := status == 0 || status == http.StatusTooManyRequests
			if !retryable {
				f.logger.Error().Err(err).Int("status", status).Str("endpoint", endpoint).Msg("Upstream rejected request")
				break
			}
			f.logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).Str("endpoint", endpoint).Msg("Upstream request failed")
			if attempt < f.cfg.MaxAttempts {
				if err := sleep(ctx, backoff); err != nil {
					return Spot{}, fmt.Errorf("fetch spot: %w", err)
				}
				backoff *= 2
			}
		}
	}

	return Spot{}, fmt.Errorf("all endpoints failed: %w", lastErr)
}

// try performs a single request. status is 0 when no response was received.
func (f *GoldAPIFetcher) try(ctx context.Context, endpoint string) (Spot, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Spot{}, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(tokenHeader, f.cfg.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Spot{}, 0, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Spot{}, 0, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Spot{}, resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Endpoint: endpoint}
	}

	spot, ok := ExtractFineness(body, f.cfg.Fields)
	if !ok {
		return Spot{}, resp.StatusCode, fmt.Errorf("%s: %w", endpoint, ErrNoUsableField)
	}
	return spot, resp.StatusCode, nil
}

// ExtractFineness returns the first field in fields that holds a positive
// number (or numeric string), tagged with the field name. ok is false when no
// field is usable.
func ExtractFineness(body []byte, fields []string) (spot Spot, ok bool) {
	if !gjson.ValidBytes(body) {
		return Spot{}, false
	}
	for _, field := range fields {
		value := gjson.GetBytes(body, field)
		if !value.Exists() {
			continue
		}

		var amount float64
		switch value.Type {
		case gjson.Number:
			amount = value.Float()
		case gjson.String:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(value.Str), 64)
			if err != nil {
				continue
			}
			amount = parsed
		default:
			continue
		}

		if amount > 0 && !math.IsInf(amount, 0) && !math.IsNaN(amount) {
			return Spot{Amount: amount, Field: field}, true
		}
	}
	return Spot{}, false
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
