package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"jewelry-catalog/pkg/clock"
	"jewelry-catalog/pkg/fetcher"
	"jewelry-catalog/pkg/oracle"
)

type fixedPrice struct {
	amount float64
	calls  atomic.Int32
}

func (p *fixedPrice) UnitPrice(ctx context.Context) float64 {
	p.calls.Add(1)
	return p.amount
}

const sampleCatalog = `[
  {"name": "Engagement Ring 1", "popularityScore": 0.85, "weight": 2.1,
   "images": {"yellow": "ring1-y.jpg", "rose": "ring1-r.jpg", "white": "ring1-w.jpg"}},
  {"name": "Engagement Ring 2", "popularityScore": 0.51, "weight": 3.4,
   "images": {"yellow": "ring2-y.jpg"}}
]`

func TestBuild_EmptyCatalogSkipsPrice(t *testing.T) {
	p := &fixedPrice{amount: 65}

	got := Build(context.Background(), nil, p)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", got)
	}
	if p.calls.Load() != 0 {
		t.Errorf("expected no unit price lookup, got %d", p.calls.Load())
	}
}

func TestBuild_SinglePriceLookupPerBatch(t *testing.T) {
	items, err := Decode([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	p := &fixedPrice{amount: 65}

	got := Build(context.Background(), items, p)

	if p.calls.Load() != 1 {
		t.Errorf("expected exactly one unit price lookup, got %d", p.calls.Load())
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 priced items, got %d", len(got))
	}
	// (0.85 + 1) * 2.1 * 65 = 252.525
	if got[0].Price != 252.53 {
		t.Errorf("expected price 252.53, got %v", got[0].Price)
	}
	if got[0].PopularityStars != 4.3 {
		t.Errorf("expected 4.3 stars, got %v", got[0].PopularityStars)
	}
	if got[1].Name != "Engagement Ring 2" || got[1].Images["yellow"] != "ring2-y.jpg" {
		t.Errorf("source fields not preserved: %+v", got[1])
	}
}

type flakyFetcher struct {
	calls atomic.Int32
}

// FetchSpot succeeds once and then fails, with a different amount each time.
func (f *flakyFetcher) FetchSpot(ctx context.Context) (fetcher.Spot, error) {
	n := f.calls.Add(1)
	if n > 1 {
		return fetcher.Spot{}, errors.New("rate limited")
	}
	return fetcher.Spot{Amount: 60 + float64(n), Field: "price_gram_24k"}, nil
}

func TestBuild_ConsistentWithinTTL(t *testing.T) {
	items, err := Decode([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	mc := clock.NewMock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	o := oracle.New(&flakyFetcher{}, oracle.Config{TTL: 15 * time.Minute}, oracle.WithClock(mc))

	first := Build(context.Background(), items, o)
	mc.Add(10 * time.Minute)
	second := Build(context.Background(), items, o)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical prices within one TTL window:\n%+v\n%+v", first, second)
	}
}

func TestFileSource_Items(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.json")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0644); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	items, err := FileSource{Path: path}.Items(context.Background())
	if err != nil {
		t.Fatalf("Items returned error: %v", err)
	}
	if len(items) != 2 || items[1].Weight != 3.4 {
		t.Errorf("unexpected items %+v", items)
	}
}

func TestFileSource_Unreadable(t *testing.T) {
	dir := t.TempDir()
	malformed := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(malformed, []byte(`{"name": "not an array"}`), 0644); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing.json")},
		{"malformed file", malformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FileSource{Path: tt.path}.Items(context.Background())
			if !errors.Is(err, ErrCatalogUnreadable) {
				t.Errorf("expected ErrCatalogUnreadable, got %v", err)
			}
		})
	}
}

type failingSource struct{}

func (failingSource) Items(ctx context.Context) ([]Item, error) {
	return nil, ErrCatalogUnreadable
}

func TestService_PricedCatalog(t *testing.T) {
	p := &fixedPrice{amount: 100}
	dir := t.TempDir()
	path := filepath.Join(dir, "products.json")
	if err := os.WriteFile(path, []byte(`[{"name":"Band","popularityScore":0,"weight":1}]`), 0644); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	svc := NewService(FileSource{Path: path}, p, zerolog.Nop())
	got, err := svc.PricedCatalog(context.Background())
	if err != nil {
		t.Fatalf("PricedCatalog returned error: %v", err)
	}
	if len(got) != 1 || got[0].Price != 100.00 || got[0].PopularityStars != 0 {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestService_PricedCatalogFailsWhole(t *testing.T) {
	p := &fixedPrice{amount: 100}
	svc := NewService(failingSource{}, p, zerolog.Nop())

	got, err := svc.PricedCatalog(context.Background())
	if !errors.Is(err, ErrCatalogUnreadable) {
		t.Fatalf("expected ErrCatalogUnreadable, got %v", err)
	}
	if got != nil {
		t.Errorf("expected no partial result, got %+v", got)
	}
	if p.calls.Load() != 0 {
		t.Error("expected no price lookup when the catalog is unreadable")
	}
}
