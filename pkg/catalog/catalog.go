// Package catalog prices the product catalog against the current gold price.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"jewelry-catalog/pkg/pricing"
)

// ErrCatalogUnreadable is returned when the catalog is missing or malformed.
var ErrCatalogUnreadable = errors.New("catalog unreadable")

// Item is one product as stored in the catalog file.
type Item struct {
	Name            string            `json:"name"`
	PopularityScore float64           `json:"popularityScore"`
	Weight          float64           `json:"weight"`
	Images          map[string]string `json:"images"`
}

// PricedItem is an Item with its display price and star rating.
type PricedItem struct {
	Item
	Price           float64 `json:"price"`
	PopularityStars float64 `json:"popularityScoreOutOf5"`
}

// Source yields the catalog items.
type Source interface {
	Items(ctx context.Context) ([]Item, error)
}

// PriceSource yields the current unit price. It must not fail.
type PriceSource interface {
	UnitPrice(ctx context.Context) float64
}

// FileSource reads the catalog from a JSON file on every call.
type FileSource struct {
	Path string
}

// Items reads and decodes the file.
func (s FileSource) Items(ctx context.Context) ([]Item, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnreadable, err)
	}
	return Decode(data)
}

// Decode parses a catalog document: a JSON array of items.
func Decode(data []byte) ([]Item, error) {
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnreadable, err)
	}
	return items, nil
}

// Build prices every item against a single unit price, so all items in one
// result agree with each other. An empty catalog never asks for a price.
func Build(ctx context.Context, items []Item, prices PriceSource) []PricedItem {
	priced := make([]PricedItem, 0, len(items))
	if len(items) == 0 {
		return priced
	}

	unitPrice := prices.UnitPrice(ctx)
	for _, item := range items {
		priced = append(priced, PricedItem{
			Item:            item,
			Price:           pricing.ComputePrice(item.PopularityScore, item.Weight, unitPrice),
			PopularityStars: pricing.ComputeStarRating(item.PopularityScore),
		})
	}
	return priced
}

// Service loads the catalog and prices it.
type Service struct {
	source Source
	prices PriceSource
	logger zerolog.Logger
}

// NewService constructs a Service.
func NewService(source Source, prices PriceSource, logger zerolog.Logger) *Service {
	return &Service{
		source: source,
		prices: prices,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

// PricedCatalog returns the whole priced catalog, or an error wrapping
// ErrCatalogUnreadable. There are no partial results.
func (s *Service) PricedCatalog(ctx context.Context) ([]PricedItem, error) {
	items, err := s.source.Items(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load catalog")
		return nil, err
	}
	return Build(ctx, items, s.prices), nil
}
