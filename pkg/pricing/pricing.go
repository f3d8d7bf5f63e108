// Package pricing turns a catalog item's popularity and weight into the
// values shown on the storefront.
//
// All rounding is half away from zero (half-up for the non-negative values a
// catalog produces) and is done on the decimal value, so 316.875 always shows
// as 316.88 regardless of how the float happens to be stored.
package pricing

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	pricePlaces = 2
	starPlaces  = 1

	// MaxStars is the top of the display rating scale.
	MaxStars = 5
)

var one = decimal.NewFromInt(1)

// ComputePrice returns (popularity + 1) * weight * unitPrice in currency
// units, rounded to cents. popularity is expected in [0,1] but is not clamped.
func ComputePrice(popularity, weight, unitPrice float64) float64 {
	if !finite(popularity, weight, unitPrice) {
		return roundFloat((popularity+1)*weight*unitPrice, pricePlaces)
	}
	price := decimal.NewFromFloat(popularity).Add(one).
		Mul(decimal.NewFromFloat(weight)).
		Mul(decimal.NewFromFloat(unitPrice))
	return price.Round(pricePlaces).InexactFloat64()
}

// ComputeStarRating maps a [0,1] popularity score onto a five star scale with
// one decimal place.
func ComputeStarRating(popularity float64) float64 {
	if !finite(popularity) {
		return roundFloat(popularity*MaxStars, starPlaces)
	}
	rating := decimal.NewFromFloat(popularity).Mul(decimal.NewFromInt(MaxStars))
	return rating.Round(starPlaces).InexactFloat64()
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// roundFloat only sees NaN and Inf, which decimal cannot represent.
func roundFloat(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
