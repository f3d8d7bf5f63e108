package catalog

import (
	"fmt"
	"strings"
)

// FormatText renders priced items as a plain text listing, one product per
// two lines.
func FormatText(items []PricedItem) string {
	if len(items) == 0 {
		return "No products.\n"
	}
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "%s\n  $%.2f  %.1f/5  %.2fg\n", it.Name, it.Price, it.PopularityStars, it.Weight)
	}
	return b.String()
}
