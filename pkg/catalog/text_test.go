package catalog

import "testing"

func TestFormatText(t *testing.T) {
	tests := []struct {
		name  string
		items []PricedItem
		want  string
	}{
		{
			name:  "empty",
			items: nil,
			want:  "No products.\n",
		},
		{
			name: "two items",
			items: []PricedItem{
				{Item: Item{Name: "Ring", Weight: 2.1}, Price: 252.53, PopularityStars: 4.3},
				{Item: Item{Name: "Band", Weight: 1}, Price: 30, PopularityStars: 0},
			},
			want: "Ring\n  $252.53  4.3/5  2.10g\nBand\n  $30.00  0.0/5  1.00g\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatText(tt.items); got != tt.want {
				t.Errorf("FormatText() = %q, want %q", got, tt.want)
			}
		})
	}
}
