package product

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func TestProduct_DisplayTitle(t *testing.T) {
	tests := []struct {
		name    string
		product Product
		want    string
	}{
		{
			name:    "plain title",
			product: Product{Title: "Wireless Headphones", SKU: "WH-001"},
			want:    "Wireless Headphones",
		},
		{
			name:    "title with surrounding whitespace",
			product: Product{Title: "  Wireless Headphones  ", SKU: "WH-001"},
			want:    "Wireless Headphones",
		},
		{
			name:    "blank title falls back to sku",
			product: Product{Title: "   ", SKU: "WH-001"},
			want:    "WH-001",
		},
		{
			name:    "empty title falls back to sku",
			product: Product{SKU: "WH-001"},
			want:    "WH-001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.product.DisplayTitle(); got != tt.want {
				t.Errorf("DisplayTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProduct_BestDescription(t *testing.T) {
	tests := []struct {
		name    string
		product Product
		want    string
	}{
		{
			name: "prefers ai description",
			product: Product{
				Description:   "plain copy",
				AIDescription: "enhanced copy",
				AIEnhanced:    true,
			},
			want: "enhanced copy",
		},
		{
			name:    "falls back to original",
			product: Product{Description: "plain copy"},
			want:    "plain copy",
		},
		{
			name: "empty ai description falls back",
			product: Product{
				Description: "plain copy",
				AIEnhanced:  true,
			},
			want: "plain copy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.product.BestDescription(); got != tt.want {
				t.Errorf("BestDescription() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProduct_Validate(t *testing.T) {
	tests := []struct {
		name        string
		product     Product
		expectError bool
	}{
		{
			name: "valid product",
			product: Product{
				Title: "Wireless Headphones",
				SKU:   "WH-001",
				Price: decimal.NewFromFloat(99.99),
			},
		},
		{
			name: "missing title",
			product: Product{
				SKU:   "WH-001",
				Price: decimal.NewFromFloat(99.99),
			},
			expectError: true,
		},
		{
			name: "whitespace title",
			product: Product{
				Title: "   ",
				SKU:   "WH-001",
				Price: decimal.NewFromFloat(99.99),
			},
			expectError: true,
		},
		{
			name: "missing sku",
			product: Product{
				Title: "Wireless Headphones",
				Price: decimal.NewFromFloat(99.99),
			},
			expectError: true,
		},
		{
			name: "negative price",
			product: Product{
				Title: "Wireless Headphones",
				SKU:   "WH-001",
				Price: decimal.NewFromFloat(-1),
			},
			expectError: true,
		},
		{
			name: "zero price is allowed",
			product: Product{
				Title: "Free Sample",
				SKU:   "FS-001",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.product.Validate()
			if tt.expectError && err == nil {
				t.Errorf("Validate() expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestJoinKeywords(t *testing.T) {
	tests := []struct {
		name     string
		keywords []string
		want     string
	}{
		{
			name:     "several keywords",
			keywords: []string{"wireless", "headphones", "bluetooth"},
			want:     "wireless, headphones, bluetooth",
		},
		{
			name:     "single keyword",
			keywords: []string{"wireless"},
			want:     "wireless",
		},
		{
			name: "empty list",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JoinKeywords(tt.keywords); got != tt.want {
				t.Errorf("JoinKeywords() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitKeywords(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "round trip",
			in:   "wireless, headphones, bluetooth",
			want: []string{"wireless", "headphones", "bluetooth"},
		},
		{
			name: "extra whitespace and empties",
			in:   " wireless ,, headphones ,  ",
			want: []string{"wireless", "headphones"},
		},
		{
			name: "caps at ten",
			in:   "a,b,c,d,e,f,g,h,i,j,k,l",
			want: []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"},
		},
		{
			name: "empty string",
			in:   "",
			want: nil,
		},
		{
			name: "only whitespace",
			in:   "   ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SplitKeywords(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitKeywords() = %v, want %v", got, tt.want)
			}
		})
	}
}
