package product

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Catalog statuses. Inactive products stay in the catalog but are not
// offered for publication.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusPending  = "pending"
)

// MaxKeywords caps the stored AI keyword list.
const MaxKeywords = 10

var (
	ErrInvalid  = errors.New("invalid product")
	ErrNotFound = errors.New("product not found")
)

// Product is the catalog record the publication flow operates on. The AI
// fields are written by the enhancement step and preferred by the
// marketplace publishers when set.
type Product struct {
	ID               uuid.UUID           `json:"id"`
	Title            string              `json:"title"`
	Description      string              `json:"description"`
	ShortDescription string              `json:"short_description,omitempty"`
	SKU              string              `json:"sku"`
	Price            decimal.Decimal     `json:"price"`
	Cost             decimal.NullDecimal `json:"cost,omitempty"`
	Stock            int                 `json:"stock"`
	Weight           decimal.NullDecimal `json:"weight,omitempty"`
	Dimensions       string              `json:"dimensions,omitempty"`
	Category         string              `json:"category"`
	Status           string              `json:"status"`

	AIEnhanced    bool     `json:"ai_enhanced"`
	AIDescription string   `json:"ai_description,omitempty"`
	AIKeywords    []string `json:"ai_keywords,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayTitle returns the trimmed title, falling back to the SKU when the
// title is blank.
func (p *Product) DisplayTitle() string {
	if t := strings.TrimSpace(p.Title); t != "" {
		return t
	}
	return p.SKU
}

// BestDescription prefers the AI-enhanced copy when present.
func (p *Product) BestDescription() string {
	if p.AIDescription != "" {
		return p.AIDescription
	}
	return p.Description
}

// Validate checks the fields the catalog API requires on create. Failures
// wrap ErrInvalid.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if strings.TrimSpace(p.SKU) == "" {
		return fmt.Errorf("%w: sku is required", ErrInvalid)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalid)
	}
	return nil
}

// JoinKeywords renders a keyword list the way it is stored, one string
// with comma-space separators.
func JoinKeywords(keywords []string) string {
	return strings.Join(keywords, ", ")
}

// SplitKeywords parses a stored keyword string back into a list: split on
// commas, trim whitespace, drop empties, cap at MaxKeywords.
func SplitKeywords(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	keywords := make([]string, 0, len(parts))
	for _, part := range parts {
		kw := strings.TrimSpace(part)
		if kw == "" {
			continue
		}
		keywords = append(keywords, kw)
		if len(keywords) == MaxKeywords {
			break
		}
	}
	return keywords
}
