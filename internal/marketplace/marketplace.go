package marketplace

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no marketplace row matches the given id or
// slug.
var ErrNotFound = errors.New("marketplace not found")

// Marketplace is a configured publication target. WebhookURL, when set,
// overrides the global webhook destination for tasks publishing here.
type Marketplace struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	APIURL     string    `json:"api_url"`
	WebhookURL string    `json:"webhook_url,omitempty"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Credentials holds the per-marketplace API secrets. One row per
// marketplace.
type Credentials struct {
	MarketplaceID uuid.UUID `json:"marketplace_id"`
	ClientID      string    `json:"client_id,omitempty"`
	ClientSecret  string    `json:"client_secret,omitempty"`
	APIKey        string    `json:"api_key,omitempty"`
	AccessToken   string    `json:"access_token,omitempty"`
	RefreshToken  string    `json:"refresh_token,omitempty"`
}

// Listing records a product's presence on one marketplace: the external id
// assigned by the vendor and the sync status. Unique per
// (product, marketplace).
type Listing struct {
	ID            uuid.UUID  `json:"id"`
	ProductID     uuid.UUID  `json:"product_id"`
	MarketplaceID uuid.UUID  `json:"marketplace_id"`
	ExternalID    string     `json:"external_id,omitempty"`
	Status        string     `json:"status"`
	LastSync      *time.Time `json:"last_sync,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Listing statuses.
const (
	ListingPending    = "pending"
	ListingProcessing = "processing"
	ListingCompleted  = "completed"
	ListingFailed     = "failed"
)
