package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/markethub/markethub/internal/marketplace"
	"github.com/markethub/markethub/internal/product"
)

const productColumns = `id, title, description, short_description, sku, price, cost, stock,
	weight, dimensions, category, status, ai_enhanced, ai_description, ai_keywords,
	created_at, updated_at`

func scanProduct(row rowScanner) (*product.Product, error) {
	var (
		p        product.Product
		keywords sql.NullString
	)
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.ShortDescription, &p.SKU, &p.Price, &p.Cost, &p.Stock,
		&p.Weight, &p.Dimensions, &p.Category, &p.Status, &p.AIEnhanced, &p.AIDescription, &keywords,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.AIKeywords = product.SplitKeywords(nullStr(keywords))
	return &p, nil
}

// InsertProduct adds a catalog row and fills in the generated fields.
func (s *Store) InsertProduct(ctx context.Context, p *product.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Status == "" {
		p.Status = product.StatusActive
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO markethub.products(title, description, short_description, sku, price, cost, stock, weight, dimensions, category, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`,
		p.Title, p.Description, p.ShortDescription, p.SKU, p.Price, p.Cost, p.Stock, p.Weight, p.Dimensions, p.Category, p.Status,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetProduct loads a product by id.
func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s
		FROM markethub.products
		WHERE id = $1`, productColumns),
		id,
	)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, product.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

// UpdateProductEnhancement stores the AI output and flips the ai_enhanced
// flag, unblocking marketplace publication.
func (s *Store) UpdateProductEnhancement(ctx context.Context, id uuid.UUID, aiDescription string, keywords []string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE markethub.products
		SET ai_description = $2, ai_keywords = $3, ai_enhanced = TRUE, updated_at = now()
		WHERE id = $1`,
		id, aiDescription, product.JoinKeywords(keywords),
	)
	if err != nil {
		return fmt.Errorf("update product enhancement: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("product %s: %w", id, product.ErrNotFound)
	}
	return nil
}

// ListProducts returns one page of the catalog, most recent first.
func (s *Store) ListProducts(ctx context.Context, limit, offset int) ([]*product.Product, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM markethub.products
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, productColumns),
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var out []*product.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

const marketplaceColumns = `id, name, slug, api_url, webhook_url, is_active, created_at, updated_at`

func scanMarketplace(row rowScanner) (*marketplace.Marketplace, error) {
	var (
		m          marketplace.Marketplace
		webhookURL sql.NullString
	)
	err := row.Scan(&m.ID, &m.Name, &m.Slug, &m.APIURL, &webhookURL, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.WebhookURL = nullStr(webhookURL)
	return &m, nil
}

// InsertMarketplace adds a publication target and fills in the generated
// fields.
func (s *Store) InsertMarketplace(ctx context.Context, m *marketplace.Marketplace) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO markethub.marketplaces(name, slug, api_url, webhook_url, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		m.Name, m.Slug, m.APIURL, m.WebhookURL, m.IsActive,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert marketplace: %w", err)
	}
	return nil
}

// GetMarketplace loads a marketplace by id.
func (s *Store) GetMarketplace(ctx context.Context, id uuid.UUID) (*marketplace.Marketplace, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s
		FROM markethub.marketplaces
		WHERE id = $1`, marketplaceColumns),
		id,
	)
	m, err := scanMarketplace(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("marketplace %s: %w", id, marketplace.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select marketplace: %w", err)
	}
	return m, nil
}

// GetMarketplaceBySlug loads a marketplace by its slug.
func (s *Store) GetMarketplaceBySlug(ctx context.Context, slug string) (*marketplace.Marketplace, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s
		FROM markethub.marketplaces
		WHERE slug = $1`, marketplaceColumns),
		slug,
	)
	m, err := scanMarketplace(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("marketplace %q: %w", slug, marketplace.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select marketplace: %w", err)
	}
	return m, nil
}

// ListMarketplaces returns all marketplaces, optionally only active ones.
func (s *Store) ListMarketplaces(ctx context.Context, activeOnly bool) ([]*marketplace.Marketplace, error) {
	where := "1=1"
	if activeOnly {
		where = "is_active"
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM markethub.marketplaces
		WHERE %s
		ORDER BY name ASC`, marketplaceColumns, where),
	)
	if err != nil {
		return nil, fmt.Errorf("select marketplaces: %w", err)
	}
	defer rows.Close()

	var out []*marketplace.Marketplace
	for rows.Next() {
		m, err := scanMarketplace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCredentials loads API credentials for a marketplace. Missing
// credentials are not an error; publishers fall back to unauthenticated
// calls.
func (s *Store) GetCredentials(ctx context.Context, marketplaceID uuid.UUID) (*marketplace.Credentials, error) {
	var (
		c                      marketplace.Credentials
		clientID, clientSecret sql.NullString
		apiKey, accessToken    sql.NullString
		refreshToken           sql.NullString
	)
	err := s.pool.QueryRow(ctx, `
		SELECT marketplace_id, client_id, client_secret, api_key, access_token, refresh_token
		FROM markethub.marketplace_credentials
		WHERE marketplace_id = $1`,
		marketplaceID,
	).Scan(&c.MarketplaceID, &clientID, &clientSecret, &apiKey, &accessToken, &refreshToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select marketplace credentials: %w", err)
	}
	c.ClientID = nullStr(clientID)
	c.ClientSecret = nullStr(clientSecret)
	c.APIKey = nullStr(apiKey)
	c.AccessToken = nullStr(accessToken)
	c.RefreshToken = nullStr(refreshToken)
	return &c, nil
}

const listingColumns = `id, product_id, marketplace_id, external_id, status, last_sync, created_at, updated_at`

func scanListing(row rowScanner) (*marketplace.Listing, error) {
	var (
		l          marketplace.Listing
		externalID sql.NullString
		lastSync   sql.NullTime
	)
	err := row.Scan(&l.ID, &l.ProductID, &l.MarketplaceID, &externalID, &l.Status, &lastSync, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.ExternalID = nullStr(externalID)
	l.LastSync = timePtr(lastSync)
	return &l, nil
}

// GetOrCreateListing returns the listing row for a product/marketplace
// pair, creating a pending one on first publication. An existing row keeps
// its status so re-publication history stays visible until the step starts.
func (s *Store) GetOrCreateListing(ctx context.Context, productID, marketplaceID uuid.UUID) (*marketplace.Listing, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO markethub.listings(product_id, marketplace_id, status)
		VALUES ($1, $2, 'pending')
		ON CONFLICT (product_id, marketplace_id) DO UPDATE SET updated_at = now()
		RETURNING %s`, listingColumns),
		productID, marketplaceID,
	)
	l, err := scanListing(row)
	if err != nil {
		return nil, fmt.Errorf("upsert listing: %w", err)
	}
	return l, nil
}

// SetListingStatus moves a listing through its publication states.
func (s *Store) SetListingStatus(ctx context.Context, id uuid.UUID, status string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE markethub.listings
		SET status = $2, updated_at = now()
		WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("update listing status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("listing %s not found", id)
	}
	return nil
}

// CompleteListing records a successful publication with the marketplace's
// external id.
func (s *Store) CompleteListing(ctx context.Context, id uuid.UUID, externalID string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE markethub.listings
		SET external_id = $2, status = 'completed', last_sync = now(), updated_at = now()
		WHERE id = $1`,
		id, externalID,
	)
	if err != nil {
		return fmt.Errorf("complete listing: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("listing %s not found", id)
	}
	return nil
}
