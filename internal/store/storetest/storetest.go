// Package storetest provides an in-memory double of store.Store for tests
// that exercise the saga, webhook delivery, and HTTP handlers without a
// database.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/markethub/markethub/internal/marketplace"
	"github.com/markethub/markethub/internal/product"
	"github.com/markethub/markethub/internal/saga"
	"github.com/markethub/markethub/internal/webhook"
)

// Store keeps every table in maps guarded by one mutex. Reads hand back
// copies, mirroring the fresh-scan behavior of the real store.
type Store struct {
	mu sync.Mutex

	Products     map[uuid.UUID]*product.Product
	Marketplaces map[uuid.UUID]*marketplace.Marketplace
	Credentials  map[uuid.UUID]*marketplace.Credentials
	Listings     map[string]*marketplace.Listing
	Tasks        map[uuid.UUID]*saga.Task
	Events       map[uuid.UUID]*webhook.Event

	taskOrder  []uuid.UUID
	eventOrder []uuid.UUID
}

func New() *Store {
	return &Store{
		Products:     make(map[uuid.UUID]*product.Product),
		Marketplaces: make(map[uuid.UUID]*marketplace.Marketplace),
		Credentials:  make(map[uuid.UUID]*marketplace.Credentials),
		Listings:     make(map[string]*marketplace.Listing),
		Tasks:        make(map[uuid.UUID]*saga.Task),
		Events:       make(map[uuid.UUID]*webhook.Event),
	}
}

// AddProduct seeds a product, assigning an id when missing.
func (s *Store) AddProduct(p *product.Product) *product.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = product.StatusActive
	}
	s.Products[p.ID] = p
	return p
}

// AddMarketplace seeds a marketplace, assigning an id when missing.
func (s *Store) AddMarketplace(m *marketplace.Marketplace) *marketplace.Marketplace {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	s.Marketplaces[m.ID] = m
	return m
}

// --- task store ---

func (s *Store) CreateTask(ctx context.Context, t *saga.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.TaskID == uuid.Nil {
		t.TaskID = uuid.New()
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = saga.StatusPending
	}
	if t.MaxRetries == 0 {
		t.MaxRetries = 3
	}
	if t.StartedAt.IsZero() {
		t.StartedAt = time.Now().UTC()
	}
	t.UpdatedAt = time.Now().UTC()
	s.Tasks[t.TaskID] = cloneTask(t)
	s.taskOrder = append(s.taskOrder, t.TaskID)
	return nil
}

func (s *Store) GetTask(ctx context.Context, taskID uuid.UUID) (*saga.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.Tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, saga.ErrTaskNotFound)
	}
	return cloneTask(t), nil
}

func (s *Store) SetTaskStatus(ctx context.Context, taskID uuid.UUID, status saga.Status, currentStep string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.updatableTask(taskID)
	if err != nil {
		return err
	}
	t.Status = status
	t.CurrentStep = currentStep
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) AppendTaskStep(ctx context.Context, taskID uuid.UUID, step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.Tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, saga.ErrTaskNotFound)
	}
	for _, got := range t.StepsCompleted {
		if got == step {
			return nil
		}
	}
	t.StepsCompleted = append(t.StepsCompleted, step)
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) SetTaskStepResult(ctx context.Context, taskID uuid.UUID, step string, result map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.Tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, saga.ErrTaskNotFound)
	}
	switch step {
	case saga.StepEnhancement:
		t.EnhancementResult = result
	case saga.StepPublication:
		t.PublicationResult = result
	case saga.StepWebhook:
		t.WebhookResult = result
	default:
		return fmt.Errorf("unknown step %q", step)
	}
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) IncrementTaskRetry(ctx context.Context, taskID uuid.UUID, step string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.Tasks[taskID]
	if !ok {
		return 0, fmt.Errorf("task %s: %w", taskID, saga.ErrTaskNotFound)
	}
	var n int
	switch step {
	case saga.StepEnhancement:
		t.EnhancementRetries++
		n = t.EnhancementRetries
	case saga.StepPublication:
		t.PublicationRetries++
		n = t.PublicationRetries
	case saga.StepWebhook:
		t.WebhookRetries++
		n = t.WebhookRetries
	default:
		return 0, fmt.Errorf("unknown step %q", step)
	}
	t.UpdatedAt = time.Now().UTC()
	return n, nil
}

func (s *Store) SetTaskError(ctx context.Context, taskID uuid.UUID, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.Tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, saga.ErrTaskNotFound)
	}
	t.ErrorDetails = details
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) MarkTaskFailed(ctx context.Context, taskID uuid.UUID, currentStep, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.updatableTask(taskID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	t.Status = saga.StatusFailed
	t.CurrentStep = currentStep
	t.ErrorDetails = details
	t.CompletedAt = &now
	t.UpdatedAt = now
	return nil
}

func (s *Store) MarkTaskCompleted(ctx context.Context, taskID uuid.UUID, currentStep string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.updatableTask(taskID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	t.Status = saga.StatusCompleted
	t.CurrentStep = currentStep
	t.CompletedAt = &now
	t.UpdatedAt = now
	return nil
}

func (s *Store) ListTasksByProduct(ctx context.Context, productID uuid.UUID, f saga.TaskFilter) ([]*saga.Task, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := s.filteredTasks(productID, f)
	total := len(matched)

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*saga.Task, 0, len(matched))
	for _, t := range matched {
		out = append(out, cloneTask(t))
	}
	return out, total, nil
}

func (s *Store) TaskCountsByStatus(ctx context.Context, productID uuid.UUID, f saga.TaskFilter) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int)
	for _, t := range s.filteredTasks(productID, f) {
		counts[string(t.Status)]++
	}
	return counts, nil
}

func (s *Store) TaskCountsByMarketplace(ctx context.Context, productID uuid.UUID, f saga.TaskFilter) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int)
	for _, t := range s.filteredTasks(productID, f) {
		name := t.MarketplaceID.String()
		if m, ok := s.Marketplaces[t.MarketplaceID]; ok {
			name = m.Name
		}
		counts[name]++
	}
	return counts, nil
}

// filteredTasks returns matching tasks most recent first. Callers hold the
// lock.
func (s *Store) filteredTasks(productID uuid.UUID, f saga.TaskFilter) []*saga.Task {
	var matched []*saga.Task
	for _, id := range s.taskOrder {
		t := s.Tasks[id]
		if t.ProductID != productID {
			continue
		}
		if f.Status != "" && string(t.Status) != f.Status {
			continue
		}
		if f.MarketplaceID != uuid.Nil && t.MarketplaceID != f.MarketplaceID {
			continue
		}
		matched = append(matched, t)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})
	return matched
}

func (s *Store) updatableTask(taskID uuid.UUID) (*saga.Task, error) {
	t, ok := s.Tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, saga.ErrTaskNotFound)
	}
	if t.Status.Terminal() {
		return nil, fmt.Errorf("task %s: %w", taskID, saga.ErrTaskFinalized)
	}
	return t, nil
}

// --- event store ---

func (s *Store) CreateEvent(ctx context.Context, ev *webhook.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Status == "" {
		ev.Status = webhook.EventPending
	}
	if ev.MaxAttempts == 0 {
		ev.MaxAttempts = 3
	}
	now := time.Now().UTC()
	ev.CreatedAt = now
	ev.UpdatedAt = now
	s.Events[ev.ID] = cloneEvent(ev)
	s.eventOrder = append(s.eventOrder, ev.ID)
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*webhook.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.Events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, webhook.ErrEventNotFound)
	}
	return cloneEvent(ev), nil
}

func (s *Store) RecordEventAttempt(ctx context.Context, id uuid.UUID, attempts int, status string, httpStatus *int, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.Events[id]
	if !ok {
		return fmt.Errorf("event %s: %w", id, webhook.ErrEventNotFound)
	}
	ev.Attempts = attempts
	ev.Status = status
	ev.ResponseStatusCode = httpStatus
	ev.ResponseBody = body
	ev.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) MarkEventPending(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.Events[id]
	if !ok {
		return fmt.Errorf("event %s: %w", id, webhook.ErrEventNotFound)
	}
	ev.Status = webhook.EventPending
	ev.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ListEvents(ctx context.Context, f webhook.EventFilter) ([]*webhook.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*webhook.Event
	for _, id := range s.eventOrder {
		ev := s.Events[id]
		if f.EventType != "" && ev.EventType != f.EventType {
			continue
		}
		if f.Status != "" && ev.Status != f.Status {
			continue
		}
		matched = append(matched, ev)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*webhook.Event, 0, len(matched))
	for _, ev := range matched {
		out = append(out, cloneEvent(ev))
	}
	return out, nil
}

// --- catalog ---

func (s *Store) InsertProduct(ctx context.Context, p *product.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.AddProduct(p)
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, product.ErrNotFound)
	}
	return cloneProduct(p), nil
}

func (s *Store) UpdateProductEnhancement(ctx context.Context, id uuid.UUID, aiDescription string, keywords []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Products[id]
	if !ok {
		return fmt.Errorf("product %s: %w", id, product.ErrNotFound)
	}
	p.AIDescription = aiDescription
	p.AIKeywords = append([]string(nil), keywords...)
	p.AIEnhanced = true
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ListProducts(ctx context.Context, limit, offset int) ([]*product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*product.Product
	for _, p := range s.Products {
		all = append(all, cloneProduct(p))
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) InsertMarketplace(ctx context.Context, m *marketplace.Marketplace) error {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	s.AddMarketplace(m)
	return nil
}

func (s *Store) GetMarketplace(ctx context.Context, id uuid.UUID) (*marketplace.Marketplace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.Marketplaces[id]
	if !ok {
		return nil, fmt.Errorf("marketplace %s: %w", id, marketplace.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (s *Store) GetMarketplaceBySlug(ctx context.Context, slug string) (*marketplace.Marketplace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.Marketplaces {
		if m.Slug == slug {
			cp := *m
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("marketplace %q: %w", slug, marketplace.ErrNotFound)
}

func (s *Store) ListMarketplaces(ctx context.Context, activeOnly bool) ([]*marketplace.Marketplace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*marketplace.Marketplace
	for _, m := range s.Marketplaces {
		if activeOnly && !m.IsActive {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetCredentials(ctx context.Context, marketplaceID uuid.UUID) (*marketplace.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Credentials[marketplaceID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *Store) GetOrCreateListing(ctx context.Context, productID, marketplaceID uuid.UUID) (*marketplace.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := productID.String() + "|" + marketplaceID.String()
	l, ok := s.Listings[key]
	if !ok {
		now := time.Now().UTC()
		l = &marketplace.Listing{
			ID:            uuid.New(),
			ProductID:     productID,
			MarketplaceID: marketplaceID,
			Status:        marketplace.ListingPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		s.Listings[key] = l
	}
	cp := *l
	return &cp, nil
}

func (s *Store) SetListingStatus(ctx context.Context, id uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.Listings {
		if l.ID == id {
			l.Status = status
			l.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("listing %s not found", id)
}

func (s *Store) CompleteListing(ctx context.Context, id uuid.UUID, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.Listings {
		if l.ID == id {
			now := time.Now().UTC()
			l.ExternalID = externalID
			l.Status = marketplace.ListingCompleted
			l.LastSync = &now
			l.UpdatedAt = now
			return nil
		}
	}
	return fmt.Errorf("listing %s not found", id)
}

// --- copies ---

func cloneTask(t *saga.Task) *saga.Task {
	cp := *t
	cp.EnhancementResult = cloneMap(t.EnhancementResult)
	cp.PublicationResult = cloneMap(t.PublicationResult)
	cp.WebhookResult = cloneMap(t.WebhookResult)
	cp.StepsCompleted = append([]string(nil), t.StepsCompleted...)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

func cloneEvent(ev *webhook.Event) *webhook.Event {
	cp := *ev
	cp.Payload = cloneMap(ev.Payload)
	if ev.ResponseStatusCode != nil {
		code := *ev.ResponseStatusCode
		cp.ResponseStatusCode = &code
	}
	return &cp
}

func cloneProduct(p *product.Product) *product.Product {
	cp := *p
	cp.AIKeywords = append([]string(nil), p.AIKeywords...)
	return &cp
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
