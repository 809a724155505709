package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"webhook-gateway/internal/core/domain"
	"webhook-gateway/internal/core/ports"

	"github.com/google/uuid"
)

// --- In-Memory Endpoint Repo ---

type inMemoryEndpointRepo struct {
	mu        sync.RWMutex
	endpoints map[uuid.UUID]*domain.WebhookEndpoint
}

func newInMemoryEndpointRepo() *inMemoryEndpointRepo {
	return &inMemoryEndpointRepo{endpoints: make(map[uuid.UUID]*domain.WebhookEndpoint)}
}

func (r *inMemoryEndpointRepo) Create(ctx context.Context, e *domain.WebhookEndpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.endpoints[e.ID] = &cp
	return nil
}

func (r *inMemoryEndpointRepo) GetByID(ctx context.Context, id, merchantID uuid.UUID) (*domain.WebhookEndpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.endpoints[id]
	if !ok || e.MerchantID != merchantID {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *inMemoryEndpointRepo) Get(ctx context.Context, id uuid.UUID) (*domain.WebhookEndpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.endpoints[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *inMemoryEndpointRepo) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.WebhookEndpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.WebhookEndpoint
	for _, e := range r.endpoints {
		if e.MerchantID == merchantID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *inMemoryEndpointRepo) ListSubscribed(ctx context.Context, merchantID uuid.UUID, eventType string) ([]domain.WebhookEndpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.WebhookEndpoint
	for _, e := range r.endpoints {
		if e.MerchantID == merchantID && e.IsActive() && e.SubscribesTo(eventType) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *inMemoryEndpointRepo) Update(ctx context.Context, e *domain.WebhookEndpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.endpoints[e.ID]; !ok {
		return fmt.Errorf("endpoint not found")
	}
	cp := *e
	r.endpoints[e.ID] = &cp
	return nil
}

func (r *inMemoryEndpointRepo) Delete(ctx context.Context, id, merchantID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.endpoints[id]
	if !ok || e.MerchantID != merchantID {
		return false, nil
	}
	delete(r.endpoints, id)
	return true, nil
}

func (r *inMemoryEndpointRepo) RecordFailure(ctx context.Context, id uuid.UUID, threshold int) (*ports.OutcomeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.endpoints[id]
	if !ok {
		return nil, nil
	}
	if e.Status != domain.EndpointStatusActive {
		return &ports.OutcomeResult{ConsecutiveFailures: e.ConsecutiveFailures, Status: e.Status}, nil
	}
	e.ConsecutiveFailures++
	justDisabled := false
	if e.ConsecutiveFailures >= threshold {
		e.Status = domain.EndpointStatusDisabled
		justDisabled = true
	}
	e.UpdatedAt = time.Now().UTC()
	return &ports.OutcomeResult{
		ConsecutiveFailures: e.ConsecutiveFailures,
		Status:              e.Status,
		JustDisabled:        justDisabled,
	}, nil
}

func (r *inMemoryEndpointRepo) RecordSuccess(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.endpoints[id]; ok {
		e.ConsecutiveFailures = 0
		e.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// --- In-Memory Event Repo ---

type inMemoryEventRepo struct {
	mu     sync.RWMutex
	events map[uuid.UUID]*domain.WebhookEvent
}

func newInMemoryEventRepo() *inMemoryEventRepo {
	return &inMemoryEventRepo{events: make(map[uuid.UUID]*domain.WebhookEvent)}
}

func (r *inMemoryEventRepo) Insert(ctx context.Context, ev *domain.WebhookEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[ev.ID]; ok {
		return false, nil
	}
	cp := *ev
	r.events[ev.ID] = &cp
	return true, nil
}

func (r *inMemoryEventRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.events[id]
	if !ok {
		return nil, nil
	}
	cp := *ev
	return &cp, nil
}

// --- In-Memory Attempt Repo ---

type inMemoryAttemptRepo struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*domain.DeliveryAttempt
}

func newInMemoryAttemptRepo() *inMemoryAttemptRepo {
	return &inMemoryAttemptRepo{attempts: make(map[uuid.UUID]*domain.DeliveryAttempt)}
}

func (r *inMemoryAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.attempts[a.ID] = &cp
	return nil
}

func (r *inMemoryAttemptRepo) Update(ctx context.Context, a *domain.DeliveryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attempts[a.ID]; !ok {
		return fmt.Errorf("attempt not found")
	}
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	r.attempts[a.ID] = &cp
	return nil
}

func (r *inMemoryAttemptRepo) LatestForPair(ctx context.Context, endpointID, eventID uuid.UUID) (*domain.DeliveryAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.DeliveryAttempt
	for _, a := range r.attempts {
		if a.EndpointID != endpointID || a.EventID != eventID {
			continue
		}
		if latest == nil || a.AttemptNumber > latest.AttemptNumber {
			latest = a
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *inMemoryAttemptRepo) List(ctx context.Context, q ports.AttemptListQuery) ([]domain.DeliveryAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.DeliveryAttempt
	for _, a := range r.attempts {
		if a.EndpointID != q.EndpointID {
			continue
		}
		if q.BeforeCreatedAt != nil && !a.CreatedAt.Before(*q.BeforeCreatedAt) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// ClaimDue mirrors the SELECT ... FOR UPDATE SKIP LOCKED claim: the state
// flip happens under the lock, so concurrent sweepers never claim the same
// attempt twice.
func (r *inMemoryAttemptRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.DeliveryAttempt
	for _, a := range r.attempts {
		if len(out) >= limit {
			break
		}
		if a.State != domain.AttemptStateScheduled || a.NextRetryAt == nil || a.NextRetryAt.After(now) {
			continue
		}
		a.State = domain.AttemptStateInFlight
		requested := now
		a.RequestedAt = &requested
		a.UpdatedAt = now
		out = append(out, *a)
	}
	return out, nil
}

func (r *inMemoryAttemptRepo) ReclaimStuck(ctx context.Context, cutoff time.Time, limit int) ([]domain.DeliveryAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.DeliveryAttempt
	for _, a := range r.attempts {
		if len(out) >= limit {
			break
		}
		if a.State != domain.AttemptStateInFlight || a.RequestedAt == nil || !a.RequestedAt.Before(cutoff) {
			continue
		}
		a.State = domain.AttemptStateFailed
		reason := "delivery timed out (reclaimed from stuck worker)"
		a.LastError = &reason
		a.UpdatedAt = time.Now().UTC()
		out = append(out, *a)
	}
	return out, nil
}

func (r *inMemoryAttemptRepo) CancelOpenForEndpoint(ctx context.Context, endpointID uuid.UUID, reason string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, a := range r.attempts {
		if a.EndpointID != endpointID || !a.IsOpen() {
			continue
		}
		a.State = domain.AttemptStateExhausted
		msg := reason
		a.LastError = &msg
		a.NextRetryAt = nil
		a.UpdatedAt = time.Now().UTC()
		n++
	}
	return n, nil
}

// attemptsForPair returns all attempts of a pair ordered by attempt number,
// for assertions on history shape.
func (r *inMemoryAttemptRepo) attemptsForPair(endpointID, eventID uuid.UUID) []domain.DeliveryAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.DeliveryAttempt
	for _, a := range r.attempts {
		if a.EndpointID == endpointID && a.EventID == eventID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out
}

// --- In-Memory Dedupe Store ---

type inMemoryDedupeStore struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newInMemoryDedupeStore() *inMemoryDedupeStore {
	return &inMemoryDedupeStore{seen: make(map[string]bool)}
}

func (s *inMemoryDedupeStore) CheckAndSet(ctx context.Context, merchantID, dedupeKey string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := merchantID + ":" + dedupeKey
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	return true, nil
}
