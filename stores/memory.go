package stores

import (
	"context"
	"sync"

	"event-gamification-system/models"
)

// MemoryStore is a map-backed implementation of both store interfaces.
// It mirrors the DynamoDB conditional-write semantics (duplicate keys
// rejected, decrement-if-positive) so local development and tests see
// the same behavior as production.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]map[string]models.Accomplishment // user id → sort key → record
	users   map[string]*models.Participant
	byHash  map[string]string // share hash → user id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]map[string]models.Accomplishment),
		users:   make(map[string]*models.Participant),
		byHash:  make(map[string]string),
	}
}

func (m *MemoryStore) Create(ctx context.Context, acc *models.Accomplishment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sk := accomplishmentSortKey(acc.DedupKey, acc.Seq)
	if m.records[acc.UserID] == nil {
		m.records[acc.UserID] = make(map[string]models.Accomplishment)
	}
	if _, exists := m.records[acc.UserID][sk]; exists {
		return ErrDuplicate
	}
	m.records[acc.UserID][sk] = *acc
	return nil
}

func (m *MemoryStore) CountForUser(ctx context.Context, userID, dedupKey string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, rec := range m.records[userID] {
		if rec.DedupKey == dedupKey {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CountGlobal(ctx context.Context, dedupKey string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, byKey := range m.records {
		for _, rec := range byKey {
			if rec.DedupKey == dedupKey {
				count++
			}
		}
	}
	return count, nil
}

func (m *MemoryStore) CountAllForUser(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records[userID]), nil
}

func (m *MemoryStore) ListForUser(ctx context.Context, userID string) ([]models.Accomplishment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Accomplishment
	for _, rec := range m.records[userID] {
		out = append(out, rec)
	}
	return out, nil
}

func (m *MemoryStore) ListByType(ctx context.Context, typ models.AchievementType) ([]models.Accomplishment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Accomplishment
	for _, byKey := range m.records {
		for _, rec := range byKey {
			if rec.Type == typ {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *MemoryStore) GetByShareHash(ctx context.Context, hash string) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *m.users[id]
	return &copied, nil
}

func (m *MemoryStore) Ensure(ctx context.Context, id, email string) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.users[id]; ok {
		copied := *p
		return &copied, nil
	}
	fresh := models.NewParticipant(id, email)
	m.users[id] = fresh
	m.byHash[fresh.ShareHash] = id
	copied := *fresh
	return &copied, nil
}

func (m *MemoryStore) DecrementQuota(ctx context.Context, userID, counter string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.users[userID]
	if !ok {
		return 0, ErrNotFound
	}
	if p.Quotas[counter] <= 0 {
		return 0, ErrQuotaEmpty
	}
	p.Quotas[counter]--
	return p.Quotas[counter], nil
}

func (m *MemoryStore) ResetQuota(ctx context.Context, counter string, value int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.users {
		p.Quotas[counter] = value
	}
	return len(m.users), nil
}

// SetQuota pins a counter to an exact value. Test helper.
func (m *MemoryStore) SetQuota(userID, counter string, value int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.users[userID]; ok {
		p.Quotas[counter] = value
	}
}
