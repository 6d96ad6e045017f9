package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/markdave123-py/docqa/internal/models"
)

// MemoryStore is a process-local Store. A single mutex serialises every
// check-then-increment, which is enough for one process.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*models.UserQuota
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*models.UserQuota)}
}

func (m *MemoryStore) EnsureUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		now := time.Now()
		m.users[userID] = &models.UserQuota{
			UserID:    userID,
			Name:      "Anonymous User",
			Plan:      models.PlanFree,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	return nil
}

func (m *MemoryStore) IncrementIfAllowed(_ context.Context, userID string, counter models.Counter, ceiling int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return false, fmt.Errorf("user %s not found", userID)
	}
	var n *int
	switch counter {
	case models.CounterPDFUploads:
		n = &u.PDFUploads
	case models.CounterQuestions:
		n = &u.QuestionCount
	default:
		return false, fmt.Errorf("unknown quota counter %q", counter)
	}
	if u.Plan != models.PlanPaid && *n >= ceiling {
		return false, nil
	}
	*n++
	u.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) GetUserQuota(_ context.Context, userID string) (*models.UserQuota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) UpdateUserName(_ context.Context, userID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("user not found: %s", userID)
	}
	u.Name = name
	u.UpdatedAt = time.Now()
	return nil
}

// SetPlan switches a user's tier. Counters are left untouched.
func (m *MemoryStore) SetPlan(_ context.Context, userID, plan string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("user %s not found", userID)
	}
	u.Plan = plan
	u.UpdatedAt = time.Now()
	return nil
}
