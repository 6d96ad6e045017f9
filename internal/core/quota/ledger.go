// Package quota enforces per-user ceilings on uploads and questions.
package quota

import (
	"context"
	"fmt"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

// Store persists quota records. IncrementIfAllowed must be atomic per user:
// the ceiling check and the increment happen in one step, and a paid plan
// always passes the check.
type Store interface {
	// EnsureUser creates a free-tier record with zero counts if none exists.
	EnsureUser(ctx context.Context, userID string) error
	IncrementIfAllowed(ctx context.Context, userID string, counter models.Counter, ceiling int) (bool, error)
	GetUserQuota(ctx context.Context, userID string) (*models.UserQuota, error)
}

// Limits are the free-tier ceilings.
type Limits struct {
	Uploads   int
	Questions int
}

// DefaultLimits matches the free plan: one document, four questions.
var DefaultLimits = Limits{Uploads: 1, Questions: 4}

func (l Limits) ceiling(c models.Counter) (int, error) {
	switch c {
	case models.CounterPDFUploads:
		return l.Uploads, nil
	case models.CounterQuestions:
		return l.Questions, nil
	}
	return 0, fmt.Errorf("unknown quota counter %q", c)
}

type Ledger struct {
	store  Store
	limits Limits
}

func NewLedger(store Store, limits Limits) *Ledger {
	return &Ledger{store: store, limits: limits}
}

// TryIncrement consumes one unit of counter for userID, creating the user on first use.
// It returns core.ErrQuotaExceeded, without mutating anything, when a free-tier user is at the ceiling.
func (l *Ledger) TryIncrement(ctx context.Context, userID string, counter models.Counter) error {
	ceiling, err := l.limits.ceiling(counter)
	if err != nil {
		return err
	}
	if err := l.store.EnsureUser(ctx, userID); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	ok, err := l.store.IncrementIfAllowed(ctx, userID, counter, ceiling)
	if err != nil {
		return fmt.Errorf("increment %s: %w", counter, err)
	}
	if !ok {
		return core.ErrQuotaExceeded
	}
	return nil
}

// Status is the quota record plus what is left on the current plan.
// Remaining values are -1 for paid users.
type Status struct {
	models.UserQuota
	UploadLimit        int `json:"upload_limit"`
	QuestionLimit      int `json:"question_limit"`
	RemainingUploads   int `json:"remaining_uploads"`
	RemainingQuestions int `json:"remaining_questions"`
}

// Status returns the user's record, creating it if this is the first time we see them.
func (l *Ledger) Status(ctx context.Context, userID string) (*Status, error) {
	if err := l.store.EnsureUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	q, err := l.store.GetUserQuota(ctx, userID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("quota record for %s vanished", userID)
	}
	st := &Status{
		UserQuota:          *q,
		UploadLimit:        l.limits.Uploads,
		QuestionLimit:      l.limits.Questions,
		RemainingUploads:   -1,
		RemainingQuestions: -1,
	}
	if q.Plan != models.PlanPaid {
		st.RemainingUploads = max(l.limits.Uploads-q.PDFUploads, 0)
		st.RemainingQuestions = max(l.limits.Questions-q.QuestionCount, 0)
	}
	return st, nil
}
