package store

import (
	"context"
	"time"

	"github.com/nhle/mail-triage/internal/model"
)

// DecisionFilter controls filtering and pagination for decision queries.
type DecisionFilter struct {
	CycleID *string
	Action  *string
	Since   *time.Time
	Limit   int
	Offset  int
}

// Store is the decision journal. It is an audit trail only; nothing in a
// cycle reads it back.
type Store interface {
	RecordDecision(ctx context.Context, d model.Decision) error
	RecentDecisions(ctx context.Context, filter DecisionFilter) ([]model.Decision, error)
	ActionCounts(ctx context.Context, since time.Time) (map[string]int, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
