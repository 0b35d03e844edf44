package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-triage/internal/model"
	"github.com/nhle/mail-triage/internal/store"
	"github.com/nhle/mail-triage/tests/testutil"
)

func ratingPtr(n int) *int { return &n }

func decision(cycle, action string, at time.Time, rating *int) model.Decision {
	return model.Decision{
		CycleID:   cycle,
		UID:       42,
		Subject:   "Invoice " + action,
		Sender:    "billing@example.com",
		Rating:    rating,
		Action:    action,
		CreatedAt: at,
	}
}

func TestRecordAndListDecisions(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordDecision(ctx, decision("c1", "junk", base, ratingPtr(0))))
	require.NoError(t, s.RecordDecision(ctx, decision("c1", "flag", base.Add(time.Minute), ratingPtr(9))))
	require.NoError(t, s.RecordDecision(ctx, decision("c2", "none", base.Add(2*time.Minute), nil)))

	got, err := s.RecentDecisions(ctx, store.DecisionFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "none", got[0].Action)
	assert.Nil(t, got[0].Rating)
	assert.NotEmpty(t, got[0].ID)

	assert.Equal(t, "flag", got[1].Action)
	require.NotNil(t, got[1].Rating)
	assert.Equal(t, 9, *got[1].Rating)
	assert.Equal(t, uint32(42), got[1].UID)
	assert.Equal(t, "billing@example.com", got[1].Sender)
	assert.True(t, base.Add(time.Minute).Equal(got[1].CreatedAt))

	require.NotNil(t, got[2].Rating)
	assert.Equal(t, 0, *got[2].Rating)
}

func TestRecentDecisionsFilter(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	for i, action := range []string{"archive", "flag", "archive", "junk"} {
		cycle := "c1"
		if i >= 2 {
			cycle = "c2"
		}
		require.NoError(t, s.RecordDecision(ctx, decision(cycle, action, base.Add(time.Duration(i)*time.Hour), ratingPtr(i))))
	}

	cycle := "c2"
	got, err := s.RecentDecisions(ctx, store.DecisionFilter{CycleID: &cycle})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	action := "archive"
	got, err = s.RecentDecisions(ctx, store.DecisionFilter{Action: &action})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c2", got[0].CycleID)

	since := base.Add(90 * time.Minute)
	got, err = s.RecentDecisions(ctx, store.DecisionFilter{Since: &since})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.RecentDecisions(ctx, store.DecisionFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "archive", got[0].Action)

	got, err = s.RecentDecisions(ctx, store.DecisionFilter{Offset: 3})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "archive", got[0].Action)
	assert.Equal(t, "c1", got[0].CycleID)
}

func TestActionCountsAndPrune(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordDecision(ctx, decision("c1", "junk", base, ratingPtr(0))))
	require.NoError(t, s.RecordDecision(ctx, decision("c1", "junk", base.Add(time.Hour), ratingPtr(0))))
	require.NoError(t, s.RecordDecision(ctx, decision("c1", "flag", base.Add(2*time.Hour), ratingPtr(8))))

	counts, err := s.ActionCounts(ctx, base.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"junk": 1, "flag": 1}, counts)

	removed, err := s.Prune(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	got, err := s.RecentDecisions(ctx, store.DecisionFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "flag", got[0].Action)
}

func TestReopenKeepsJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordDecision(ctx, decision("c1", "archive", time.Now(), ratingPtr(2))))
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.RecentDecisions(ctx, store.DecisionFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
