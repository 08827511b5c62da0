package work

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nopExecute(context.Context, string, *ProgressReporter) error { return nil }

func TestCompletionTracker_IsStale(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	tracker := NewCompletionTracker().WithClock(func() time.Time { return now })
	item := &WorkItem{ID: "market:refresh", TypeID: "market:refresh"}

	assert.True(t, tracker.IsStale("market:refresh", "", time.Hour), "never completed")

	tracker.MarkCompletedAt(item, now.Add(-30*time.Minute))
	assert.False(t, tracker.IsStale("market:refresh", "", time.Hour))
	assert.True(t, tracker.IsStale("market:refresh", "", 0), "on-demand work is always stale")

	tracker.MarkCompletedAt(item, now.Add(-2*time.Hour))
	assert.True(t, tracker.IsStale("market:refresh", "", time.Hour))
}

func TestCompletionTracker_PerSubject(t *testing.T) {
	tracker := NewCompletionTracker()
	tracker.MarkCompleted(&WorkItem{TypeID: "forecast:generate", Subject: "daily"})

	_, ok := tracker.GetCompletion("forecast:generate", "daily")
	assert.True(t, ok)
	_, ok = tracker.GetCompletion("forecast:generate", "weekly")
	assert.False(t, ok)
	_, ok = tracker.GetCompletion("forecast:generate", "")
	assert.False(t, ok)
}

func TestCompletionTracker_ClearByTypeID(t *testing.T) {
	tracker := NewCompletionTracker()
	tracker.MarkCompleted(&WorkItem{TypeID: "forecast:generate", Subject: "daily"})
	tracker.MarkCompleted(&WorkItem{TypeID: "forecast:generate", Subject: "weekly"})
	tracker.MarkCompleted(&WorkItem{TypeID: "forecast:generate-extra"})
	tracker.MarkCompleted(&WorkItem{TypeID: "forecast:score"})

	tracker.ClearByTypeID("forecast:generate")

	snapshot := tracker.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "forecast:generate-extra", snapshot[0].WorkID)
	assert.Equal(t, "forecast:score", snapshot[1].WorkID)

	tracker.Clear("forecast:score", "")
	assert.Len(t, tracker.Snapshot(), 1)
}

func TestRegistry_ByPriorityAndDependents(t *testing.T) {
	r := NewRegistry()

	for _, wt := range []*WorkType{
		{ID: "forecast:score", Priority: PriorityLow},
		{ID: "pricing:reprice", Priority: PriorityHigh, DependsOn: []string{"market:refresh"}},
		{ID: "market:refresh", Priority: PriorityHigh},
		{ID: "opportunities:reconcile", Priority: PriorityMedium, DependsOn: []string{"market:refresh"}},
	} {
		wt.Execute = nopExecute
		require.NoError(t, r.Register(wt))
	}

	ids := make([]string, 0, r.Count())
	for _, wt := range r.ByPriority() {
		ids = append(ids, wt.ID)
	}
	assert.Equal(t, []string{"market:refresh", "pricing:reprice", "opportunities:reconcile", "forecast:score"}, ids)
	assert.Equal(t, []string{"opportunities:reconcile", "pricing:reprice"}, r.GetDependents("market:refresh"))
	assert.Empty(t, r.GetDependents("forecast:score"))

	// Missing FindSubjects defaults to global work
	assert.Equal(t, []string{""}, r.Get("forecast:score").FindSubjects())
}

func TestRegistry_RejectsIncompleteTypes(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(&WorkType{Execute: nopExecute}))
	assert.Error(t, r.Register(&WorkType{ID: "no:execute"}))
	assert.Equal(t, 0, r.Count())
}

func TestParseWorkID(t *testing.T) {
	typeID, subject := ParseWorkID("forecast:generate:weekly")
	assert.Equal(t, "forecast:generate", typeID)
	assert.Equal(t, "weekly", subject)

	typeID, subject = ParseWorkID("market:refresh")
	assert.Equal(t, "market:refresh", typeID)
	assert.Equal(t, "", subject)

	item := NewWorkItem(&WorkType{ID: "forecast:generate"}, "daily")
	assert.Equal(t, "forecast:generate:daily", item.ID)
}
