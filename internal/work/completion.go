package work

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// CompletionTracker tracks when work items were last completed.
// It's used to determine staleness based on intervals.
type CompletionTracker struct {
	completions map[string]time.Time // key: "typeID:subject"
	now         func() time.Time
	mu          sync.RWMutex
}

// Completion is one tracked completion, as reported by Snapshot.
type Completion struct {
	WorkID      string    `json:"work_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// NewCompletionTracker creates a new completion tracker.
func NewCompletionTracker() *CompletionTracker {
	return &CompletionTracker{
		completions: make(map[string]time.Time),
		now:         time.Now,
	}
}

// WithClock overrides the clock used for completions and staleness.
func (t *CompletionTracker) WithClock(now func() time.Time) *CompletionTracker {
	t.now = now
	return t
}

// MarkCompleted records that a work item has been completed.
func (t *CompletionTracker) MarkCompleted(item *WorkItem) {
	t.MarkCompletedAt(item, t.now())
}

// MarkCompletedAt records that a work item was completed at a specific time.
func (t *CompletionTracker) MarkCompletedAt(item *WorkItem, completedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.completions[makeKey(item.TypeID, item.Subject)] = completedAt
}

// GetCompletion returns when a work type/subject combination was last completed.
func (t *CompletionTracker) GetCompletion(typeID, subject string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	completedAt, exists := t.completions[makeKey(typeID, subject)]
	return completedAt, exists
}

// IsStale returns true if the work should be re-executed based on the interval:
// it never completed, the interval is zero, or the interval has passed.
func (t *CompletionTracker) IsStale(typeID, subject string, interval time.Duration) bool {
	if interval == 0 {
		return true
	}

	completedAt, exists := t.GetCompletion(typeID, subject)
	if !exists {
		return true
	}
	return t.now().Sub(completedAt) > interval
}

// Clear removes the completion record for a specific work type/subject.
func (t *CompletionTracker) Clear(typeID, subject string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.completions, makeKey(typeID, subject))
}

// ClearByTypeID removes all completion records for a specific work type ID.
// This clears completions for all subjects of that type.
func (t *CompletionTracker) ClearByTypeID(typeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.completions {
		if key == typeID || strings.HasPrefix(key, typeID+":") {
			delete(t.completions, key)
		}
	}
}

// Snapshot returns every completion ordered by work ID.
func (t *CompletionTracker) Snapshot() []Completion {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Completion, 0, len(t.completions))
	for key, at := range t.completions {
		out = append(out, Completion{WorkID: key, CompletedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkID < out[j].WorkID })
	return out
}
