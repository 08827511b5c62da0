package work

import (
	"context"
	"strings"
	"time"
)

// WorkTimeout is the maximum duration a work item can run before being cancelled.
const WorkTimeout = 10 * time.Minute

// MaxRetries is the maximum number of times a failed work item will be retried.
const MaxRetries = 5

// Priority defines the execution priority of work types.
type Priority int

const (
	// PriorityLow is for bookkeeping work (accuracy scoring).
	PriorityLow Priority = iota
	// PriorityMedium is for regular background work (reconciliation, forecasts).
	PriorityMedium
	// PriorityHigh is for work other types depend on (market refresh, repricing).
	PriorityHigh
	// PriorityCritical is for urgent manual work.
	PriorityCritical
)

// String returns a human-readable name for the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityMedium:
		return "Medium"
	case PriorityHigh:
		return "High"
	case PriorityCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// WorkType defines a type of work that can be executed.
// Work types are registered once and can generate multiple work items.
type WorkType struct {
	// ID is the unique identifier for this work type (e.g., "market:refresh", "forecast:generate").
	ID string

	// DependsOn lists work type IDs that must have completed before this work can run.
	// A dependency is met by a completion for the same subject or a global one.
	DependsOn []string

	// Interval is the minimum time between runs (0 = on-demand only).
	Interval time.Duration

	// Priority determines execution order when multiple work items are eligible.
	Priority Priority

	// FindSubjects returns subjects that need this work.
	// Returns []string{""} for global work, nil if no work needed.
	FindSubjects func() []string

	// Execute performs the work for a given subject.
	// Subject is empty string for global work, e.g. a horizon for per-horizon work.
	Execute func(ctx context.Context, subject string, progress *ProgressReporter) error
}

// Global is the FindSubjects of work that always runs once without a subject.
func Global() []string { return []string{""} }

// WorkItem represents a specific unit of work to be executed.
type WorkItem struct {
	// ID is the full work ID including subject (e.g., "forecast:generate:weekly").
	ID string

	// TypeID is the work type ID (e.g., "forecast:generate").
	TypeID string

	// Subject is empty for global work.
	Subject string

	// Retries is the number of times this item has been retried.
	Retries int

	// CreatedAt is when this work item was created.
	CreatedAt time.Time
}

// NewWorkItem creates a new work item from a work type and subject.
func NewWorkItem(workType *WorkType, subject string) *WorkItem {
	return &WorkItem{
		ID:        makeKey(workType.ID, subject),
		TypeID:    workType.ID,
		Subject:   subject,
		CreatedAt: time.Now(),
	}
}

// ParseWorkID extracts the work type ID and subject from a full work ID.
// For example, "forecast:generate:weekly" returns ("forecast:generate", "weekly").
// For "market:refresh", returns ("market:refresh", "").
func ParseWorkID(id string) (typeID string, subject string) {
	parts := strings.Split(id, ":")
	if len(parts) <= 2 {
		return id, ""
	}
	return strings.Join(parts[:len(parts)-1], ":"), parts[len(parts)-1]
}

// makeKey creates a unique key for a work type and subject combination.
func makeKey(typeID, subject string) string {
	if subject == "" {
		return typeID
	}
	return typeID + ":" + subject
}
