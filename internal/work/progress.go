package work

import (
	"sync"
	"time"

	"github.com/aristath/reseller/internal/events"
)

const module = "work"

// progressThrottleInterval bounds how often progress events are emitted.
const progressThrottleInterval = 100 * time.Millisecond

// EventEmitter publishes work lifecycle events.
type EventEmitter interface {
	Emit(eventType events.EventType, module string, data interface{})
}

// ProgressReporter provides progress reporting for one work item.
// A nil reporter, or one without an emitter, discards everything.
type ProgressReporter struct {
	emitter  EventEmitter
	workID   string
	workType string
	subject  string

	lastReport time.Time
	mu         sync.Mutex
}

// NewProgressReporter creates a new progress reporter for a work item
func NewProgressReporter(emitter EventEmitter, item *WorkItem) *ProgressReporter {
	return &ProgressReporter{
		emitter:  emitter,
		workID:   item.ID,
		workType: item.TypeID,
		subject:  item.Subject,
	}
}

// Report reports numeric progress (current/total) with a message.
func (r *ProgressReporter) Report(current, total int, message string) {
	r.ReportWithDetails(current, total, message, nil)
}

// ReportPhase reports a named phase for work without numeric progress.
func (r *ProgressReporter) ReportPhase(phase, message string) {
	r.emitThrottled(events.WorkData{Phase: phase, Message: message})
}

// ReportWithDetails reports progress with additional key-value details.
func (r *ProgressReporter) ReportWithDetails(current, total int, message string, details map[string]any) {
	r.emitThrottled(events.WorkData{Current: current, Total: total, Message: message, Details: details})
}

func (r *ProgressReporter) emitThrottled(e events.WorkData) {
	if r == nil || r.emitter == nil {
		return
	}

	r.mu.Lock()
	if time.Since(r.lastReport) < progressThrottleInterval {
		r.mu.Unlock()
		return
	}
	r.lastReport = time.Now()
	r.mu.Unlock()

	e.WorkID, e.WorkType, e.Subject = r.workID, r.workType, r.subject
	r.emitter.Emit(events.WorkProgress, module, e)
}

func (r *ProgressReporter) data() events.WorkData {
	return events.WorkData{WorkID: r.workID, WorkType: r.workType, Subject: r.subject}
}

func (r *ProgressReporter) emitStarted() {
	if r == nil || r.emitter == nil {
		return
	}
	r.emitter.Emit(events.WorkStarted, module, r.data())
}

func (r *ProgressReporter) emitCompleted(duration time.Duration) {
	if r == nil || r.emitter == nil {
		return
	}
	data := r.data()
	data.DurationMs = duration.Milliseconds()
	r.emitter.Emit(events.WorkCompleted, module, data)
}

func (r *ProgressReporter) emitFailed(err error, duration time.Duration, retries int) {
	if r == nil || r.emitter == nil {
		return
	}

	data := r.data()
	if err != nil {
		data.Error = err.Error()
	}
	data.DurationMs = duration.Milliseconds()
	data.Retries = retries
	r.emitter.Emit(events.WorkFailed, module, data)
}
