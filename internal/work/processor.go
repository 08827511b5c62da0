package work

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/domain"
)

// ErrAlreadyRunning is returned by ExecuteNow when the same item is in flight.
var ErrAlreadyRunning = errors.New("work item already running")

// Processor is the main work processor that executes work items.
// It processes one work item at a time, respecting priorities, intervals and dependencies.
type Processor struct {
	registry   *Registry
	completion *CompletionTracker
	emitter    EventEmitter
	timeout    time.Duration
	log        zerolog.Logger

	trigger    chan struct{}
	done       chan struct{}
	stop       chan struct{}
	stopped    chan struct{}
	stopOnce   sync.Once
	retryQueue []*WorkItem
	inFlight   map[string]bool
	exhausted  map[string]time.Time // items that ran out of retries, by failure time
	onComplete []func(*WorkItem)
	mu         sync.Mutex
}

// Status is a point-in-time view of the processor.
type Status struct {
	InFlight    []string     `json:"in_flight"`
	Retrying    []string     `json:"retrying"`
	Completions []Completion `json:"completions"`
}

// NewProcessor creates a new work processor. emitter may be nil.
func NewProcessor(registry *Registry, completion *CompletionTracker, emitter EventEmitter, log zerolog.Logger) *Processor {
	return &Processor{
		registry:   registry,
		completion: completion,
		emitter:    emitter,
		timeout:    WorkTimeout,
		log:        log.With().Str("component", "work_processor").Logger(),
		trigger:    make(chan struct{}, 1),
		done:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
		retryQueue: make([]*WorkItem, 0),
		inFlight:   make(map[string]bool),
		exhausted:  make(map[string]time.Time),
	}
}

// WithTimeout overrides the per-item timeout.
func (p *Processor) WithTimeout(timeout time.Duration) *Processor {
	p.timeout = timeout
	return p
}

// OnCompleted registers fn to run after every successful item.
// Must be called before Run.
func (p *Processor) OnCompleted(fn func(*WorkItem)) {
	p.onComplete = append(p.onComplete, fn)
}

// Run starts the processor loop. This blocks until Stop() is called.
func (p *Processor) Run() {
	defer close(p.stopped)

	for {
		select {
		case <-p.stop:
			return
		case <-p.trigger:
			p.processOne()
		case <-p.done:
			p.processOne()
		}
	}
}

// Stop stops the processor. Items already running are not interrupted.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		<-p.stopped
	})
}

// Trigger wakes up the processor to check for work.
// This is non-blocking and can be called from any goroutine.
func (p *Processor) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
		// Trigger already pending
	}
}

// ExecuteNow runs a work type synchronously, bypassing interval and dependency checks.
// This is used for manual triggers via the API.
func (p *Processor) ExecuteNow(ctx context.Context, workTypeID, subject string) error {
	wt := p.registry.Get(workTypeID)
	if wt == nil {
		return domain.NotFoundError{Entity: "work type", Key: workTypeID}
	}

	item := NewWorkItem(wt, subject)
	if !p.claim(item) {
		return fmt.Errorf("%s: %w", item.ID, ErrAlreadyRunning)
	}
	defer p.release(item)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.execute(ctx, item, wt)
}

// Status reports in-flight and retrying items and every completion.
func (p *Processor) Status() Status {
	p.mu.Lock()
	inFlight := make([]string, 0, len(p.inFlight))
	for id := range p.inFlight {
		inFlight = append(inFlight, id)
	}
	retrying := make([]string, 0, len(p.retryQueue))
	for _, item := range p.retryQueue {
		retrying = append(retrying, item.ID)
	}
	p.mu.Unlock()

	sort.Strings(inFlight)
	return Status{InFlight: inFlight, Retrying: retrying, Completions: p.completion.Snapshot()}
}

// processOne finds and starts the next eligible work item.
func (p *Processor) processOne() {
	p.mu.Lock()
	busy := len(p.inFlight) > 0
	p.mu.Unlock()
	if busy {
		return
	}

	item, wt := p.findNextWork()
	if item == nil {
		item, wt = p.popRetryQueue()
	}
	if item == nil || !p.claim(item) {
		return
	}

	go func() {
		defer func() {
			p.release(item)
			select {
			case p.done <- struct{}{}:
			default:
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		if err := p.execute(ctx, item, wt); err != nil {
			item.Retries++
			if item.Retries < MaxRetries {
				p.pushRetryQueue(item)
			} else {
				p.markExhausted(item)
				p.log.Warn().Str("work", item.ID).Int("retries", item.Retries).Msg("Max retries reached, waiting for next interval")
			}
		}
	}()
}

// execute runs one item, records the completion and emits its lifecycle events.
func (p *Processor) execute(ctx context.Context, item *WorkItem, wt *WorkType) error {
	progress := NewProgressReporter(p.emitter, item)
	progress.emitStarted()
	start := time.Now()

	err := wt.Execute(ctx, item.Subject, progress)
	duration := time.Since(start)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			p.log.Error().Str("work", item.ID).Dur("timeout", p.timeout).Msg("Work timed out")
		} else {
			p.log.Error().Err(err).Str("work", item.ID).Msg("Work failed")
		}
		progress.emitFailed(err, duration, item.Retries)
		return err
	}

	p.completion.MarkCompleted(item)
	p.mu.Lock()
	delete(p.exhausted, item.ID)
	p.mu.Unlock()
	progress.emitCompleted(duration)
	p.log.Debug().Str("work", item.ID).Dur("duration", duration).Msg("Work completed")
	for _, fn := range p.onComplete {
		fn(item)
	}
	return nil
}

// findNextWork finds the next work item to execute.
func (p *Processor) findNextWork() (*WorkItem, *WorkType) {
	for _, wt := range p.registry.ByPriority() {
		subjects := wt.FindSubjects()
		for _, subject := range subjects {
			if wt.Interval == 0 {
				// On-demand work only runs through ExecuteNow
				break
			}
			if !p.completion.IsStale(wt.ID, subject, wt.Interval) {
				continue
			}
			if p.isRetrying(makeKey(wt.ID, subject)) || p.isExhausted(makeKey(wt.ID, subject), wt.Interval) {
				continue
			}
			if !p.dependenciesMet(wt, subject) {
				continue
			}
			return NewWorkItem(wt, subject), wt
		}
	}
	return nil, nil
}

// dependenciesMet checks that every dependency completed, for the same subject or globally.
func (p *Processor) dependenciesMet(wt *WorkType, subject string) bool {
	for _, depID := range wt.DependsOn {
		if _, ok := p.completion.GetCompletion(depID, subject); ok {
			continue
		}
		if _, ok := p.completion.GetCompletion(depID, ""); ok {
			continue
		}
		return false
	}
	return true
}

func (p *Processor) claim(item *WorkItem) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inFlight[item.ID] {
		return false
	}
	p.inFlight[item.ID] = true
	return true
}

func (p *Processor) release(item *WorkItem) {
	p.mu.Lock()
	delete(p.inFlight, item.ID)
	p.mu.Unlock()
}

func (p *Processor) isRetrying(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, item := range p.retryQueue {
		if item.ID == id {
			return true
		}
	}
	return false
}

func (p *Processor) markExhausted(item *WorkItem) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.exhausted[item.ID] = time.Now()
}

func (p *Processor) isExhausted(id string, interval time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	failedAt, ok := p.exhausted[id]
	return ok && time.Since(failedAt) <= interval
}

func (p *Processor) pushRetryQueue(item *WorkItem) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.retryQueue = append(p.retryQueue, item)
}

// popRetryQueue removes and returns the first item from the retry queue.
func (p *Processor) popRetryQueue() (*WorkItem, *WorkType) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.retryQueue) > 0 {
		item := p.retryQueue[0]
		p.retryQueue = p.retryQueue[1:]
		if wt := p.registry.Get(item.TypeID); wt != nil {
			return item, wt
		}
	}
	return nil, nil
}
