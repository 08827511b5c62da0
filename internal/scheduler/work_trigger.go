package scheduler

// Triggerable is anything that can be woken to look for due work.
type Triggerable interface {
	Trigger()
}

// WorkTriggerJob wakes the work processor on a schedule so interval-based
// work is picked up even when no event arrives.
type WorkTriggerJob struct {
	target Triggerable
}

// NewWorkTriggerJob creates a job that triggers target.
func NewWorkTriggerJob(target Triggerable) *WorkTriggerJob {
	return &WorkTriggerJob{target: target}
}

// Name returns the job name
func (j *WorkTriggerJob) Name() string {
	return "work_trigger"
}

// Run triggers the processor. It never blocks.
func (j *WorkTriggerJob) Run() error {
	j.target.Trigger()
	return nil
}
