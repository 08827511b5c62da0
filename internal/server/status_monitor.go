package server

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/events"
)

// StatusMonitor periodically checks database health and emits events on changes
type StatusMonitor struct {
	events  *events.Bus
	system  *SystemHandlers
	log     zerolog.Logger
	stop    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	checked bool
	healthy bool
	failing string
}

// NewStatusMonitor creates a new status monitor
func NewStatusMonitor(bus *events.Bus, system *SystemHandlers, log zerolog.Logger) *StatusMonitor {
	return &StatusMonitor{
		events: bus,
		system: system,
		log:    log.With().Str("component", "status_monitor").Logger(),
		stop:   make(chan struct{}),
	}
}

// Start begins periodic status monitoring
func (m *StatusMonitor) Start(interval time.Duration) {
	go m.monitor(interval)
}

// Stop ends monitoring. Safe to call more than once.
func (m *StatusMonitor) Stop() {
	m.once.Do(func() { close(m.stop) })
}

func (m *StatusMonitor) monitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.checkStatus()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.checkStatus()
		}
	}
}

// checkStatus emits SystemStatus on the first check and whenever health changes.
func (m *StatusMonitor) checkStatus() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var failing []string
	for _, d := range m.system.checkDatabases(ctx) {
		if !d.Healthy {
			failing = append(failing, d.Name)
		}
	}
	healthy := len(failing) == 0
	key := strings.Join(failing, ",")

	m.mu.Lock()
	changed := !m.checked || healthy != m.healthy || key != m.failing
	m.checked, m.healthy, m.failing = true, healthy, key
	m.mu.Unlock()

	if !changed {
		return
	}
	if healthy {
		m.log.Info().Msg("System healthy")
	} else {
		m.log.Warn().Strs("failing", failing).Msg("System degraded")
	}
	m.events.Emit(events.SystemStatus, "system", events.SystemStatusData{Healthy: healthy, Failing: failing})
}
