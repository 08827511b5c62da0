package server

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/reseller/internal/database"
	"github.com/aristath/reseller/internal/utils"
	"github.com/aristath/reseller/internal/work"
)

// WorkStatusProvider reports the work processor's queue.
type WorkStatusProvider interface {
	Status() work.Status
}

// SystemHandlers serves health and status endpoints.
type SystemHandlers struct {
	log       zerolog.Logger
	databases map[string]*database.DB
	work      WorkStatusProvider
	startedAt time.Time

	// cpuSample is swapped in tests; gopsutil blocks for the sample interval.
	cpuSample func() (float64, float64)
}

// DatabaseHealth is one database's health result.
type DatabaseHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// SystemStatusResponse is the payload of GET /api/system/status.
type SystemStatusResponse struct {
	Status        string           `json:"status"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	CPUPercent    float64          `json:"cpu_percent"`
	MemoryPercent float64          `json:"memory_percent"`
	Goroutines    int              `json:"goroutines"`
	Databases     []DatabaseHealth `json:"databases"`
	Work          *work.Status     `json:"work,omitempty"`
}

// NewSystemHandlers creates the system handlers. work may be nil.
func NewSystemHandlers(log zerolog.Logger, databases map[string]*database.DB, work WorkStatusProvider) *SystemHandlers {
	h := &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		databases: databases,
		work:      work,
		startedAt: time.Now(),
	}
	h.cpuSample = h.getSystemStats
	return h
}

// checkDatabases runs QuickCheck on every database concurrently, sorted by name.
func (h *SystemHandlers) checkDatabases(ctx context.Context) []DatabaseHealth {
	names := lo.Keys(h.databases)
	sort.Strings(names)

	results := make([]DatabaseHealth, len(names))
	g := new(errgroup.Group)
	for i, name := range names {
		g.Go(func() error {
			db := h.databases[name]
			if db == nil {
				results[i] = DatabaseHealth{Name: name, Error: "not configured"}
				return nil
			}
			if err := db.QuickCheck(ctx); err != nil {
				results[i] = DatabaseHealth{Name: name, Error: err.Error()}
				return nil
			}
			results[i] = DatabaseHealth{Name: name, Healthy: true}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// HandleHealth handles GET /api/system/health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	dbs := h.checkDatabases(ctx)
	healthy := lo.EveryBy(dbs, func(d DatabaseHealth) bool { return d.Healthy })

	status := http.StatusOK
	body := map[string]interface{}{"status": "healthy", "databases": dbs}
	if !healthy {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
	}
	utils.WriteJSON(w, h.log, status, body)
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	resp := h.GetSystemStatusSnapshot(r.Context())
	utils.WriteData(w, h.log, http.StatusOK, resp)
}

// GetSystemStatusSnapshot collects the current system status.
func (h *SystemHandlers) GetSystemStatusSnapshot(ctx context.Context) SystemStatusResponse {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cpuPercent, memPercent := h.cpuSample()
	resp := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
		Databases:     h.checkDatabases(ctx),
	}
	for _, d := range resp.Databases {
		if !d.Healthy {
			resp.Status = "degraded"
		}
	}
	if h.work != nil {
		status := h.work.Status()
		resp.Work = &status
	}
	return resp
}

// HandleDatabaseStats handles GET /api/system/databases
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	names := lo.Keys(h.databases)
	sort.Strings(names)

	stats := make([]*database.Stats, 0, len(names))
	for _, name := range names {
		db := h.databases[name]
		if db == nil {
			continue
		}
		s, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to get database stats")
			continue
		}
		stats = append(stats, s)
	}
	utils.WriteData(w, h.log, http.StatusOK, stats)
}

// getSystemStats samples CPU over 100ms and reads memory usage.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}
