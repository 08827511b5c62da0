package scheduler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/utils"
)

// Handlers exposes the scheduled jobs over HTTP
type Handlers struct {
	scheduler *Scheduler
	log       zerolog.Logger
}

// NewHandlers creates the job handlers
func NewHandlers(scheduler *Scheduler, log zerolog.Logger) *Handlers {
	return &Handlers{
		scheduler: scheduler,
		log:       log.With().Str("handler", "jobs").Logger(),
	}
}

// RegisterRoutes registers the job routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", h.ListJobs)
		r.Post("/{name}/run", h.RunJob)
	})
}

// ListJobs handles GET /api/jobs
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	utils.WriteData(w, h.log, http.StatusOK, h.scheduler.Jobs())
}

// RunJob handles POST /api/jobs/{name}/run. The job runs synchronously.
func (h *Handlers) RunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.scheduler.RunNow(name); err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	utils.WriteData(w, h.log, http.StatusOK, map[string]string{"job": name, "status": "completed"})
}
