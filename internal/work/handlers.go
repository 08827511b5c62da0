package work

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/utils"
)

// Handlers provides HTTP handlers for the work processor
type Handlers struct {
	processor *Processor
	registry  *Registry
	log       zerolog.Logger
}

// NewHandlers creates new HTTP handlers for the work processor
func NewHandlers(processor *Processor, registry *Registry, log zerolog.Logger) *Handlers {
	return &Handlers{
		processor: processor,
		registry:  registry,
		log:       log.With().Str("handler", "work").Logger(),
	}
}

// RegisterRoutes registers HTTP routes for work management
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/work", func(r chi.Router) {
		r.Get("/types", h.ListWorkTypes)
		r.Get("/status", h.GetStatus)
		r.Post("/trigger", h.TriggerProcessor)
		r.Post("/{workType}/execute", h.ExecuteWorkType)
		r.Post("/{workType}/{subject}/execute", h.ExecuteWorkType)
	})
}

type workTypeView struct {
	ID        string   `json:"id"`
	Priority  string   `json:"priority"`
	Interval  string   `json:"interval"`
	DependsOn []string `json:"depends_on"`
}

// ListWorkTypes returns all registered work types
func (h *Handlers) ListWorkTypes(w http.ResponseWriter, r *http.Request) {
	types := h.registry.ByPriority()

	response := make([]workTypeView, 0, len(types))
	for _, wt := range types {
		deps := wt.DependsOn
		if deps == nil {
			deps = []string{}
		}
		response = append(response, workTypeView{
			ID:        wt.ID,
			Priority:  wt.Priority.String(),
			Interval:  wt.Interval.String(),
			DependsOn: deps,
		})
	}
	utils.WriteData(w, h.log, http.StatusOK, response)
}

// GetStatus returns in-flight and retrying work and the last completions
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	utils.WriteData(w, h.log, http.StatusOK, h.processor.Status())
}

// ExecuteWorkType runs a work type synchronously, with an optional subject
func (h *Handlers) ExecuteWorkType(w http.ResponseWriter, r *http.Request) {
	workType := chi.URLParam(r, "workType")
	subject := chi.URLParam(r, "subject")

	err := h.processor.ExecuteNow(r.Context(), workType, subject)
	if errors.Is(err, ErrAlreadyRunning) {
		utils.WriteJSON(w, h.log, http.StatusConflict, map[string]interface{}{
			"error": map[string]interface{}{
				"message": err.Error(),
				"code":    "ALREADY_RUNNING",
			},
		})
		return
	}
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}

	utils.WriteData(w, h.log, http.StatusOK, map[string]string{
		"status":    "executed",
		"work_type": workType,
		"subject":   subject,
	})
}

// TriggerProcessor triggers the processor to check for work
func (h *Handlers) TriggerProcessor(w http.ResponseWriter, r *http.Request) {
	h.processor.Trigger()
	utils.WriteData(w, h.log, http.StatusAccepted, map[string]string{"status": "triggered"})
}
