// internal/controller/vendor_controller.go
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/vendor-outreach/internal/errors"
	"github.com/unclebandit/vendor-outreach/internal/logger"
	"github.com/unclebandit/vendor-outreach/internal/model"
	"github.com/unclebandit/vendor-outreach/internal/repository"
	"github.com/unclebandit/vendor-outreach/internal/service"
)

// VendorController is the admin surface the CRM uses to drive vendor lifecycles.
type VendorController struct {
	Lifecycle    *service.LifecycleService
	Orchestrator *service.Orchestrator
	Tasks        repository.TaskRepositoryInterface
	Audit        repository.AuditRepositoryInterface
	// Health checks backing services; nil means always healthy.
	Health func(ctx context.Context) error
}

func (c *VendorController) Register(r chi.Router) {
	r.Get("/healthz", c.Healthz)
	r.Route("/vendors/{id}", func(r chi.Router) {
		r.Post("/status", c.TransitionStatus)
		r.Post("/cancel", c.CancelCampaign)
		r.Get("/tasks", c.ListTasks)
		r.Get("/activity", c.ListActivity)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case appErrors.IsVendorNotFound(err), appErrors.IsTaskNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, appErrors.ErrInvalidStatus):
		status = http.StatusBadRequest
	case errors.Is(err, appErrors.ErrVersionConflict):
		status = http.StatusConflict
	default:
		logger.GetAppLogger().WithError(err).Error("request failed")
	}
	http.Error(w, err.Error(), status)
}

func (c *VendorController) TransitionStatus(w http.ResponseWriter, r *http.Request) {
	vendorID := chi.URLParam(r, "id")

	var body struct {
		Status model.VendorStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	ev, err := c.Lifecycle.TransitionStatus(r.Context(), vendorID, body.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (c *VendorController) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	vendorID := chi.URLParam(r, "id")

	n, err := c.Orchestrator.CancelCampaign(r.Context(), vendorID, "cancelled by operator")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"vendor_id": vendorID,
		"cancelled": n,
	})
}

func (c *VendorController) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := c.Tasks.ListBySubject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": tasks})
}

func (c *VendorController) ListActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := c.Audit.ListBySubject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": entries})
}

func (c *VendorController) Healthz(w http.ResponseWriter, r *http.Request) {
	if c.Health != nil {
		if err := c.Health(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
