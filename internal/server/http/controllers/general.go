package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/appirio-tech/arena-farm-client/internal/runtime"
)

// GeneralController handles health, stats and client settings.
type GeneralController struct {
	rt *runtime.Runtime
}

// NewGeneralController creates a new general controller.
func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

// RegisterRoutes registers general routes with the given router.
//
// This method sets up HTTP endpoints for:
// - Health checks (/v1/healthz)
// - Scheduler stats (/v1/stats)
// - Client settings (/v1/clients/{client})
func (c *GeneralController) RegisterRoutes(r chi.Router) {
	r.Get("/v1/healthz", c.handleHealth)
	r.Get("/v1/stats", c.handleStats)
	r.Get("/v1/clients/{client}", c.handleGetClient)
	r.Put("/v1/clients/{client}", c.handlePutClient)
}

// handleHealth returns 200 OK with {"status": "ok"} if healthy, 503 otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (c *GeneralController) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, c.rt.Scheduler().Stats())
}

func (c *GeneralController) handleGetClient(w http.ResponseWriter, r *http.Request) {
	client := chi.URLParam(r, "client")
	m, _, err := c.rt.Client(client)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load client")
		return
	}
	writeJSON(w, clientResp{
		Name:              client,
		Priority:          m.Priority,
		EffectivePriority: c.rt.Scheduler().Priority(client),
		CreatedAtMs:       m.CreatedAtMs,
		UpdatedAtMs:       m.UpdatedAtMs,
	})
}

// handlePutClient stores the client's priority class. A null priority
// reverts the client to the configured default.
func (c *GeneralController) handlePutClient(w http.ResponseWriter, r *http.Request) {
	client := chi.URLParam(r, "client")
	var req clientReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	m, err := c.rt.SetClientPriority(client, req.Priority)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, clientResp{
		Name:              m.Name,
		Priority:          m.Priority,
		EffectivePriority: c.rt.Scheduler().Priority(client),
		CreatedAtMs:       m.CreatedAtMs,
		UpdatedAtMs:       m.UpdatedAtMs,
	})
}
