package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/appirio-tech/arena-farm-client/internal/invocation"
	"github.com/appirio-tech/arena-farm-client/internal/pending"
	"github.com/appirio-tech/arena-farm-client/internal/runtime"
	"github.com/appirio-tech/arena-farm-client/pkg/log"
)

// InvocationsController handles submission and the pending-request queries
// of clients.
type InvocationsController struct {
	rt     *runtime.Runtime
	logger log.Logger
}

// NewInvocationsController creates a new invocations controller.
func NewInvocationsController(rt *runtime.Runtime, logger log.Logger) *InvocationsController {
	return &InvocationsController{rt: rt, logger: logger}
}

// RegisterRoutes registers invocation routes with the given router.
//
// Client-scoped routes live under /v1/clients/{client}; the /v1/pending
// routes span every client.
func (c *InvocationsController) RegisterRoutes(r chi.Router) {
	r.Post("/v1/clients/{client}/invocations", c.handleSubmit)
	r.Get("/v1/clients/{client}/pending", c.handleList)
	r.Get("/v1/clients/{client}/pending/count", c.handleCount)
	r.Post("/v1/clients/{client}/pending/cancel", c.handleCancel)
	r.Get("/v1/clients/{client}/completed", c.handleCompleted)

	r.Get("/v1/pending", c.handleList)
	r.Get("/v1/pending/count", c.handleCount)
	r.Post("/v1/pending/cancel", c.handleCancel)
}

// handleSubmit schedules an invocation. Asynchronous submissions answer
// 202 at once; synchronous ones wait for the response up to timeout_ms.
func (c *InvocationsController) handleSubmit(w http.ResponseWriter, r *http.Request) {
	client := chi.URLParam(r, "client")
	var body submitReq
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req, err := c.rt.NewRequest(body.ID, body.Attachment, body.Invocation, body.Requirements)
	if err != nil {
		writeErr(w, err)
		return
	}

	sched := c.rt.Scheduler()
	if !body.Sync {
		if err := sched.Schedule(client, req); err != nil {
			writeErr(w, err)
			return
		}
		writeJSONStatus(w, http.StatusAccepted, submitResp{Key: clientKey(client, req.ID), RequestID: req.ID})
		return
	}

	h, err := sched.ScheduleSync(client, req)
	if err != nil {
		writeErr(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), millis(body.TimeoutMs, c.rt.Config().Scheduler.SyncTimeout.D()))
	defer cancel()
	resp, err := h.Wait(ctx)
	switch {
	case err == nil:
		writeJSON(w, toResponseDTO(resp))
	case errors.Is(err, invocation.ErrTimedOut):
		c.logger.WithContext(r.Context()).Debug("sync wait timed out", log.Str("client", client), log.Str("request", req.ID))
		writeErr(w, err)
	default:
		writeErr(w, err)
	}
}

func (c *InvocationsController) handleList(w http.ResponseWriter, r *http.Request) {
	refs := c.rt.Scheduler().List(chi.URLParam(r, "client"), r.URL.Query().Get("prefix"))
	writeJSON(w, listResp{Requests: toRefDTOs(refs)})
}

func (c *InvocationsController) handleCount(w http.ResponseWriter, r *http.Request) {
	n := c.rt.Scheduler().Count(chi.URLParam(r, "client"), r.URL.Query().Get("prefix"))
	writeJSON(w, countResp{Count: n})
}

func (c *InvocationsController) handleCancel(w http.ResponseWriter, r *http.Request) {
	client := chi.URLParam(r, "client")
	prefix := r.URL.Query().Get("prefix")
	n := c.rt.Scheduler().Cancel(client, prefix)
	if n > 0 {
		c.logger.WithContext(r.Context()).Info("pending requests cancelled", log.Str("client", client), log.Str("prefix", prefix), log.Int("count", n))
	}
	writeJSON(w, cancelResp{Cancelled: n})
}

// handleCompleted lists journaled outcomes ordered by request id.
func (c *InvocationsController) handleCompleted(w http.ResponseWriter, r *http.Request) {
	j := c.rt.Journal()
	if j == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	q := r.URL.Query()
	entries, err := j.List(r.Context(), chi.URLParam(r, "client"), q.Get("prefix"), parseLimit(q.Get("limit")))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]any{"entries": entries})
}

// clientKey renders the composite key for a response. Validation already
// happened in the scheduler.
func clientKey(client, id string) string {
	k, _ := pending.Key(client, id)
	return k
}
