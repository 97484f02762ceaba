package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/appirio-tech/arena-farm-client/internal/invocation"
	"github.com/appirio-tech/arena-farm-client/internal/runtime"
	"github.com/appirio-tech/arena-farm-client/internal/scheduler"
	"github.com/appirio-tech/arena-farm-client/pkg/log"
)

// ProcessorsController serves remote processors: long-poll for work and
// report completions.
type ProcessorsController struct {
	rt     *runtime.Runtime
	logger log.Logger
}

// NewProcessorsController creates a new processors controller.
func NewProcessorsController(rt *runtime.Runtime, logger log.Logger) *ProcessorsController {
	return &ProcessorsController{rt: rt, logger: logger}
}

// RegisterRoutes registers processor routes with the given router.
func (c *ProcessorsController) RegisterRoutes(r chi.Router) {
	r.Post("/v1/processors/{id}/poll", c.handlePoll)
	r.Post("/v1/processors/{id}/complete", c.handleComplete)
}

// handlePoll reports the processor idle and waits up to wait_ms for an
// assignment. Answers 204 when nothing arrived in time.
func (c *ProcessorsController) handlePoll(w http.ResponseWriter, r *http.Request) {
	var body pollReq
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	proc := scheduler.Processor{
		ID:         chi.URLParam(r, "id"),
		Attributes: invocation.Attributes(body.Attributes),
	}
	wait := millis(body.WaitMs, c.rt.Config().Scheduler.PollWait.D())
	if maxWait := c.rt.Config().Scheduler.PollWait.D(); maxWait > 0 && wait > maxWait {
		wait = maxWait
	}
	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()

	a, err := c.rt.Scheduler().Next(ctx, proc)
	switch {
	case err == nil:
		if r.Context().Err() != nil {
			c.release(r, a)
			return
		}
		// A resent assignment gets a new token, so a late complete on the
		// old one is rejected rather than delivered twice.
		if err := writeJSONErr(w, http.StatusOK, toAssignmentDTO(a)); err != nil {
			c.release(r, a)
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeNoContent(w)
	default:
		writeErr(w, err)
	}
}

// release returns an assignment the poller never received.
func (c *ProcessorsController) release(r *http.Request, a *scheduler.Assignment) {
	logger := c.logger.WithContext(r.Context())
	if err := c.rt.Scheduler().Release(a.Token); err != nil {
		logger.Error("release failed", log.Str("key", a.Key), log.Err(err))
		return
	}
	logger.Info("assignment returned to queue",
		log.Str("processor", a.ProcessorID), log.Str("key", a.Key))
}

// handleComplete resolves an assignment by its token.
func (c *ProcessorsController) handleComplete(w http.ResponseWriter, r *http.Request) {
	var body completeReq
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	result := invocation.Result{Value: body.Value}
	if body.Error != "" {
		result.Err = errors.New(body.Error)
	}
	if err := c.rt.Scheduler().Complete(body.Token, result); err != nil {
		c.logger.WithContext(r.Context()).Warn("rejected completion",
			log.Str("processor", chi.URLParam(r, "id")), log.Str("token", body.Token), log.Err(err))
		writeErr(w, err)
		return
	}
	writeNoContent(w)
}
