package controllers

import (
	"github.com/go-chi/chi/v5"

	"github.com/appirio-tech/arena-farm-client/internal/runtime"
	"github.com/appirio-tech/arena-farm-client/pkg/log"
)

// ControllerRegistry manages all HTTP controllers.
//
// It provides a centralized way to register all controller routes
// and manages the lifecycle of individual controllers.
type ControllerRegistry struct {
	general     *GeneralController
	invocations *InvocationsController
	processors  *ProcessorsController
}

// NewControllerRegistry creates a new controller registry.
func NewControllerRegistry(rt *runtime.Runtime, logger log.Logger) *ControllerRegistry {
	return &ControllerRegistry{
		general:     NewGeneralController(rt),
		invocations: NewInvocationsController(rt, logger),
		processors:  NewProcessorsController(rt, logger),
	}
}

// RegisterAllRoutes registers all controller routes with the given router.
//
// This sets up general endpoints (health, stats, client settings),
// invocation submission and pending-request management, and the
// processor poll/complete protocol.
func (r *ControllerRegistry) RegisterAllRoutes(router chi.Router) {
	r.general.RegisterRoutes(router)
	r.invocations.RegisterRoutes(router)
	r.processors.RegisterRoutes(router)
}
