package controllers

import (
	"net/http"

	"github.com/rzbill/dispatch/internal/runtime"
	dispatchsvc "github.com/rzbill/dispatch/internal/services/dispatch"
	logpkg "github.com/rzbill/dispatch/pkg/log"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general  *GeneralController
	dispatch *DispatchController
}

// NewControllerRegistry creates a new controller registry.
func NewControllerRegistry(rt *runtime.Runtime, svc *dispatchsvc.Service, logger logpkg.Logger) *ControllerRegistry {
	return &ControllerRegistry{
		general:  NewGeneralController(rt),
		dispatch: NewDispatchController(svc, logger),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.dispatch.RegisterRoutes(mux)
}
