package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/sentinel/internal/api/v1"
	"github.com/gosuda/sentinel/internal/api/ws"
	"github.com/gosuda/sentinel/internal/engine"
)

func registerAuthRoutes(api huma.API, eng *engine.Engine) {
	v1.RegisterAuthRoutes(api, eng)
}

func registerAPIRoutes(api huma.API, eng *engine.Engine) {
	v1.RegisterSessionRoutes(api, eng)
	v1.RegisterEventRoutes(api, eng)
	v1.RegisterIntegrityRoutes(api, eng)
	v1.RegisterReportRoutes(api, eng)
	v1.RegisterIncidentRoutes(api, eng)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/incidents", hub.ServeIncidents)
}
