// Package v1 exposes the REST + SSE surface of the panel server.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/expertpanel/internal/profile"
	"github.com/hrygo/expertpanel/plugin/llm"
	"github.com/hrygo/expertpanel/server/eventlog"
	"github.com/hrygo/expertpanel/server/middleware"
	"github.com/hrygo/expertpanel/server/orchestrator"
	"github.com/hrygo/expertpanel/store"
)

// storageModeHeader reports the session store capability on responses, for
// diagnostics.
const storageModeHeader = "X-Storage-Mode"

type APIV1Service struct {
	Profile      *profile.Profile
	Store        *store.Store
	Log          *eventlog.Log
	Orchestrator *orchestrator.Orchestrator

	submitLimiter *middleware.RateLimiter
}

// NewAPIV1Service wires the API service.
func NewAPIV1Service(p *profile.Profile, s *store.Store, log *eventlog.Log, svc llm.Service) *APIV1Service {
	return &APIV1Service{
		Profile:       p,
		Store:         s,
		Log:           log,
		Orchestrator:  orchestrator.New(s, log, svc),
		submitLimiter: middleware.NewRateLimiter(),
	}
}

// RegisterRoutes registers all v1 handlers on the echo instance.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.POST("/sessions", s.createSession)
	g.GET("/sessions/:id", s.getSession)
	g.GET("/presets", s.listPresets)
	g.POST("/messages", s.submitMessage)
	g.GET("/stream", s.streamEvents)
	g.GET("/stats", s.getStats)
}

// getStats reports step and turn counters for diagnostics.
func (s *APIV1Service) getStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Orchestrator.Metrics().Snapshot())
}

func (s *APIV1Service) withStorageMode(c echo.Context) {
	c.Response().Header().Set(storageModeHeader, s.Store.Capability())
}
