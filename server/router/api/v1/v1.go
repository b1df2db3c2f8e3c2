// Package v1 exposes the REST API surface.
package v1

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/semaphore"

	"github.com/voxmate/voxmate/internal/profile"
	"github.com/voxmate/voxmate/plugin/llm"
	"github.com/voxmate/voxmate/store"
)

type APIV1Service struct {
	Profile         *profile.Profile
	Store           *store.Store
	DialogueService *DialogueService
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, generator llm.Generator) *APIV1Service {
	return &APIV1Service{
		Profile: profile,
		Store:   store,
		DialogueService: &DialogueService{
			Profile:   profile,
			Store:     store,
			Generator: generator,
			// Bound concurrent generation calls so a burst of sessions cannot
			// exhaust the provider quota in one sweep.
			llmSemaphore: semaphore.NewWeighted(4),
			sessions:     make(map[string]*sessionHandle),
		},
	}
}

// RegisterRoutes attaches all v1 routes to the given Echo instance.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	group := echoServer.Group("/api/v1")
	group.Use(middleware.CORS())

	group.GET("/scenarios", s.DialogueService.ListScenarios)
	group.GET("/calls", s.DialogueService.ListCallRecords)

	group.POST("/sessions", s.DialogueService.CreateSession)
	group.GET("/sessions/:uid/turns", s.DialogueService.GetSessionTurns)
	group.POST("/sessions/:uid/turns", s.DialogueService.CreateTurn)
	group.POST("/sessions/:uid/exit", s.DialogueService.ExitSession)
}
