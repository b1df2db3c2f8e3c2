package v1

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/voxmate/voxmate/internal/profile"
	"github.com/voxmate/voxmate/plugin/llm"
	"github.com/voxmate/voxmate/server/service/dialogue"
	"github.com/voxmate/voxmate/store"
)

// DialogueService owns the live session registry and persists finished
// sessions as call records.
type DialogueService struct {
	Profile   *profile.Profile
	Store     *store.Store
	Generator llm.Generator

	llmSemaphore *semaphore.Weighted

	mu       sync.Mutex
	sessions map[string]*sessionHandle
}

type sessionHandle struct {
	orchestrator *dialogue.Orchestrator
}

type createSessionRequest struct {
	ScenarioUID string `json:"scenarioUid"`
}

type createTurnRequest struct {
	Text string `json:"text"`
}

type exitSessionRequest struct {
	SaveForLater bool `json:"saveForLater"`
}

type sessionResponse struct {
	Session dialogue.Session `json:"session"`
	Turns   []dialogue.Turn  `json:"turns"`
}

// CreateSession starts a new session for a scenario and produces its opening
// turn.
// POST /api/v1/sessions
func (s *DialogueService) CreateSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.ScenarioUID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "scenarioUid is required"})
	}

	scenario, err := s.loadScenario(ctx, req.ScenarioUID)
	if err != nil {
		slog.Error("failed to load scenario", slog.String("scenario", req.ScenarioUID), slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load scenario"})
	}
	if scenario == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "scenario not found"})
	}

	orchestrator := dialogue.NewOrchestrator(scenario, s.Generator,
		dialogue.WithTurnLimit(s.Profile.SessionTurnLimit),
		dialogue.WithCompletionListener(s.persistCompletion))

	if err := s.withGenerationSlot(ctx, func() error {
		return orchestrator.Start(ctx)
	}); err != nil {
		slog.Error("failed to start session", slog.String("scenario", req.ScenarioUID), slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to start session"})
	}

	session := orchestrator.Session()
	s.mu.Lock()
	s.sessions[session.UID] = &sessionHandle{orchestrator: orchestrator}
	s.mu.Unlock()

	return c.JSON(http.StatusOK, sessionResponse{
		Session: session,
		Turns:   orchestrator.Turns(),
	})
}

// CreateTurn submits the learner's utterance and returns the updated
// transcript. A turn arriving while one is outstanding gets 409 and is
// dropped.
// POST /api/v1/sessions/:uid/turns
func (s *DialogueService) CreateTurn(c echo.Context) error {
	ctx := c.Request().Context()

	handle := s.lookup(c.Param("uid"))
	if handle == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}

	var req createTurnRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "text is required"})
	}

	err := s.withGenerationSlot(ctx, func() error {
		return handle.orchestrator.UserResponded(ctx, req.Text)
	})
	switch {
	case errors.Is(err, dialogue.ErrTurnInFlight):
		return c.JSON(http.StatusConflict, map[string]string{"error": "a turn is already in flight"})
	case errors.Is(err, dialogue.ErrSessionNotActive):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session is not active"})
	case err != nil:
		slog.Error("failed to process turn", slog.String("session", c.Param("uid")), slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to process turn"})
	}

	return c.JSON(http.StatusOK, sessionResponse{
		Session: handle.orchestrator.Session(),
		Turns:   handle.orchestrator.Turns(),
	})
}

// GetSessionTurns returns the session transcript.
// GET /api/v1/sessions/:uid/turns
func (s *DialogueService) GetSessionTurns(c echo.Context) error {
	handle := s.lookup(c.Param("uid"))
	if handle == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}
	return c.JSON(http.StatusOK, sessionResponse{
		Session: handle.orchestrator.Session(),
		Turns:   handle.orchestrator.Turns(),
	})
}

// ExitSession ends a session early, optionally saving progress.
// POST /api/v1/sessions/:uid/exit
func (s *DialogueService) ExitSession(c echo.Context) error {
	uid := c.Param("uid")
	handle := s.lookup(uid)
	if handle == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}

	var req exitSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	handle.orchestrator.Exit(req.SaveForLater)

	s.mu.Lock()
	delete(s.sessions, uid)
	s.mu.Unlock()

	return c.JSON(http.StatusOK, sessionResponse{
		Session: handle.orchestrator.Session(),
		Turns:   handle.orchestrator.Turns(),
	})
}

// ListScenarios lists available scenarios.
// GET /api/v1/scenarios
func (s *DialogueService) ListScenarios(c echo.Context) error {
	ctx := c.Request().Context()

	list, err := s.Store.ListScenarios(ctx, &store.FindScenario{})
	if err != nil {
		slog.Error("failed to list scenarios", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list scenarios"})
	}

	type scenarioSummary struct {
		UID       string `json:"uid"`
		Title     string `json:"title"`
		TurnLimit int    `json:"turnLimit"`
	}
	summaries := make([]scenarioSummary, 0, len(list))
	for _, scenario := range list {
		summaries = append(summaries, scenarioSummary{
			UID:       scenario.UID,
			Title:     scenario.Title,
			TurnLimit: scenario.TurnLimit,
		})
	}

	return c.JSON(http.StatusOK, map[string]any{"scenarios": summaries})
}

// ListCallRecords lists finished session records, newest first.
// GET /api/v1/calls
func (s *DialogueService) ListCallRecords(c echo.Context) error {
	ctx := c.Request().Context()

	find := &store.FindCallRecord{}
	if scenarioUID := c.QueryParam("scenarioUid"); scenarioUID != "" {
		find.ScenarioUID = &scenarioUID
	}

	list, err := s.Store.ListCallRecords(ctx, find)
	if err != nil {
		slog.Error("failed to list call records", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list call records"})
	}

	type callRecordResponse struct {
		UID           string `json:"uid"`
		ScenarioUID   string `json:"scenarioUid"`
		Mode          string `json:"mode"`
		Status        string `json:"status"`
		TurnCount     int    `json:"turnCount"`
		WrongAttempts int    `json:"wrongAttempts"`
		Score         int    `json:"score"`
		CreatedTs     int64  `json:"createdTs"`
	}
	records := make([]callRecordResponse, 0, len(list))
	for _, record := range list {
		records = append(records, callRecordResponse{
			UID:           record.UID,
			ScenarioUID:   record.ScenarioUID,
			Mode:          record.Mode,
			Status:        record.Status,
			TurnCount:     record.TurnCount,
			WrongAttempts: record.WrongAttempts,
			Score:         record.Score,
			CreatedTs:     record.CreatedTs,
		})
	}

	return c.JSON(http.StatusOK, map[string]any{"calls": records})
}

func (s *DialogueService) lookup(uid string) *sessionHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[uid]
}

// withGenerationSlot runs fn under the generation semaphore so concurrent
// sessions cannot stampede the provider.
func (s *DialogueService) withGenerationSlot(ctx context.Context, fn func() error) error {
	if err := s.llmSemaphore.Acquire(ctx, 1); err != nil {
		return errors.Wrap(err, "failed to acquire generation slot")
	}
	defer s.llmSemaphore.Release(1)
	return fn()
}

// persistCompletion writes a finished or paused session to the store. It runs
// on the orchestrator's goroutine, detached from any request context.
func (s *DialogueService) persistCompletion(event dialogue.CompletionEvent) {
	record := &store.CallRecord{
		UID:           event.SessionUID,
		ScenarioUID:   event.ScenarioUID,
		Mode:          string(event.Mode),
		Status:        string(event.Status),
		TurnCount:     event.TurnCount,
		WrongAttempts: event.TotalWrongAttempts,
		Score:         event.Score,
	}
	if _, err := s.Store.CreateCallRecord(context.Background(), record); err != nil {
		slog.Error("failed to persist call record",
			slog.String("session", event.SessionUID),
			slog.Any("error", err))
	}
}

func (s *DialogueService) loadScenario(ctx context.Context, uid string) (*dialogue.Scenario, error) {
	stored, err := s.Store.GetScenarioByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, nil
	}

	steps, err := store.UnmarshalScript(stored.Script)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode script for scenario %s", uid)
	}

	scenario := &dialogue.Scenario{
		UID:          stored.UID,
		Title:        stored.Title,
		SystemPrompt: stored.SystemPrompt,
		TurnLimit:    stored.TurnLimit,
	}
	for _, step := range steps {
		scenario.Script = append(scenario.Script, dialogue.ScriptStep{
			NPCText:         step.NPCText,
			ExpectedReplies: step.ExpectedReplies,
		})
	}
	return scenario, nil
}
