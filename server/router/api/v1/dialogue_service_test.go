package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/voxmate/voxmate/internal/profile"
	"github.com/voxmate/voxmate/plugin/llm"
	"github.com/voxmate/voxmate/server/service/dialogue"
	"github.com/voxmate/voxmate/store"
	"github.com/voxmate/voxmate/store/db/sqlite"
)

// fixedGenerator always answers with the same reply.
type fixedGenerator struct {
	reply string
}

func (g fixedGenerator) Send(_ context.Context, _ *llm.Conversation, _ string) (string, error) {
	return g.reply, nil
}

func newTestAPI(t *testing.T) (*echo.Echo, *store.Store) {
	t.Helper()

	testProfile := &profile.Profile{Mode: "dev", Driver: "sqlite", DSN: ":memory:"}
	driver, err := sqlite.NewDB(testProfile)
	require.NoError(t, err)
	require.NoError(t, driver.Migrate(context.Background()))

	st := store.New(driver, testProfile)
	t.Cleanup(func() { _ = st.Close() })

	script, err := store.MarshalScript([]store.ScriptStepPayload{
		{NPCText: "Welcome! What can I get you?", ExpectedReplies: []string{"I would like the pasta"}},
		{NPCText: "Anything to drink?", ExpectedReplies: []string{"Just water please"}},
	})
	require.NoError(t, err)
	_, err = st.CreateScenario(context.Background(), &store.Scenario{
		UID:          "cafe",
		Title:        "Ordering at a cafe",
		SystemPrompt: "You are a friendly waiter.",
		Script:       script,
	})
	require.NoError(t, err)

	// No generator: sessions run in scripted mode.
	service := NewAPIV1Service(testProfile, st, nil)
	e := echo.New()
	service.RegisterRoutes(e)
	return e, st
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) (*httptest.ResponseRecorder, sessionResponse) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var resp sessionResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestScriptedSessionFlow(t *testing.T) {
	e, st := newTestAPI(t)

	rec, resp := doJSON(t, e, http.MethodPost, "/api/v1/sessions", `{"scenarioUid":"cafe"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, dialogue.ModeScripted, resp.Session.Mode)
	require.Equal(t, dialogue.StatusInProgress, resp.Session.Status)
	require.Equal(t, "Welcome! What can I get you?", resp.Turns[0].Text)

	uid := resp.Session.UID

	rec, resp = doJSON(t, e, http.MethodPost, "/api/v1/sessions/"+uid+"/turns", `{"text":"I would like the pasta"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, resp.Session.StepIndex)
	require.Equal(t, "Anything to drink?", resp.Turns[len(resp.Turns)-2].Text)

	rec, resp = doJSON(t, e, http.MethodPost, "/api/v1/sessions/"+uid+"/turns", `{"text":"just water please"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, dialogue.StatusCompleted, resp.Session.Status)

	// Completion was persisted as a call record.
	records, err := st.ListCallRecords(context.Background(), &store.FindCallRecord{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, uid, records[0].UID)
	require.Equal(t, 100, records[0].Score)
	require.Equal(t, string(dialogue.StatusCompleted), records[0].Status)

	// Turns after completion are rejected.
	rec, _ = doJSON(t, e, http.MethodPost, "/api/v1/sessions/"+uid+"/turns", `{"text":"hello?"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSessionUnknownScenario(t *testing.T) {
	e, _ := newTestAPI(t)
	rec, _ := doJSON(t, e, http.MethodPost, "/api/v1/sessions", `{"scenarioUid":"nope"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTurnForUnknownSession(t *testing.T) {
	e, _ := newTestAPI(t)
	rec, _ := doJSON(t, e, http.MethodPost, "/api/v1/sessions/nope/turns", `{"text":"hi"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExitSavesProgress(t *testing.T) {
	e, st := newTestAPI(t)

	rec, resp := doJSON(t, e, http.MethodPost, "/api/v1/sessions", `{"scenarioUid":"cafe"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	uid := resp.Session.UID

	rec, resp = doJSON(t, e, http.MethodPost, "/api/v1/sessions/"+uid+"/exit", `{"saveForLater":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, dialogue.StatusPaused, resp.Session.Status)

	records, err := st.ListCallRecords(context.Background(), &store.FindCallRecord{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, string(dialogue.StatusPaused), records[0].Status)

	// The session is gone from the registry.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+uid+"/turns", nil)
	getRec := httptest.NewRecorder()
	e.ServeHTTP(getRec, req)
	require.Equal(t, http.StatusNotFound, getRec.Code)
}

func TestListScenarios(t *testing.T) {
	e, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scenarios", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Scenarios []struct {
			UID   string `json:"uid"`
			Title string `json:"title"`
		} `json:"scenarios"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Scenarios, 1)
	require.Equal(t, "cafe", resp.Scenarios[0].UID)
}

func TestProfileTurnLimitBoundsSessions(t *testing.T) {
	testProfile := &profile.Profile{Mode: "dev", Driver: "sqlite", DSN: ":memory:", SessionTurnLimit: 2}
	driver, err := sqlite.NewDB(testProfile)
	require.NoError(t, err)
	require.NoError(t, driver.Migrate(context.Background()))

	st := store.New(driver, testProfile)
	t.Cleanup(func() { _ = st.Close() })

	_, err = st.CreateScenario(context.Background(), &store.Scenario{
		UID:          "small-talk",
		Title:        "Small talk",
		SystemPrompt: "You are a chatty neighbor.",
	})
	require.NoError(t, err)

	service := NewAPIV1Service(testProfile, st, fixedGenerator{reply: "Lovely weather today!"})
	e := echo.New()
	service.RegisterRoutes(e)

	rec, resp := doJSON(t, e, http.MethodPost, "/api/v1/sessions", `{"scenarioUid":"small-talk"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, dialogue.ModeAIDriven, resp.Session.Mode)
	require.Equal(t, 1, resp.Session.TurnCount)

	// The configured limit of two NPC turns ends the session here.
	rec, resp = doJSON(t, e, http.MethodPost, "/api/v1/sessions/"+resp.Session.UID+"/turns", `{"text":"hello there"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, dialogue.StatusCompleted, resp.Session.Status)
	require.Equal(t, 2, resp.Session.TurnCount)
}
