package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/expertpanel/internal/profile"
	"github.com/hrygo/expertpanel/plugin/llm"
	"github.com/hrygo/expertpanel/server/eventlog"
	"github.com/hrygo/expertpanel/store"
	"github.com/hrygo/expertpanel/store/archive"
	"github.com/hrygo/expertpanel/store/db/memory"
)

func newTestAPI(t *testing.T) (*echo.Echo, *APIV1Service) {
	t.Helper()
	p := &profile.Profile{
		Mode:            "dev",
		DefaultModel:    "gpt-4.1-nano",
		UseMockProvider: true,
		CompactionBound: 120,
		DraftTTL:        15 * time.Minute,
		ActiveTTL:       24 * time.Hour,
	}
	s := store.New(memory.NewDriver(), archive.Noop{}, p)
	log := eventlog.New(nil)
	t.Cleanup(func() { _ = log.Close() })

	service := NewAPIV1Service(p, s, log, llm.NewMockService())
	e := echo.New()
	service.RegisterRoutes(e)
	return e, service
}

func doJSON(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateSessionEndpoint(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/sessions", `{"panel":"comedy"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "memory", rec.Header().Get("X-Storage-Mode"))

	resp := createSessionResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
}

func TestCreateSessionRejectsUnknownPreset(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/sessions", `{"panel":"astrology"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSessionCapsCustomRoster(t *testing.T) {
	e, service := newTestAPI(t)

	body := `{"experts":[{"name":"A"},{"name":"B"},{"name":"C"},{"name":"D"}]}`
	rec := doJSON(e, http.MethodPost, "/api/v1/sessions", body)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := createSessionResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	session, err := service.Store.GetSession(context.Background(), resp.SessionID)
	require.NoError(t, err)
	require.Len(t, session.Experts, 3)
	// Defaults fill the gaps.
	assert.Equal(t, "expert-1", session.Experts[0].ID)
	assert.Equal(t, "gpt-4.1-nano", session.Experts[0].Model)
	assert.NotEmpty(t, session.Experts[0].Persona)
}

func TestGetSessionSnapshot(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/sessions", `{"panel":"tech"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	created := createSessionResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(e, http.MethodGet, "/api/v1/sessions/"+created.SessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	snapshot := sessionSnapshot{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, created.SessionID, snapshot.ID)
	assert.Equal(t, store.SessionStatusDraft, snapshot.Status)
	assert.Len(t, snapshot.ExpertNames, 3)
	assert.Equal(t, "memory", snapshot.StorageMode)
}

func TestGetSessionNotFound(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodGet, "/api/v1/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPresets(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodGet, "/api/v1/presets", "")
	require.Equal(t, http.StatusOK, rec.Code)

	summaries := []presetSummary{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 4)
	assert.Equal(t, "tech", summaries[0].Key)
	assert.Len(t, summaries[0].Experts, 3)
}

func TestSubmitMessageWithWait(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/sessions", `{"panel":"tech"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	created := createSessionResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	body := `{"sessionId":"` + created.SessionID + `","content":"hello panel"}`
	rec = doJSON(e, http.MethodPost, "/api/v1/messages?wait=1", body)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := submitWaitResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Text)
	// User message plus one reply per panelist.
	assert.Len(t, resp.History, 4)
}

func TestSubmitMessageValidation(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/messages", `{"content":"no session"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/v1/messages", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/sessions", `{"panel":"tech"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	created := createSessionResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	body := `{"sessionId":"` + created.SessionID + `","content":"hello"}`
	rec = doJSON(e, http.MethodPost, "/api/v1/messages?wait=1", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot struct {
		StepTotal int64                     `json:"stepTotal"`
		Experts   map[string]map[string]any `json:"experts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, int64(1), snapshot.StepTotal)
	assert.Len(t, snapshot.Experts, 3)
}

func TestSubmitMessageRateLimited(t *testing.T) {
	e, _ := newTestAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/sessions", `{"panel":"tech"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	created := createSessionResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	body := `{"sessionId":"` + created.SessionID + `","content":"again"}`
	var limited bool
	// Burst is 3; the fourth immediate submission must be rejected.
	for i := 0; i < 4; i++ {
		rec = doJSON(e, http.MethodPost, "/api/v1/messages?wait=1", body)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.True(t, limited)
}
