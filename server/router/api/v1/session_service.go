package v1

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/expertpanel/store"
)

const maxCustomExperts = 3

type createSessionRequest struct {
	Panel       string          `json:"panel"`
	Title       string          `json:"title"`
	Experts     []expertPayload `json:"experts"`
	Moderator   *store.Moderator `json:"moderator"`
	AutoDiscuss bool            `json:"autoDiscuss"`
}

type expertPayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Persona string `json:"persona"`
	Model   string `json:"model"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// createSession accepts a roster, explicit or preset-keyed, and returns the
// new session identifier.
func (s *APIV1Service) createSession(c echo.Context) error {
	req := &createSessionRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	create := &store.CreateConfig{
		Title:       strings.TrimSpace(req.Title),
		Moderator:   req.Moderator,
		AutoDiscuss: req.AutoDiscuss,
	}
	if len(req.Experts) > 0 {
		create.Experts = s.normalizeExperts(req.Experts)
	} else {
		create.PanelPresetKey = strings.TrimSpace(req.Panel)
	}

	session, err := s.Store.CreateSession(c.Request().Context(), create)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	s.withStorageMode(c)
	return c.JSON(http.StatusOK, &createSessionResponse{SessionID: session.ID})
}

// normalizeExperts fills in defaults for a custom roster, capped at three
// panelists.
func (s *APIV1Service) normalizeExperts(payload []expertPayload) []store.Expert {
	if len(payload) > maxCustomExperts {
		payload = payload[:maxCustomExperts]
	}
	experts := make([]store.Expert, 0, len(payload))
	for i, raw := range payload {
		expert := store.Expert{
			ID:      strings.TrimSpace(raw.ID),
			Name:    strings.TrimSpace(raw.Name),
			Persona: strings.TrimSpace(raw.Persona),
			Model:   strings.TrimSpace(raw.Model),
		}
		if expert.ID == "" {
			expert.ID = fmt.Sprintf("expert-%d", i+1)
		}
		if expert.Name == "" {
			expert.Name = fmt.Sprintf("Expert %d", i+1)
		}
		if expert.Persona == "" {
			expert.Persona = "Brings a balanced perspective to the discussion."
		}
		if expert.Model == "" {
			expert.Model = s.Profile.DefaultModel
		}
		experts = append(experts, expert)
	}
	return experts
}

type sessionSnapshot struct {
	ID              string              `json:"id"`
	Title           string              `json:"title"`
	Status          store.SessionStatus `json:"status"`
	PanelPresetKey  string              `json:"panelPresetKey,omitempty"`
	ExpertNames     []string            `json:"expertNames"`
	TranscriptSize  int                 `json:"transcriptSize"`
	StorageMode     string              `json:"storageMode"`
	AutoDiscuss     bool                `json:"autoDiscuss"`
	CreatedTs       int64               `json:"createdTs"`
	UpdatedTs       int64               `json:"updatedTs"`
}

// getSession returns a diagnostic snapshot of the session.
func (s *APIV1Service) getSession(c echo.Context) error {
	session, err := s.Store.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	names := make([]string, 0, len(session.Experts))
	for _, expert := range session.Experts {
		names = append(names, expert.Name)
	}
	s.withStorageMode(c)
	return c.JSON(http.StatusOK, &sessionSnapshot{
		ID:             session.ID,
		Title:          session.Title,
		Status:         session.Status,
		PanelPresetKey: session.PanelPresetKey,
		ExpertNames:    names,
		TranscriptSize: len(session.Transcript),
		StorageMode:    s.Store.Capability(),
		AutoDiscuss:    session.AutoDiscuss,
		CreatedTs:      session.CreatedTs,
		UpdatedTs:      session.UpdatedTs,
	})
}

type presetSummary struct {
	Key     string   `json:"key"`
	Title   string   `json:"title"`
	Experts []string `json:"experts"`
}

// listPresets lists the preset roster catalog.
func (s *APIV1Service) listPresets(c echo.Context) error {
	catalog := s.Store.Presets()
	summaries := make([]presetSummary, 0)
	for _, key := range catalog.Keys() {
		preset, ok := catalog.Get(key)
		if !ok {
			continue
		}
		names := make([]string, 0, len(preset.Experts))
		for _, expert := range preset.Experts {
			names = append(names, expert.Name)
		}
		summaries = append(summaries, presetSummary{Key: key, Title: preset.Title, Experts: names})
	}
	return c.JSON(http.StatusOK, summaries)
}
