package v1

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/expertpanel/server/orchestrator"
	"github.com/hrygo/expertpanel/store"
)

const (
	// Session lookups right after creation can miss against the external
	// backend; retry briefly to smooth propagation across instances.
	sessionLookupAttempts = 40
	sessionLookupBackoff  = 250 * time.Millisecond
)

type submitMessageRequest struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
}

type submitAckResponse struct {
	OK bool `json:"ok"`
}

type submitWaitResponse struct {
	Text    string          `json:"text"`
	History []store.Message `json:"history"`
}

// submitMessage advances the conversation. The default path detaches the
// step and acknowledges immediately; with ?wait=1 it blocks until the full
// turn sequence completes and returns the final text plus transcript.
func (s *APIV1Service) submitMessage(c echo.Context) error {
	req := &submitMessageRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing session id")
	}

	if !s.submitLimiter.Allow(sessionID) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many submissions; slow down")
	}

	ctx := c.Request().Context()
	session, err := s.lookupSession(ctx, sessionID)
	if err != nil {
		s.withStorageMode(c)
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	s.withStorageMode(c)

	if c.QueryParam("wait") == "1" {
		text, err := s.Orchestrator.Step(ctx, session, req.Content)
		if err != nil {
			if errors.Is(err, orchestrator.ErrStepInFlight) {
				return echo.NewHTTPError(http.StatusConflict, err.Error())
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, &submitWaitResponse{Text: text, History: session.Transcript})
	}

	s.Orchestrator.StepDetached(session, req.Content)
	return c.JSON(http.StatusOK, &submitAckResponse{OK: true})
}

// lookupSession fetches the session, retrying NotFound with bounded backoff.
func (s *APIV1Service) lookupSession(ctx context.Context, sessionID string) (*store.Session, error) {
	session, err := s.Store.GetSession(ctx, sessionID)
	for attempt := 0; errors.Is(err, store.ErrNotFound) && attempt < sessionLookupAttempts; attempt++ {
		select {
		case <-time.After(sessionLookupBackoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		session, err = s.Store.GetSession(ctx, sessionID)
	}
	return session, err
}
