package v1

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/expertpanel/server/eventlog"
	"github.com/hrygo/expertpanel/store"
)

// preludePadding defeats proxy buffering on connect.
const preludePadding = 8192

// Stream pacing. Variables so tests can shorten them.
var (
	// sessionWaitWindow bounds how long a stream connection waits for its
	// session to appear before emitting a soft error and closing.
	sessionWaitWindow   = 10 * time.Second
	sessionWaitInterval = 200 * time.Millisecond

	// pollInterval paces the event log tail.
	pollInterval = 350 * time.Millisecond
	// heartbeatInterval paces keepalive comments that hold intermediary
	// connections open.
	heartbeatInterval = 15 * time.Second
)

// streamEvents is the push endpoint: it replays the event log from the
// connect-time offset and then tails new entries, after a history snapshot.
func (s *APIV1Service) streamEvents(c echo.Context) error {
	sessionID := strings.TrimSpace(c.QueryParam("sessionId"))
	slog.Info("stream connect attempt", "session_id", sessionID)

	resp := c.Response()
	header := resp.Header()
	header.Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
	header.Set("Cache-Control", "no-cache, no-transform")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	header.Set(storageModeHeader, s.Store.Capability())
	resp.WriteHeader(http.StatusOK)

	// Padding prelude so proxies flush immediately.
	fmt.Fprintf(resp, ": prelude %s\n\n", strings.Repeat(" ", preludePadding))
	resp.Flush()

	ctx := c.Request().Context()
	session, err := s.waitForSession(c, sessionID)
	if err != nil {
		return nil // client went away
	}
	if session == nil {
		slog.Warn("session not found after wait; sending soft error and closing",
			"session_id", sessionID)
		s.writeEvent(c, eventlog.NewErrorEvent("Session not found"))
		return nil
	}

	if err := s.writeEvent(c, eventlog.NewInitEvent(session.Transcript)); err != nil {
		return nil
	}
	// Soft ack that the stream is ready, so the client may post.
	if err := s.writeEvent(c, eventlog.NewReadyEvent()); err != nil {
		return nil
	}

	index, err := s.Log.Length(ctx, sessionID)
	if err != nil {
		slog.Warn("failed to read event log length", "session_id", sessionID, "error", err)
		index = 0
	}

	poll := time.NewTicker(pollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	slog.Info("stream connected", "session_id", sessionID, "from_index", index)
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-heartbeat.C:
			if _, err := fmt.Fprint(resp, ": ping\n\n"); err != nil {
				return nil
			}
			resp.Flush()

		case <-poll.C:
			length, err := s.Log.Length(ctx, sessionID)
			if err != nil || length <= index {
				continue
			}
			records, err := s.Log.From(ctx, sessionID, index)
			if err != nil {
				continue
			}
			for _, record := range records {
				if _, err := fmt.Fprintf(resp, "data: %s\n\n", record.Data); err != nil {
					return nil
				}
				if record.Seq >= index {
					index = record.Seq + 1
				}
			}
			resp.Flush()
		}
	}
}

// waitForSession polls for the session up to the wait window. A nil session
// with nil error means the window elapsed.
func (s *APIV1Service) waitForSession(c echo.Context, sessionID string) (*store.Session, error) {
	ctx := c.Request().Context()
	deadline := time.Now().Add(sessionWaitWindow)
	for {
		session, err := s.Store.GetSession(ctx, sessionID)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("session lookup failed", "session_id", sessionID, "error", err)
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-time.After(sessionWaitInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *APIV1Service) writeEvent(c echo.Context, event eventlog.Event) error {
	data, err := eventlog.Encode(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", data); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}
