package client

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hrygo/expertpanel/server/eventlog"
)

const (
	// reconnectBackoff is the fixed delay before retrying a dropped stream.
	reconnectBackoff = 1500 * time.Millisecond
	dataPrefix       = "data: "
)

// Handler receives decoded events from the active connection.
type Handler func(eventlog.Event)

// Subscriber maintains a streaming connection to the server. Each
// connection carries a locally unique identifier; when a reconnect
// supersedes a connection, events still in flight from the old one are
// discarded.
type Subscriber struct {
	baseURL   string
	sessionID string
	handler   Handler
	client    *http.Client

	mu      sync.Mutex
	current string
}

// NewSubscriber creates a subscriber for one session.
func NewSubscriber(baseURL, sessionID string, handler Handler) *Subscriber {
	return &Subscriber{
		baseURL:   strings.TrimRight(baseURL, "/"),
		sessionID: sessionID,
		handler:   handler,
		client:    &http.Client{},
	}
}

// Run connects and tails the stream until ctx is done, reconnecting with a
// fixed backoff after transport failures.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		if err := s.connectOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("stream connection lost; reconnecting",
				"session_id", s.sessionID, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectBackoff):
		}
	}
}

// connectOnce opens one stream connection and dispatches its events until
// it fails, ends, or is superseded by a newer connection.
func (s *Subscriber) connectOnce(ctx context.Context) error {
	connID := uuid.NewString()
	s.mu.Lock()
	s.current = connID
	s.mu.Unlock()

	url := fmt.Sprintf("%s/api/v1/stream?sessionId=%s", s.baseURL, s.sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "build stream request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "open stream")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("stream returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, dataPrefix) {
			continue // comments, heartbeats, blank separators
		}
		if !s.isCurrent(connID) {
			return nil // superseded; discard remaining events
		}
		event, err := eventlog.Decode([]byte(strings.TrimPrefix(line, dataPrefix)))
		if err != nil {
			slog.Warn("dropping undecodable event", "session_id", s.sessionID, "error", err)
			continue
		}
		s.dispatch(connID, event)
	}
	return scanner.Err()
}

func (s *Subscriber) isCurrent(connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == connID
}

// dispatch forwards the event unless the connection has been superseded.
func (s *Subscriber) dispatch(connID string, event eventlog.Event) {
	if !s.isCurrent(connID) {
		return
	}
	s.handler(event)
}
