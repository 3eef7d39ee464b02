package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/expertpanel/server/eventlog"
)

func TestSupersededConnectionEventsAreDiscarded(t *testing.T) {
	var delivered []eventlog.Event
	s := NewSubscriber("http://localhost", "s1", func(event eventlog.Event) {
		delivered = append(delivered, event)
	})

	s.mu.Lock()
	s.current = "conn-old"
	s.mu.Unlock()

	s.dispatch("conn-old", eventlog.NewReadyEvent())
	require.Len(t, delivered, 1)

	// A reconnect supersedes the old connection; its remaining events drop.
	s.mu.Lock()
	s.current = "conn-new"
	s.mu.Unlock()

	s.dispatch("conn-old", eventlog.NewReadyEvent())
	assert.Len(t, delivered, 1)

	s.dispatch("conn-new", eventlog.NewReadyEvent())
	assert.Len(t, delivered, 2)
}

func TestConnectOnceParsesDataLines(t *testing.T) {
	ready, err := eventlog.Encode(eventlog.NewReadyEvent())
	require.NoError(t, err)
	delta, err := eventlog.Encode(eventlog.NewDeltaEvent("Ada", "hi", "t1", "", ""))
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stream", r.URL.Path)
		assert.Equal(t, "s1", r.URL.Query().Get("sessionId"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": prelude\n\n")
		fmt.Fprintf(w, "data: %s\n\n", ready)
		fmt.Fprint(w, ": ping\n\n")
		fmt.Fprintf(w, "data: %s\n\n", delta)
		fmt.Fprint(w, "data: {\"type\":\"bogus\"}\n\n")
	}))
	defer server.Close()

	var kinds []eventlog.Kind
	s := NewSubscriber(server.URL, "s1", func(event eventlog.Event) {
		kinds = append(kinds, event.EventKind())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.connectOnce(ctx))

	// Comments and undecodable payloads are skipped; events arrive in order.
	assert.Equal(t, []eventlog.Kind{eventlog.KindReady, eventlog.KindDelta}, kinds)
}
