package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/expertpanel/internal/profile"
	"github.com/hrygo/expertpanel/internal/util"
	"github.com/hrygo/expertpanel/plugin/llm"
	"github.com/hrygo/expertpanel/server/eventlog"
	"github.com/hrygo/expertpanel/store"
	"github.com/hrygo/expertpanel/store/db/memory"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	p := &profile.Profile{
		Mode:            "dev",
		DefaultModel:    "gpt-4.1-nano",
		CompactionBound: 120,
		DraftTTL:        15 * time.Minute,
		ActiveTTL:       24 * time.Hour,
	}
	return store.New(memory.NewDriver(), noopArchiver{}, p)
}

type noopArchiver struct{}

func (noopArchiver) Archive(context.Context, *store.Session) error { return nil }
func (noopArchiver) Close() error                                  { return nil }

// eventCollector subscribes to a session and decodes everything emitted.
type eventCollector struct {
	mu     sync.Mutex
	events []eventlog.Event
}

func collectEvents(t *testing.T, log *eventlog.Log, sessionID string) *eventCollector {
	t.Helper()
	c := &eventCollector{}
	cancel := log.Subscribe(sessionID, func(r eventlog.Record) {
		event, err := eventlog.Decode(r.Data)
		require.NoError(t, err)
		c.mu.Lock()
		c.events = append(c.events, event)
		c.mu.Unlock()
	})
	t.Cleanup(cancel)
	return c
}

func (c *eventCollector) all() []eventlog.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]eventlog.Event(nil), c.events...)
}

func (c *eventCollector) kinds() []eventlog.Kind {
	var kinds []eventlog.Kind
	for _, e := range c.all() {
		kinds = append(kinds, e.EventKind())
	}
	return kinds
}

func newTestOrchestrator(t *testing.T, svc llm.Service) (*Orchestrator, *store.Store, *eventlog.Log) {
	t.Helper()
	s := testStore(t)
	log := eventlog.New(nil)
	t.Cleanup(func() { _ = log.Close() })
	o := New(s, log, svc)
	o.pacing = 0
	return o, s, log
}

func createSession(t *testing.T, s *store.Store) *store.Session {
	t.Helper()
	session, err := s.CreateSession(context.Background(), &store.CreateConfig{})
	require.NoError(t, err)
	return session
}

func TestStepRunsEveryExpertOnce(t *testing.T) {
	ctx := context.Background()
	o, s, log := newTestOrchestrator(t, llm.NewMockService())
	session := createSession(t, s)
	collector := collectEvents(t, log, session.ID)

	last, err := o.Step(ctx, session, "Should we rewrite the scheduler?")
	require.NoError(t, err)
	assert.NotEmpty(t, last)

	// One user message plus one reply per expert.
	require.Len(t, session.Transcript, 1+len(session.Experts))
	assert.Equal(t, store.RoleUser, session.Transcript[0].Role)
	for i, expert := range session.Experts {
		reply := session.Transcript[1+i]
		assert.Equal(t, store.RoleExpert, reply.Role)
		assert.Equal(t, expert.Name, reply.Name)
		assert.NotEmpty(t, reply.TurnID)
		assert.LessOrEqual(t, len(util.SplitSentences(reply.Content)), 4)
	}
	assert.Equal(t, session.Transcript[len(session.Transcript)-1].Content, last)

	// Every start has a matching end with the same turn id, in order.
	starts := map[string]string{}
	ends := map[string]string{}
	for _, event := range collector.all() {
		switch e := event.(type) {
		case *eventlog.StartEvent:
			starts[e.TurnID] = e.Message.Name
		case *eventlog.EndEvent:
			ends[e.TurnID] = e.Message.Name
		}
	}
	assert.Len(t, starts, len(session.Experts))
	assert.Equal(t, starts, ends)

	// The transcript was persisted after every append.
	loaded, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Transcript, 1+len(session.Experts))
	assert.Equal(t, store.SessionStatusActive, loaded.Status)
}

func TestStepChainsExpertsThroughSnippets(t *testing.T) {
	ctx := context.Background()
	mock := llm.NewMockService()
	mock.Reply = "First point stands. Second point follows. Third expands. Fourth concludes. Fifth is dropped."
	o, s, log := newTestOrchestrator(t, mock)
	session := createSession(t, s)
	collector := collectEvents(t, log, session.ID)

	_, err := o.Step(ctx, session, "topic")
	require.NoError(t, err)

	var starts []*eventlog.StartEvent
	for _, event := range collector.all() {
		if e, ok := event.(*eventlog.StartEvent); ok {
			starts = append(starts, e)
		}
	}
	require.Len(t, starts, len(session.Experts))

	// The first expert replies to nobody; each later one quotes its
	// predecessor with a snippet of at most two sentences.
	assert.Empty(t, starts[0].ReplyToName)
	for i := 1; i < len(starts); i++ {
		assert.Equal(t, session.Experts[i-1].Name, starts[i].ReplyToName)
		assert.Equal(t, "First point stands. Second point follows.", starts[i].ReplyToQuote)
	}

	// Final replies carry the same linkage.
	for i := 1; i < len(session.Experts); i++ {
		reply := session.Transcript[1+i]
		assert.Equal(t, session.Experts[i-1].Name, reply.ReplyToName)
		assert.NotEmpty(t, reply.ReplyToQuote)
	}
}

func TestStepTruncatesRepliesToFourSentences(t *testing.T) {
	ctx := context.Background()
	mock := llm.NewMockService()
	mock.Reply = "One. Two. Three. Four. Five. Six."
	o, s, _ := newTestOrchestrator(t, mock)
	session := createSession(t, s)

	_, err := o.Step(ctx, session, "topic")
	require.NoError(t, err)

	for _, reply := range session.Transcript[1:] {
		assert.Equal(t, "One. Two. Three. Four.", reply.Content)
	}
}

func TestStepWithoutUserTextEmitsNoUserMessage(t *testing.T) {
	ctx := context.Background()
	o, s, log := newTestOrchestrator(t, llm.NewMockService())
	session := createSession(t, s)
	collector := collectEvents(t, log, session.ID)

	_, err := o.Step(ctx, session, "")
	require.NoError(t, err)

	for _, event := range collector.all() {
		if e, ok := event.(*eventlog.MessageEvent); ok {
			assert.NotEqual(t, store.RoleUser, e.Message.Role)
		}
	}
	assert.Len(t, session.Transcript, len(session.Experts))
}

func TestStepEmptyRoster(t *testing.T) {
	ctx := context.Background()
	o, s, _ := newTestOrchestrator(t, llm.NewMockService())
	session := createSession(t, s)
	session.Experts = nil
	session.PanelPresetKey = ""

	last, err := o.Step(ctx, session, "anyone there?")
	require.NoError(t, err)
	assert.Empty(t, last)
	assert.Len(t, session.Transcript, 1)
}

func TestStepFallsBackWhenStreamingFails(t *testing.T) {
	ctx := context.Background()
	mock := llm.NewMockService()
	mock.StreamErr = errors.New("stream unavailable")
	mock.Reply = "Alpha. Beta. Gamma. Delta. Epsilon."
	o, s, log := newTestOrchestrator(t, mock)
	session := createSession(t, s)
	collector := collectEvents(t, log, session.ID)

	_, err := o.Step(ctx, session, "topic")
	require.NoError(t, err)

	// The fallback path re-chunks the full reply into sentence deltas, so
	// viewers see identical event traffic.
	deltasByTurn := map[string][]string{}
	for _, event := range collector.all() {
		if e, ok := event.(*eventlog.DeltaEvent); ok {
			deltasByTurn[e.TurnID] = append(deltasByTurn[e.TurnID], e.Delta)
		}
	}
	require.Len(t, deltasByTurn, len(session.Experts))
	for _, deltas := range deltasByTurn {
		assert.Equal(t, []string{"Alpha.", "Beta.", "Gamma.", "Delta."}, deltas)
	}
	for _, reply := range session.Transcript[1:] {
		assert.Equal(t, "Alpha. Beta. Gamma. Delta.", reply.Content)
	}
}

func TestStepDegradesProviderErrorPerTurn(t *testing.T) {
	ctx := context.Background()
	mock := llm.NewMockService()
	mock.StreamErr = errors.New("stream down")
	mock.ChatErr = errors.New("provider down")
	o, s, log := newTestOrchestrator(t, mock)
	session := createSession(t, s)
	collector := collectEvents(t, log, session.ID)

	// Every expert fails, yet the step completes; each reply is the visible
	// degradation string.
	_, err := o.Step(ctx, session, "topic")
	require.NoError(t, err)

	require.Len(t, session.Transcript, 1+len(session.Experts))
	for i, expert := range session.Experts {
		reply := session.Transcript[1+i]
		assert.Contains(t, reply.Content, expert.Name+" encountered an error")
		assert.Contains(t, reply.Content, "provider down")
	}

	// A full start/end pair was still emitted per expert.
	var endCount int
	for _, event := range collector.all() {
		if _, ok := event.(*eventlog.EndEvent); ok {
			endCount++
		}
	}
	assert.Equal(t, len(session.Experts), endCount)
}

func TestConcurrentStepIsRejected(t *testing.T) {
	ctx := context.Background()
	o, s, _ := newTestOrchestrator(t, llm.NewMockService())
	session := createSession(t, s)

	// Hold the per-session gate, as a running step would.
	gate := o.sessionGate(session.ID)
	require.True(t, gate.TryAcquire(1))

	_, err := o.Step(ctx, session.Clone(), "second")
	assert.ErrorIs(t, err, ErrStepInFlight)

	// Once released the session accepts steps again; a different session is
	// never affected.
	gate.Release(1)
	_, err = o.Step(ctx, session.Clone(), "third")
	require.NoError(t, err)

	other := createSession(t, s)
	require.True(t, gate.TryAcquire(1))
	defer gate.Release(1)
	_, err = o.Step(ctx, other, "independent")
	require.NoError(t, err)
}

func TestStepDetachedReportsFailureAsSystemMessage(t *testing.T) {
	mock := llm.NewMockService()
	o, s, log := newTestOrchestrator(t, mock)
	session := createSession(t, s)

	systemErr := make(chan string, 1)
	cancel := log.Subscribe(session.ID, func(r eventlog.Record) {
		event, err := eventlog.Decode(r.Data)
		if err != nil {
			return
		}
		if e, ok := event.(*eventlog.MessageEvent); ok && e.Message.Role == store.RoleSystem {
			select {
			case systemErr <- e.Message.Content:
			default:
			}
		}
	})
	defer cancel()

	// Hold the gate so the detached step fails with ErrStepInFlight.
	gate := o.sessionGate(session.ID)
	require.True(t, gate.TryAcquire(1))
	defer gate.Release(1)

	o.StepDetached(session, "hello")

	select {
	case content := <-systemErr:
		assert.Contains(t, content, "already in flight")
	case <-time.After(2 * time.Second):
		t.Fatal("expected a system error message")
	}
}

func TestBuildInstruction(t *testing.T) {
	first := buildInstruction("Ada", "", "", "Pick a database.")
	assert.Contains(t, first, "From a Ada view")
	assert.Contains(t, first, "Topic: Pick a database.")

	chained := buildInstruction("Linus", "Ada", "Use sqlite.", "Pick a database.")
	assert.Contains(t, chained, `Build on Ada: "Use sqlite."`)
	assert.Contains(t, chained, "from a Linus view")

	idle := buildInstruction("Ada", "", "", "")
	assert.Contains(t, idle, "Topic: Continue.")
}
