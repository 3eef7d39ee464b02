// Package orchestrator drives one conversational step: sequential
// per-expert completion calls with streamed partial output. Sequential
// execution is a correctness requirement, not an optimization: each
// expert's prompt embeds the previous expert's reply.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/hrygo/expertpanel/internal/util"
	"github.com/hrygo/expertpanel/plugin/llm"
	"github.com/hrygo/expertpanel/server/eventlog"
	"github.com/hrygo/expertpanel/server/internal/observability"
	"github.com/hrygo/expertpanel/store"
)

const (
	// maxReplySentences caps every final expert reply.
	maxReplySentences = 4
	// snippetMaxLen caps the prior-reply snippet embedded in prompts.
	snippetMaxLen = 240
	// fallbackPacing spaces re-chunked deltas on the non-streaming path so
	// the event contract looks identical downstream.
	fallbackPacing = 30 * time.Millisecond
)

// ErrStepInFlight is returned when a step is already running for the
// session. Overlapping submissions are rejected, not queued.
var ErrStepInFlight = errors.New("a step is already in flight for this session")

// Orchestrator runs steps against the session record store and event log.
type Orchestrator struct {
	store   *store.Store
	log     *eventlog.Log
	llm     llm.Service
	metrics *observability.Metrics

	mu    sync.Mutex
	steps map[string]*semaphore.Weighted

	pacing time.Duration
}

// New creates an Orchestrator.
func New(s *store.Store, log *eventlog.Log, svc llm.Service) *Orchestrator {
	return &Orchestrator{
		store:   s,
		log:     log,
		llm:     svc,
		metrics: observability.NewMetrics(),
		steps:   make(map[string]*semaphore.Weighted),
		pacing:  fallbackPacing,
	}
}

// Metrics exposes the step and turn counters.
func (o *Orchestrator) Metrics() *observability.Metrics {
	return o.metrics
}

func (o *Orchestrator) sessionGate(sessionID string) *semaphore.Weighted {
	o.mu.Lock()
	defer o.mu.Unlock()
	gate, ok := o.steps[sessionID]
	if !ok {
		gate = semaphore.NewWeighted(1)
		o.steps[sessionID] = gate
	}
	return gate
}

// Step runs one full round: the optional user message is appended first,
// then every configured expert replies once, in fixed roster order, each
// building on the immediately preceding reply. Returns the last expert's
// final text.
func (o *Orchestrator) Step(ctx context.Context, session *store.Session, userText string) (string, error) {
	gate := o.sessionGate(session.ID)
	if !gate.TryAcquire(1) {
		return "", ErrStepInFlight
	}
	defer gate.Release(1)
	o.metrics.RecordStep()

	if userText != "" {
		userMessage := store.Message{Role: store.RoleUser, Content: userText}
		session.Transcript = append(session.Transcript, userMessage)
		if err := o.store.SaveSession(ctx, session); err != nil {
			o.metrics.RecordStepFailure()
			return "", errors.Wrap(err, "persist user message")
		}
		o.log.Emit(ctx, session.ID, eventlog.NewMessageEvent(userMessage))
	}

	type reply struct {
		name    string
		content string
	}
	var replies []reply

	for i, expert := range session.Experts {
		if err := ctx.Err(); err != nil {
			o.metrics.RecordStepFailure()
			return "", err
		}

		var priorName, priorSnippet string
		if i > 0 {
			priorName = replies[i-1].name
			priorSnippet = util.Snippet(replies[i-1].content, snippetMaxLen)
		}

		turnID := uuid.NewString()
		messages := []llm.Message{
			llm.SystemPrompt(fmt.Sprintf("%s: %s", expert.Name, expert.Persona)),
			llm.UserMessage(buildInstruction(expert.Name, priorName, priorSnippet, userText)),
		}

		o.log.Emit(ctx, session.ID, eventlog.NewPrestartEvent(expert.Name))
		o.log.Emit(ctx, session.ID, eventlog.NewStartEvent(expert.Name, turnID, priorName, priorSnippet))

		turnStart := time.Now()
		assembled := o.streamTurn(ctx, session.ID, expert, messages, turnID, priorName, priorSnippet)
		final := util.TruncateSentences(assembled, maxReplySentences)
		degraded := strings.HasPrefix(final, fmt.Sprintf("(%s encountered an error", expert.Name))
		o.metrics.RecordTurn(expert.Name, time.Since(turnStart), degraded)

		finalMessage := store.Message{
			Role:         store.RoleExpert,
			Name:         expert.Name,
			Content:      final,
			TurnID:       turnID,
			ReplyToName:  priorName,
			ReplyToQuote: priorSnippet,
		}
		session.Transcript = append(session.Transcript, finalMessage)
		if err := o.store.SaveSession(ctx, session); err != nil {
			o.metrics.RecordStepFailure()
			return "", errors.Wrapf(err, "persist reply of %s", expert.Name)
		}
		o.log.Emit(ctx, session.ID, eventlog.NewEndEvent(finalMessage, priorName, priorSnippet))

		replies = append(replies, reply{name: expert.Name, content: final})
	}

	if len(replies) == 0 {
		return "", nil
	}
	return replies[len(replies)-1].content, nil
}

// StepDetached spawns Step as a background task and returns immediately.
// The outcome is discarded except for funneling failures into the event
// log as a system message, so no error stays invisible to viewers and a
// failure cannot crash the triggering request path.
func (o *Orchestrator) StepDetached(session *store.Session, userText string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("step panicked", "session_id", session.ID, "panic", r)
				o.log.Emit(context.Background(), session.ID, eventlog.NewMessageEvent(store.Message{
					Role:    store.RoleSystem,
					Content: fmt.Sprintf("Error: internal failure (%v)", r),
				}))
			}
		}()

		if _, err := o.Step(context.Background(), session, userText); err != nil {
			slog.Warn("detached step failed", "session_id", session.ID, "error", err)
			o.log.Emit(context.Background(), session.ID, eventlog.NewMessageEvent(store.Message{
				Role:    store.RoleSystem,
				Content: fmt.Sprintf("Error: %v", err),
			}))
		}
	}()
}

// streamTurn pulls incremental fragments from the completion service,
// emitting one delta event per fragment. If streaming fails at any point it
// falls back to a single non-streaming call and re-chunks the full text
// into sentence-sized fragments with a small pacing delay; the event
// contract downstream is identical either way.
func (o *Orchestrator) streamTurn(ctx context.Context, sessionID string, expert store.Expert, messages []llm.Message, turnID, priorName, priorSnippet string) string {
	var assembled string
	appendFragment := func(fragment string) {
		if assembled != "" {
			assembled += " "
		}
		assembled += fragment
	}

	contentChan, errChan := o.llm.ChatStream(ctx, messages)
	streamFailed := false

loop:
	for {
		select {
		case fragment, ok := <-contentChan:
			if !ok {
				contentChan = nil
				if errChan == nil {
					break loop
				}
				continue
			}
			assembled += fragment
			o.metrics.RecordDelta()
			o.log.Emit(ctx, sessionID, eventlog.NewDeltaEvent(expert.Name, fragment, turnID, priorName, priorSnippet))

		case err, ok := <-errChan:
			if !ok {
				errChan = nil
				if contentChan == nil {
					break loop
				}
				continue
			}
			if err != nil {
				slog.Warn("stream failed, falling back to non-streaming call",
					"session_id", sessionID, "expert", expert.Name, "error", err)
				streamFailed = true
				break loop
			}

		case <-ctx.Done():
			return assembled
		}
	}

	if !streamFailed {
		return assembled
	}

	o.metrics.RecordFallback()
	full := o.safeChat(ctx, expert.Name, messages)
	sentences := util.SplitSentences(full)
	if len(sentences) > maxReplySentences {
		sentences = sentences[:maxReplySentences]
	}
	for _, sentence := range sentences {
		appendFragment(sentence)
		o.metrics.RecordDelta()
		o.log.Emit(ctx, sessionID, eventlog.NewDeltaEvent(expert.Name, sentence, turnID, priorName, priorSnippet))
		select {
		case <-time.After(o.pacing):
		case <-ctx.Done():
			return assembled
		}
	}
	return assembled
}

// safeChat degrades a provider failure into a visible error string that
// becomes the expert's entire reply. A single expert's failure never aborts
// the remaining turns.
func (o *Orchestrator) safeChat(ctx context.Context, expertName string, messages []llm.Message) string {
	text, err := o.llm.Chat(ctx, messages)
	if err != nil {
		return fmt.Sprintf("(%s encountered an error: %v)", expertName, err)
	}
	return text
}

// buildInstruction forms the explicit instruction contract for one turn.
func buildInstruction(expertName, priorName, priorSnippet, userText string) string {
	topic := userText
	if topic == "" {
		topic = "Continue."
	}
	if priorSnippet != "" {
		return fmt.Sprintf(
			"Build on %s: %q. In <=4 short sentences: (1) acknowledge 1-2 specific points, "+
				"(2) add 2-3 concrete, non-overlapping points from a %s view with specifics, "+
				"(3) optionally note disagreements, (4) propose the next step. Topic: %s",
			priorName, priorSnippet, expertName, topic)
	}
	return fmt.Sprintf(
		"From a %s view, give a crisp plan in <=4 short sentences: 2-3 concrete, "+
			"actionable points with specifics and the next step. Topic: %s",
		expertName, topic)
}
