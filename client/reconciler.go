// Package client consumes the server's event stream and maintains the
// authoritative ordered message list shown to a viewer.
package client

import (
	"sync"

	"github.com/hrygo/expertpanel/server/eventlog"
	"github.com/hrygo/expertpanel/store"
)

// thinkingFrames is the cyclic indicator shown while an expert's real
// content is not yet known.
var thinkingFrames = []string{
	"*thinking*",
	"*thinking.*",
	"*thinking..*",
	"*thinking...*",
}

func isThinkingMarker(content string) bool {
	for _, frame := range thinkingFrames {
		if content == frame {
			return true
		}
	}
	return false
}

type viewMessage struct {
	store.Message
	open     bool // turn not ended yet
	thinking bool // content is still the placeholder marker
	frame    int
}

// Reconciler folds a noisy, partially-ordered event stream, including
// placeholder "thinking" states, into a single consistent message list.
type Reconciler struct {
	mu       sync.Mutex
	messages []viewMessage
}

// NewReconciler creates an empty reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Messages returns the current ordered message list.
func (r *Reconciler) Messages() []store.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]store.Message, len(r.messages))
	for i, m := range r.messages {
		out[i] = m.Message
	}
	return out
}

// Apply folds one event into the message list.
func (r *Reconciler) Apply(event eventlog.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e := event.(type) {
	case *eventlog.InitEvent:
		r.messages = r.messages[:0]
		for _, m := range e.History {
			r.messages = append(r.messages, viewMessage{Message: m})
		}

	case *eventlog.ReadyEvent:
		// transport ack only; no list change

	case *eventlog.MessageEvent:
		r.messages = append(r.messages, viewMessage{Message: e.Message})
		r.cleanup()

	case *eventlog.PrestartEvent:
		r.applyPrestart(e)

	case *eventlog.StartEvent:
		r.applyStart(e)

	case *eventlog.DeltaEvent:
		r.applyDelta(e)

	case *eventlog.EndEvent:
		r.applyEnd(e)

	case *eventlog.ErrorEvent:
		r.messages = append(r.messages, viewMessage{Message: store.Message{
			Role:    store.RoleSystem,
			Content: "Error: " + e.Message,
		}})
	}
}

// applyPrestart appends a thinking placeholder keyed by name only, unless
// an identical unresolved placeholder already exists.
func (r *Reconciler) applyPrestart(e *eventlog.PrestartEvent) {
	for _, m := range r.messages {
		if m.open && m.thinking && m.Role == e.Role && m.Name == e.Name && m.TurnID == "" {
			return
		}
	}
	r.messages = append(r.messages, viewMessage{
		Message:  store.Message{Role: e.Role, Name: e.Name, Content: thinkingFrames[0]},
		open:     true,
		thinking: true,
	})
}

// applyStart upgrades the most recent nameless placeholder for the expert
// to carry the new turn id, or appends one, then drops other stale nameless
// placeholders for the same expert.
func (r *Reconciler) applyStart(e *eventlog.StartEvent) {
	upgraded := -1
	for i := len(r.messages) - 1; i >= 0; i-- {
		m := &r.messages[i]
		if m.open && m.Role == e.Message.Role && m.Name == e.Message.Name && m.TurnID == "" {
			m.TurnID = e.TurnID
			m.ReplyToName = e.ReplyToName
			m.ReplyToQuote = e.ReplyToQuote
			upgraded = i
			break
		}
	}
	if upgraded < 0 {
		r.messages = append(r.messages, viewMessage{
			Message: store.Message{
				Role:         e.Message.Role,
				Name:         e.Message.Name,
				Content:      thinkingFrames[0],
				TurnID:       e.TurnID,
				ReplyToName:  e.ReplyToName,
				ReplyToQuote: e.ReplyToQuote,
			},
			open:     true,
			thinking: true,
		})
		upgraded = len(r.messages) - 1
	}

	// Drop remaining stale nameless placeholders for this expert.
	kept := r.messages[:0]
	for i, m := range r.messages {
		if i != upgraded && m.open && m.Role == e.Message.Role && m.Name == e.Message.Name && m.TurnID == "" {
			continue
		}
		kept = append(kept, m)
	}
	r.messages = kept
}

// applyDelta advances the thinking indicator while the located message is
// still a placeholder; once real text has arrived it appends the fragment.
func (r *Reconciler) applyDelta(e *eventlog.DeltaEvent) {
	for i := len(r.messages) - 1; i >= 0; i-- {
		m := &r.messages[i]
		if !m.open || m.Role != e.Role || m.Name != e.Name {
			continue
		}
		if e.TurnID != "" && m.TurnID != "" && m.TurnID != e.TurnID {
			continue
		}
		if m.thinking {
			if e.Delta == "" {
				m.frame = (m.frame + 1) % len(thinkingFrames)
				m.Content = thinkingFrames[m.frame]
				return
			}
			m.thinking = false
			m.Content = e.Delta
			return
		}
		m.Content += e.Delta
		return
	}
}

// applyEnd replaces the matching open message with the authoritative final
// content.
func (r *Reconciler) applyEnd(e *eventlog.EndEvent) {
	final := e.Message
	if final.ReplyToName == "" {
		final.ReplyToName = e.ReplyToName
	}
	if final.ReplyToQuote == "" {
		final.ReplyToQuote = e.ReplyToQuote
	}

	for i := len(r.messages) - 1; i >= 0; i-- {
		m := &r.messages[i]
		if !m.open || m.Role != final.Role || m.Name != final.Name {
			continue
		}
		if e.TurnID != "" && m.TurnID != "" && m.TurnID != e.TurnID {
			continue
		}
		r.messages[i] = viewMessage{Message: final}
		r.cleanup()
		return
	}
	r.messages = append(r.messages, viewMessage{Message: final})
	r.cleanup()
}

// Tick advances the thinking indicator for any still-open placeholder, so
// liveness is visible even before the first delta arrives.
func (r *Reconciler) Tick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.messages {
		m := &r.messages[i]
		if m.open && m.thinking {
			m.frame = (m.frame + 1) % len(thinkingFrames)
			m.Content = thinkingFrames[m.frame]
		}
	}
}

// cleanup removes placeholders superseded by a later completed message
// sharing their turn id, or, lacking one, their expert name. No stale
// "still thinking" bubble may outlive a completed reply for its turn.
func (r *Reconciler) cleanup() {
	kept := r.messages[:0]
	for i, m := range r.messages {
		if m.open && r.supersededAfter(i) {
			continue
		}
		kept = append(kept, m)
	}
	r.messages = kept
}

func (r *Reconciler) supersededAfter(index int) bool {
	placeholder := r.messages[index]
	for _, later := range r.messages[index+1:] {
		if later.open || later.Role != placeholder.Role || later.Name != placeholder.Name {
			continue
		}
		if placeholder.TurnID == "" || later.TurnID == placeholder.TurnID {
			return true
		}
	}
	return false
}
