package eventlog

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/hrygo/expertpanel/store"
)

// Kind is the event type discriminator on the wire.
type Kind string

const (
	KindInit     Kind = "init"
	KindReady    Kind = "ready"
	KindMessage  Kind = "message"
	KindPrestart Kind = "message:prestart"
	KindStart    Kind = "message:start"
	KindDelta    Kind = "message:delta"
	KindEnd      Kind = "message:end"
	KindError    Kind = "error"
)

// Event is the closed union of wire events. Construct events through the
// New* constructors so the embedded type tag stays consistent.
type Event interface {
	EventKind() Kind
}

// InitEvent replaces the viewer's message list with the full transcript.
type InitEvent struct {
	Type    Kind            `json:"type"`
	History []store.Message `json:"history"`
}

func NewInitEvent(history []store.Message) *InitEvent {
	if history == nil {
		history = []store.Message{}
	}
	return &InitEvent{Type: KindInit, History: history}
}

func (*InitEvent) EventKind() Kind { return KindInit }

// ReadyEvent signals that the transport finished replaying and the client
// may submit.
type ReadyEvent struct {
	Type Kind `json:"type"`
}

func NewReadyEvent() *ReadyEvent { return &ReadyEvent{Type: KindReady} }

func (*ReadyEvent) EventKind() Kind { return KindReady }

// MessageEvent carries a complete message appended outside any turn, such as
// injected system errors.
type MessageEvent struct {
	Type    Kind          `json:"type"`
	Message store.Message `json:"message"`
}

func NewMessageEvent(message store.Message) *MessageEvent {
	return &MessageEvent{Type: KindMessage, Message: message}
}

func (*MessageEvent) EventKind() Kind { return KindMessage }

// PrestartEvent announces that an expert is about to speak, before a turn id
// exists.
type PrestartEvent struct {
	Type Kind       `json:"type"`
	Role store.Role `json:"role"`
	Name string     `json:"name"`
}

func NewPrestartEvent(name string) *PrestartEvent {
	return &PrestartEvent{Type: KindPrestart, Role: store.RoleExpert, Name: name}
}

func (*PrestartEvent) EventKind() Kind { return KindPrestart }

// StartEvent opens a turn: an empty message tagged with the turn id and a
// reference to the prior speaker, if any.
type StartEvent struct {
	Type         Kind          `json:"type"`
	Message      store.Message `json:"message"`
	TurnID       string        `json:"turnId"`
	ReplyToName  string        `json:"replyToName,omitempty"`
	ReplyToQuote string        `json:"replyToQuote,omitempty"`
}

func NewStartEvent(name, turnID, replyToName, replyToQuote string) *StartEvent {
	return &StartEvent{
		Type:         KindStart,
		Message:      store.Message{Role: store.RoleExpert, Name: name, Content: "", TurnID: turnID},
		TurnID:       turnID,
		ReplyToName:  replyToName,
		ReplyToQuote: replyToQuote,
	}
}

func (*StartEvent) EventKind() Kind { return KindStart }

// DeltaEvent carries one incremental text fragment of an open turn.
type DeltaEvent struct {
	Type         Kind       `json:"type"`
	Role         store.Role `json:"role"`
	Name         string     `json:"name"`
	Delta        string     `json:"delta"`
	TurnID       string     `json:"turnId"`
	ReplyToName  string     `json:"replyToName,omitempty"`
	ReplyToQuote string     `json:"replyToQuote,omitempty"`
}

func NewDeltaEvent(name, delta, turnID, replyToName, replyToQuote string) *DeltaEvent {
	return &DeltaEvent{
		Type:         KindDelta,
		Role:         store.RoleExpert,
		Name:         name,
		Delta:        delta,
		TurnID:       turnID,
		ReplyToName:  replyToName,
		ReplyToQuote: replyToQuote,
	}
}

func (*DeltaEvent) EventKind() Kind { return KindDelta }

// EndEvent closes a turn with the authoritative final content.
type EndEvent struct {
	Type         Kind          `json:"type"`
	Message      store.Message `json:"message"`
	TurnID       string        `json:"turnId"`
	ReplyToName  string        `json:"replyToName,omitempty"`
	ReplyToQuote string        `json:"replyToQuote,omitempty"`
}

func NewEndEvent(message store.Message, replyToName, replyToQuote string) *EndEvent {
	return &EndEvent{
		Type:         KindEnd,
		Message:      message,
		TurnID:       message.TurnID,
		ReplyToName:  replyToName,
		ReplyToQuote: replyToQuote,
	}
}

func (*EndEvent) EventKind() Kind { return KindEnd }

// ErrorEvent is a soft transport-level error, such as a missing session.
type ErrorEvent struct {
	Type    Kind   `json:"type"`
	Message string `json:"message"`
}

func NewErrorEvent(message string) *ErrorEvent {
	return &ErrorEvent{Type: KindError, Message: message}
}

func (*ErrorEvent) EventKind() Kind { return KindError }

// Encode serializes an event to its wire JSON.
func Encode(event Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, errors.Wrap(err, "encode event")
	}
	return data, nil
}

// Decode parses wire JSON into the concrete event type. Unknown kinds are
// rejected rather than silently ignored.
func Decode(data []byte) (Event, error) {
	var probe struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errors.Wrap(err, "decode event envelope")
	}

	var event Event
	switch probe.Type {
	case KindInit:
		event = &InitEvent{}
	case KindReady:
		event = &ReadyEvent{}
	case KindMessage:
		event = &MessageEvent{}
	case KindPrestart:
		event = &PrestartEvent{}
	case KindStart:
		event = &StartEvent{}
	case KindDelta:
		event = &DeltaEvent{}
	case KindEnd:
		event = &EndEvent{}
	case KindError:
		event = &ErrorEvent{}
	default:
		return nil, errors.Errorf("unknown event kind %q", probe.Type)
	}
	if err := json.Unmarshal(data, event); err != nil {
		return nil, errors.Wrapf(err, "decode %s event", probe.Type)
	}
	return event, nil
}

// isBoundary reports whether the kind is written to the cross-process
// durable log. Deltas are fanned out live but never persisted; a client
// reconnecting mid-turn recovers only the eventual end.
func isBoundary(kind Kind) bool {
	switch kind {
	case KindMessage, KindStart, KindEnd:
		return true
	default:
		return false
	}
}
