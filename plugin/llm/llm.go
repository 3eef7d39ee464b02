// Package llm abstracts the external completion service consumed by the
// turn orchestrator.
package llm

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/expertpanel/internal/profile"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// Service is the completion service interface.
type Service interface {
	// Chat performs synchronous chat and returns the full reply text.
	Chat(ctx context.Context, messages []Message) (string, error)

	// ChatStream performs streaming chat. Fragments arrive on the first
	// channel; a terminal error, if any, on the second. Both channels are
	// closed when the stream finishes.
	ChatStream(ctx context.Context, messages []Message) (<-chan string, <-chan error)
}

// NewService creates the completion service configured by the profile.
func NewService(p *profile.Profile) (Service, error) {
	if p.UseMockProvider {
		return NewMockService(), nil
	}
	if p.ProviderAPIKey == "" {
		return nil, errors.New("provider API key is required")
	}
	return newOpenAIService(p.ProviderAPIKey, p.ProviderBaseURL, p.DefaultModel), nil
}

// SystemPrompt creates a system message.
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}
