package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockService is a deterministic completion service for development and tests.
type MockService struct {
	// Reply overrides the generated reply when set.
	Reply string
	// StreamErr makes ChatStream fail immediately, exercising the
	// non-streaming fallback path.
	StreamErr error
	// ChatErr makes Chat fail, exercising per-turn error degradation.
	ChatErr error
}

// NewMockService creates a mock completion service.
func NewMockService() *MockService {
	return &MockService{}
}

func (s *MockService) reply(messages []Message) string {
	if s.Reply != "" {
		return s.Reply
	}
	lastUser := "Continue."
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			lastUser = messages[i].Content
			break
		}
	}
	return fmt.Sprintf("Mock response: %s", lastUser)
}

func (s *MockService) Chat(_ context.Context, messages []Message) (string, error) {
	if s.ChatErr != nil {
		return "", s.ChatErr
	}
	return s.reply(messages), nil
}

func (s *MockService) ChatStream(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	contentChan := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errChan)

		if s.StreamErr != nil {
			errChan <- s.StreamErr
			return
		}
		if s.ChatErr != nil {
			errChan <- s.ChatErr
			return
		}
		for _, word := range strings.Fields(s.reply(messages)) {
			select {
			case contentChan <- word + " ":
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}
	}()

	return contentChan, errChan
}
