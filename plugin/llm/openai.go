package llm

import (
	"context"
	"io"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

const defaultTemperature = 0.7

type openAIService struct {
	client *openai.Client
	model  string
}

func newOpenAIService(apiKey, baseURL, model string) *openAIService {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &openAIService{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (s *openAIService) Chat(ctx context.Context, messages []Message) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    convertMessages(messages),
		Temperature: defaultTemperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (s *openAIService) ChatStream(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	contentChan := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errChan)

		stream, err := s.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:       s.model,
			Messages:    convertMessages(messages),
			Temperature: defaultTemperature,
			Stream:      true,
		})
		if err != nil {
			errChan <- err
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errChan <- err
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case contentChan <- delta:
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}
	}()

	return contentChan, errChan
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		converted[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}
	return converted
}
