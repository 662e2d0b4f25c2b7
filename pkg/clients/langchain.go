package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/mikeboe/deep-search/pkg/research"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"google.golang.org/genai"
)

const jsonInstructions = `Return the JSON object directly without any formatting or additional text. The JSON object should have the following structure as defined in the schema. Make sure to answer in valid json and include all necessary properties:`

// GoogleAi opens a langchaingo Gemini model.
func GoogleAi(ctx context.Context, apiKey, model string) (*googleai.GoogleAI, error) {
	if apiKey == "" {
		return nil, errors.New("GOOGLE_API_KEY is required")
	}
	// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models
	llm, err := googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(model))
	if err != nil {
		return nil, fmt.Errorf("failed to create googleai client: %w", err)
	}
	return llm, nil
}

// LangChain adapts any langchaingo model to research.Generator.
type LangChain struct {
	LLM llms.Model
}

func NewLangChain(llm llms.Model) *LangChain {
	return &LangChain{LLM: llm}
}

func messages(p research.Prompt) []llms.MessageContent {
	var msgs []llms.MessageContent
	if p.System != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, p.System))
	}
	return append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, p.User))
}

func (l *LangChain) GenerateText(ctx context.Context, p research.Prompt) (string, error) {
	resp, err := l.LLM.GenerateContent(ctx, messages(p))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// GenerateJSON embeds the schema in the system prompt and switches the model to JSON mode.
func (l *LangChain) GenerateJSON(ctx context.Context, p research.Prompt, schema *genai.Schema) (string, error) {
	if schema != nil {
		raw, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode schema: %w", err)
		}
		p.System = p.System + "\n\n# Response Format: \n\n" + jsonInstructions + string(raw)
	}
	resp, err := l.LLM.GenerateContent(ctx, messages(p), llms.WithJSONMode())
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// StreamText bridges the model's streaming callback to an iterator. Stopping
// the iteration cancels the underlying request.
func (l *LangChain) StreamText(ctx context.Context, p research.Prompt) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		chunks := make(chan string)
		done := make(chan error, 1)
		go func() {
			_, err := l.LLM.GenerateContent(ctx, messages(p), llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				if len(chunk) == 0 {
					return nil
				}
				select {
				case chunks <- string(chunk):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}))
			done <- err
			close(chunks)
		}()

		for chunk := range chunks {
			if !yield(chunk, nil) {
				cancel()
				for range chunks {
				}
				return
			}
		}
		if err := <-done; err != nil {
			yield("", err)
		}
	}
}
