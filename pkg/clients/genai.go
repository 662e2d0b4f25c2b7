package clients

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/mikeboe/deep-search/pkg/research"
	"google.golang.org/genai"
)

// GenAI implements research.Generator on the Gemini API with native schema support.
type GenAI struct {
	Client *genai.Client
	Model  string
}

func NewGenAI(ctx context.Context, apiKey, model string) (*GenAI, error) {
	if apiKey == "" {
		return nil, errors.New("GOOGLE_API_KEY is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAI{Client: client, Model: model}, nil
}

func contents(p research.Prompt) []*genai.Content {
	return []*genai.Content{
		{Role: genai.RoleUser, Parts: []*genai.Part{{Text: p.User}}},
	}
}

func (g *GenAI) config(p research.Prompt) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if p.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: p.System}}}
	}
	return cfg
}

func (g *GenAI) GenerateText(ctx context.Context, p research.Prompt) (string, error) {
	resp, err := g.Client.Models.GenerateContent(ctx, g.Model, contents(p), g.config(p))
	if err != nil {
		return "", err
	}
	return responseText(resp)
}

func (g *GenAI) GenerateJSON(ctx context.Context, p research.Prompt, schema *genai.Schema) (string, error) {
	cfg := g.config(p)
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseSchema = schema
	resp, err := g.Client.Models.GenerateContent(ctx, g.Model, contents(p), cfg)
	if err != nil {
		return "", err
	}
	return responseText(resp)
}

func (g *GenAI) StreamText(ctx context.Context, p research.Prompt) iter.Seq2[string, error] {
	return streamChunks(g.Client.Models.GenerateContentStream(ctx, g.Model, contents(p), g.config(p)))
}

// streamChunks yields the text of each streamed response. A blocked prompt, a
// finish reason other than STOP, or a stream without any text ends with an error.
func streamChunks(stream iter.Seq2[*genai.GenerateContentResponse, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var sawText bool
		for resp, err := range stream {
			if err != nil {
				yield("", err)
				return
			}
			if err := blocked(resp); err != nil {
				yield("", err)
				return
			}
			if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			if text := partsText(resp.Candidates[0].Content); text != "" {
				sawText = true
				if !yield(text, nil) {
					return
				}
			}
			if err := finished(resp.Candidates[0]); err != nil {
				yield("", err)
				return
			}
		}
		if !sawText {
			yield("", errors.New("model returned no text"))
		}
	}
}

func blocked(resp *genai.GenerateContentResponse) error {
	if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	return nil
}

func finished(c *genai.Candidate) error {
	switch c.FinishReason {
	case "", genai.FinishReasonStop, genai.FinishReasonUnspecified:
		return nil
	}
	if c.FinishMessage != "" {
		return fmt.Errorf("generation stopped: %s: %s", c.FinishReason, c.FinishMessage)
	}
	return fmt.Errorf("generation stopped: %s", c.FinishReason)
}

func partsText(content *genai.Content) string {
	var b strings.Builder
	for _, part := range content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if err := blocked(resp); err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("model returned no candidates")
	}
	if err := finished(resp.Candidates[0]); err != nil {
		return "", err
	}
	return partsText(resp.Candidates[0].Content), nil
}
