package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Prompt is a system instruction plus one user turn.
type Prompt struct {
	System string
	User   string
}

// Generator is a language model backend.
type Generator interface {
	GenerateText(ctx context.Context, p Prompt) (string, error)
	// GenerateJSON returns a JSON document that should conform to schema.
	GenerateJSON(ctx context.Context, p Prompt, schema *genai.Schema) (string, error)
	StreamText(ctx context.Context, p Prompt) iter.Seq2[string, error]
}

// generateObject asks gen for a JSON object, decodes it into a T and runs
// validate on it. Decoding and validation failures are retried up to attempts
// times and then reported as a *SchemaError for stage. Backend failures are
// retried the same way but returned as-is.
func generateObject[T any](ctx context.Context, gen Generator, logger *slog.Logger, stage error, attempts int, p Prompt, schema *genai.Schema, validate func(*T) error) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	malformed := false
	for i := 0; i < attempts; i++ {
		if i > 0 {
			logger.Warn("Retrying structured generation", "stage", stage, "attempt", i+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff(i)):
			}
		}

		raw, err := gen.GenerateJSON(ctx, p, schema)
		if err != nil {
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			lastErr = fmt.Errorf("llm generation failed: %w", err)
			malformed = false
			continue
		}

		var out T
		if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
			lastErr = fmt.Errorf("json parse error: %w (content: %s)", err, raw)
			malformed = true
			continue
		}
		if validate != nil {
			if err := validate(&out); err != nil {
				lastErr = fmt.Errorf("validation failed: %w", err)
				malformed = true
				continue
			}
		}
		return out, nil
	}

	if malformed {
		return zero, &SchemaError{Stage: stage, Attempts: attempts, Err: lastErr}
	}
	return zero, fmt.Errorf("%v: %w", stage, lastErr)
}

func backoff(attempt int) time.Duration {
	return time.Duration(attempt) * 200 * time.Millisecond
}

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// collect drains a text stream.
func collect(stream iter.Seq2[string, error]) (string, error) {
	var b strings.Builder
	for chunk, err := range stream {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(chunk)
	}
	return b.String(), nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
