package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// SafetyClassifier decides whether a query may be researched.
type SafetyClassifier interface {
	Classify(ctx context.Context, query string) (SafetyVerdict, error)
}

// Classifier is the model-backed SafetyClassifier. It only ever sees the raw query.
type Classifier struct {
	LLM      Generator
	Attempts int
	Logger   *slog.Logger
}

var safetySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"classification": {
			Type:        genai.TypeString,
			Enum:        []string{string(ClassificationAllow), string(ClassificationRefuse)},
			Description: "Whether the request may be researched.",
		},
		"reason": {
			Type:        genai.TypeString,
			Description: "Short explanation, required when refusing.",
		},
	},
	Required: []string{"classification"},
}

func (c *Classifier) Classify(ctx context.Context, query string) (SafetyVerdict, error) {
	verdict, err := generateObject(ctx, c.LLM, c.logger(), ErrSafetySchema, c.Attempts, safetyPrompt(query), safetySchema, func(v *SafetyVerdict) error {
		v.Classification = Classification(strings.ToLower(strings.TrimSpace(string(v.Classification))))
		switch v.Classification {
		case ClassificationAllow, ClassificationRefuse:
			return nil
		default:
			return fmt.Errorf("unknown classification %q", v.Classification)
		}
	})
	if err != nil {
		return SafetyVerdict{}, err
	}
	c.logger().Info("Safety check", "classification", verdict.Classification, "reason", verdict.Reason)
	return verdict, nil
}

func (c *Classifier) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
