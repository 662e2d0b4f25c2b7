package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// Decider chooses between another round and answering.
type Decider interface {
	Decide(ctx context.Context, s State) (Action, error)
}

// DecisionStep is the model-backed Decider. It does not touch the state; the
// caller records the returned action with DecisionRecorded.
type DecisionStep struct {
	LLM      Generator
	Attempts int
	Logger   *slog.Logger
}

var actionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title": {
			Type:        genai.TypeString,
			Description: "Very short UI label for the action, e.g. 'Continuing research' or 'Providing final answer'.",
		},
		"reasoning": {
			Type:        genai.TypeString,
			Description: "Why this action was chosen.",
		},
		"type": {
			Type:        genai.TypeString,
			Enum:        []string{string(ActionContinue), string(ActionAnswer)},
			Description: "'continue' to research further, 'answer' to answer the question now.",
		},
		"feedback": {
			Type:        genai.TypeString,
			Description: "Detailed description of the information still missing. It guides the next search queries.",
		},
	},
	Required:         []string{"title", "reasoning", "type", "feedback"},
	PropertyOrdering: []string{"title", "reasoning", "type", "feedback"},
}

func (d *DecisionStep) Decide(ctx context.Context, s State) (Action, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Starting decision phase", "step", s.StepCount())

	action, err := generateObject(ctx, d.LLM, logger, ErrDecisionSchema, d.Attempts, decisionPrompt(s), actionSchema, func(a *Action) error {
		a.Type = ActionType(strings.ToLower(strings.TrimSpace(string(a.Type))))
		if a.Type != ActionContinue && a.Type != ActionAnswer {
			return fmt.Errorf("unknown action type %q", a.Type)
		}
		return nil
	})
	if err != nil {
		return Action{}, err
	}
	logger.Info("Next action", "type", action.Type, "title", action.Title)
	return action, nil
}
