package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"google.golang.org/genai"
)

const maxPlannedQueries = 3

// QueryPlanner produces the research plan for the next round.
type QueryPlanner interface {
	Plan(ctx context.Context, s State) (Plan, error)
}

// Planner is the model-backed QueryPlanner.
type Planner struct {
	LLM      Generator
	Attempts int
	Logger   *slog.Logger
}

var planSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"plan": {
			Type:        genai.TypeString,
			Description: "A detailed research plan describing the logical progression of information needed to answer the question.",
		},
		"queries": {
			Type:        genai.TypeArray,
			Items:       &genai.Schema{Type: genai.TypeString},
			Description: "Exactly 3 sequential search queries, specific and focused, progressing from foundational to specific information.",
		},
	},
	Required:         []string{"plan", "queries"},
	PropertyOrdering: []string{"plan", "queries"},
}

var booleanOperator = regexp.MustCompile(`\s+(AND|OR)\s+`)

func (p *Planner) Plan(ctx context.Context, s State) (Plan, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Starting planning phase", "step", s.StepCount())

	plan, err := generateObject(ctx, p.LLM, logger, ErrPlanningSchema, p.Attempts, plannerPrompt(s), planSchema, validatePlan)
	if err != nil {
		return Plan{}, err
	}
	logger.Info("Generated queries", "queries", plan.Queries)
	return plan, nil
}

// validatePlan normalizes the queries and enforces the 1..3 bound.
func validatePlan(p *Plan) error {
	var queries []string
	for _, q := range p.Queries {
		q = booleanOperator.ReplaceAllString(strings.TrimSpace(q), " ")
		if q == "" {
			continue
		}
		queries = append(queries, q)
	}
	switch {
	case len(queries) == 0:
		return errors.New("empty queries list")
	case len(queries) > maxPlannedQueries:
		return fmt.Errorf("got %d queries, want at most %d", len(queries), maxPlannedQueries)
	}
	p.Queries = queries
	return nil
}
