package evals

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mikeboe/deep-search/pkg/research"
	"google.golang.org/genai"
)

const factualitySystemPrompt = `You are comparing a submitted answer to an expert answer on a given question.

Compare the factual content of the submitted answer with the expert answer. Ignore any differences in style, grammar, or punctuation.
The submitted answer may either be a subset or superset of the expert answer, or it may conflict with it. Determine which case applies. Answer the question by selecting one of the following options:
(A) The submitted answer is a subset of the expert answer and is fully consistent with it.
(B) The submitted answer is a superset of the expert answer and is fully consistent with it.
(C) The submitted answer contains all the same details as the expert answer.
(D) There is a disagreement between the submitted answer and the expert answer.
(E) The answers differ, but these differences don't matter from the perspective of factuality.`

var choiceScores = map[string]float64{
	"A": 0.4,
	"B": 0.6,
	"C": 1,
	"D": 0,
	"E": 1,
}

var gradeSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"reasoning": {Type: genai.TypeString, Description: "Short explanation of the comparison"},
		"choice":    {Type: genai.TypeString, Enum: []string{"A", "B", "C", "D", "E"}},
	},
	Required: []string{"reasoning", "choice"},
}

// Grade is a judge verdict for one answer.
type Grade struct {
	Choice    string  `json:"choice"`
	Reasoning string  `json:"reasoning"`
	Score     float64 `json:"score"`
}

// FactualityJudge grades answers with a model.
type FactualityJudge struct {
	LLM research.Generator
}

func (j *FactualityJudge) Grade(ctx context.Context, question, expected, output string) (Grade, error) {
	user := fmt.Sprintf(`[BEGIN DATA]
************
[Question]: %s
************
[Expert]: %s
************
[Submission]: %s
************
[END DATA]`, question, expected, output)

	raw, err := j.LLM.GenerateJSON(ctx, research.Prompt{System: factualitySystemPrompt, User: user}, gradeSchema)
	if err != nil {
		return Grade{}, fmt.Errorf("factuality judge: %w", err)
	}
	return parseGrade(raw)
}

func parseGrade(raw string) (Grade, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var g Grade
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &g); err != nil {
		return Grade{}, fmt.Errorf("failed to parse judge output: %w", err)
	}
	g.Choice = strings.ToUpper(strings.Trim(strings.TrimSpace(g.Choice), "()"))
	score, ok := choiceScores[g.Choice]
	if !ok {
		return Grade{}, fmt.Errorf("judge returned unknown choice %q", g.Choice)
	}
	g.Score = score
	return g, nil
}
