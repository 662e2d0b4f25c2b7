package research

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestPlanner(t *testing.T) {
	tests := []struct {
		name       string
		plans      []string
		attempts   int
		want       []string
		wantSchema bool
		wantCalls  int
	}{
		{
			name:      "valid plan",
			plans:     []string{`{"plan":"look it up","queries":["current president of Indonesia","Prabowo party"]}`},
			attempts:  2,
			want:      []string{"current president of Indonesia", "Prabowo party"},
			wantCalls: 1,
		},
		{
			name:      "boolean operators removed",
			plans:     []string{`{"plan":"p","queries":["Indonesia AND president OR leader","  "]}`},
			attempts:  1,
			want:      []string{"Indonesia president leader"},
			wantCalls: 1,
		},
		{
			name:      "fenced json accepted",
			plans:     []string{"```json\n{\"plan\":\"p\",\"queries\":[\"q\"]}\n```"},
			attempts:  1,
			want:      []string{"q"},
			wantCalls: 1,
		},
		{
			name:      "retry after malformed output",
			plans:     []string{`not json`, `{"plan":"p","queries":["q"]}`},
			attempts:  2,
			want:      []string{"q"},
			wantCalls: 2,
		},
		{
			name:       "malformed every time",
			plans:      []string{`{"plan":`},
			attempts:   2,
			wantSchema: true,
			wantCalls:  2,
		},
		{
			name:       "too many queries",
			plans:      []string{`{"plan":"p","queries":["a","b","c","d"]}`},
			attempts:   1,
			wantSchema: true,
			wantCalls:  1,
		},
		{
			name:       "no queries",
			plans:      []string{`{"plan":"p","queries":[]}`},
			attempts:   1,
			wantSchema: true,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &fakeLLM{plans: tt.plans}
			p := &Planner{LLM: llm, Attempts: tt.attempts}

			plan, err := p.Plan(context.Background(), NewState("q", nil, nil))
			if tt.wantSchema {
				if !errors.Is(err, ErrPlanningSchema) {
					t.Fatalf("Plan() error = %v, want ErrPlanningSchema", err)
				}
				var se *SchemaError
				if !errors.As(err, &se) || se.Attempts != tt.attempts {
					t.Errorf("expected SchemaError with %d attempts, got %v", tt.attempts, err)
				}
			} else {
				if err != nil {
					t.Fatalf("Plan() error = %v", err)
				}
				if !reflect.DeepEqual(plan.Queries, tt.want) {
					t.Errorf("Plan() queries = %q, want %q", plan.Queries, tt.want)
				}
			}
			if got := llm.callCount("plan"); got != tt.wantCalls {
				t.Errorf("planner calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestPlannerBackendErrorIsNotSchemaError(t *testing.T) {
	llm := &fakeLLM{jsonErr: errors.New("503 unavailable")}
	_, err := (&Planner{LLM: llm, Attempts: 1}).Plan(context.Background(), NewState("q", nil, nil))
	if err == nil {
		t.Fatal("expected error")
	}
	var se *SchemaError
	if errors.As(err, &se) {
		t.Errorf("backend failure reported as schema error: %v", err)
	}
}

func TestPlannerPromptCarriesFeedback(t *testing.T) {
	llm := &fakeLLM{plans: []string{`{"plan":"p","queries":["q"]}`}}
	s := NewState("Who leads Indonesia?", nil, &Location{City: "Jakarta"}).
		Apply(DecisionRecorded{Action: Action{Type: ActionContinue, Feedback: "find the party affiliation"}})

	if _, err := (&Planner{LLM: llm, Attempts: 1}).Plan(context.Background(), s); err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	prompt := llm.promptsFor("plan")[0].User
	for _, want := range []string{`"Who leads Indonesia?"`, "User location: Jakarta", "find the party affiliation", "No search performed yet."} {
		if !strings.Contains(prompt, want) {
			t.Errorf("planner prompt missing %q", want)
		}
	}
}

func TestClassifier(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		want       Classification
		wantSchema bool
	}{
		{name: "allow", reply: `{"classification":"allow"}`, want: ClassificationAllow},
		{name: "refuse uppercase", reply: `{"classification":"REFUSE","reason":"weapons"}`, want: ClassificationRefuse},
		{name: "unknown label", reply: `{"classification":"maybe"}`, wantSchema: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &fakeLLM{safety: []string{tt.reply}}
			v, err := (&Classifier{LLM: llm, Attempts: 1}).Classify(context.Background(), "how do I bake bread")
			if tt.wantSchema {
				if !errors.Is(err, ErrSafetySchema) {
					t.Fatalf("Classify() error = %v, want ErrSafetySchema", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if v.Classification != tt.want {
				t.Errorf("Classify() = %q, want %q", v.Classification, tt.want)
			}
		})
	}
}

func TestClassifierSeesOnlyQuery(t *testing.T) {
	llm := &fakeLLM{}
	if _, err := (&Classifier{LLM: llm, Attempts: 1}).Classify(context.Background(), "bread recipes"); err != nil {
		t.Fatal(err)
	}
	if got := llm.promptsFor("safety")[0].User; got != `User request: "bread recipes"` {
		t.Errorf("safety prompt = %q", got)
	}
}

func TestDecisionStep(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		want       ActionType
		wantSchema bool
	}{
		{name: "answer", reply: `{"title":"Providing final answer","reasoning":"enough","type":"answer","feedback":""}`, want: ActionAnswer},
		{name: "continue", reply: `{"title":"Continuing research","reasoning":"gaps","type":"Continue","feedback":"party"}`, want: ActionContinue},
		{name: "bad type", reply: `{"title":"t","reasoning":"r","type":"stop","feedback":""}`, wantSchema: true},
		{name: "not json", reply: `answer`, wantSchema: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &fakeLLM{actions: []string{tt.reply}}
			a, err := (&DecisionStep{LLM: llm, Attempts: 1}).Decide(context.Background(), NewState("q", nil, nil))
			if tt.wantSchema {
				if !errors.Is(err, ErrDecisionSchema) {
					t.Fatalf("Decide() error = %v, want ErrDecisionSchema", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decide() error = %v", err)
			}
			if a.Type != tt.want {
				t.Errorf("Decide() type = %q, want %q", a.Type, tt.want)
			}
		})
	}
}
