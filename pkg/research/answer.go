package research

import (
	"context"
	"iter"
	"time"
)

type AnswerMode string

const (
	ModeNormal     AnswerMode = "normal"
	ModeBestEffort AnswerMode = "best-effort"
	ModeRefusal    AnswerMode = "refusal"
)

// Synthesizer turns a finished research state into a streamed answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, s State, mode AnswerMode) iter.Seq2[string, error]
	Refuse(ctx context.Context, query, reason string) iter.Seq2[string, error]
}

// AnswerWriter is the model-backed Synthesizer.
type AnswerWriter struct {
	LLM Generator
	Now func() time.Time
}

func (w *AnswerWriter) Synthesize(ctx context.Context, s State, mode AnswerMode) iter.Seq2[string, error] {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	return w.LLM.StreamText(ctx, answerPrompt(s, mode, now()))
}

func (w *AnswerWriter) Refuse(ctx context.Context, query, reason string) iter.Seq2[string, error] {
	return w.LLM.StreamText(ctx, refusalPrompt(query, reason))
}

// Answer is the result of a run. Stream must be consumed for the text to be generated.
type Answer struct {
	Mode    AnswerMode
	State   State
	Verdict SafetyVerdict
	Stream  iter.Seq2[string, error]
}

// Text drains the stream and returns the full answer.
func (a *Answer) Text() (string, error) {
	return collect(a.Stream)
}
