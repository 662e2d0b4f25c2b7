package evals

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/mikeboe/deep-search/pkg/research"
)

// Researcher is the engine surface the runner drives.
type Researcher interface {
	Run(ctx context.Context, req research.Request, sink research.ProgressSink) (*research.Answer, error)
}

// Runner executes cases one at a time; a failing case does not stop the run.
type Runner struct {
	Engine  Researcher
	Judge   *FactualityJudge
	Timeout time.Duration
	Logger  *slog.Logger
}

type CaseResult struct {
	Case     Case
	Mode     research.AnswerMode
	Answer   string
	Grade    *Grade
	Duration time.Duration
	Err      error
}

type Report struct {
	Dataset string
	Results []CaseResult
}

// MeanScore averages the graded cases. Failed runs count as zero.
func (r *Report) MeanScore() (float64, bool) {
	var sum float64
	var n, graded int
	for _, res := range r.Results {
		switch {
		case res.Err != nil:
			n++
		case res.Grade != nil:
			sum += res.Grade.Score
			n++
			graded++
		}
	}
	if graded == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func (r *Runner) Run(ctx context.Context, dataset string, cases []Case) *Report {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	report := &Report{Dataset: dataset}
	for _, c := range cases {
		logger.Info("Running eval case", "dataset", dataset, "id", c.ID)
		res := r.runCase(ctx, logger, c)
		if res.Err != nil {
			logger.Error("Eval case failed", "id", c.ID, "error", res.Err)
		}
		report.Results = append(report.Results, res)
	}
	return report
}

func (r *Runner) runCase(ctx context.Context, logger *slog.Logger, c Case) (res CaseResult) {
	res.Case = c
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	sink := research.ProgressFunc(func(ev research.ProgressEvent) {
		if ev.Action != nil {
			logger.Debug("Eval progress", "id", c.ID, "title", ev.Action.Title)
		}
	})
	answer, err := r.Engine.Run(ctx, research.Request{Query: c.Query(), History: c.Input}, sink)
	if err != nil {
		res.Err = err
		return res
	}
	res.Mode = answer.Mode
	if res.Answer, err = answer.Text(); err != nil {
		res.Err = err
		return res
	}

	if r.Judge != nil {
		grade, err := r.Judge.Grade(ctx, c.Query(), c.Expected, res.Answer)
		if err != nil {
			res.Err = err
			return res
		}
		res.Grade = &grade
	}
	return res
}

// Write prints a human-readable report.
func (r *Report) Write(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Dataset: %s (%d cases)\n", r.Dataset, len(r.Results))
	for _, res := range r.Results {
		fmt.Fprintf(&b, "\n=== Case %s (%s)\n", res.Case.ID, res.Duration.Round(time.Millisecond))
		fmt.Fprintf(&b, "Question: %s\n", res.Case.Query())
		fmt.Fprintf(&b, "Expected: %s\n", res.Case.Expected)
		if res.Err != nil {
			fmt.Fprintf(&b, "Error: %v\n", res.Err)
			continue
		}
		fmt.Fprintf(&b, "Mode: %s\n", res.Mode)
		fmt.Fprintf(&b, "Answer:\n%s\n", res.Answer)
		if res.Grade != nil {
			fmt.Fprintf(&b, "Factuality: %.2f (%s) %s\n", res.Grade.Score, res.Grade.Choice, res.Grade.Reasoning)
		}
	}
	if mean, ok := r.MeanScore(); ok {
		fmt.Fprintf(&b, "\nMean factuality: %.2f\n", mean)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
