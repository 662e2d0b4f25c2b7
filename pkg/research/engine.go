package research

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/mikeboe/deep-search/pkg/cache"
	"github.com/mikeboe/deep-search/pkg/splitter"
)

// Engine drives the research loop: safety gate, then plan, retrieve and
// decide until the decision step answers or MaxRounds is reached.
type Engine struct {
	Config      Config
	Classifier  SafetyClassifier
	Planner     QueryPlanner
	Retriever   Retriever
	Decider     Decider
	Synthesizer Synthesizer
	Logger      *slog.Logger
}

// Deps are the external collaborators of an Engine.
type Deps struct {
	// LLM serves planning, decisions and answers.
	LLM Generator
	// FastLLM serves safety checks and page condensation. Defaults to LLM.
	FastLLM Generator
	Search  SearchProvider
	Crawl   CrawlProvider
	Cache   *cache.Cache
	Logger  *slog.Logger
}

func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if deps.LLM == nil {
		return nil, errors.New("research: LLM is required")
	}
	if deps.Search == nil || deps.Crawl == nil {
		return nil, errors.New("research: search and crawl providers are required")
	}
	if deps.FastLLM == nil {
		deps.FastLLM = deps.LLM
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	chunk := cfg.MaxContentChars / 8
	if chunk < 500 {
		chunk = 500
	}

	return &Engine{
		Config:     cfg,
		Classifier: &Classifier{LLM: deps.FastLLM, Attempts: cfg.StructuredRetries, Logger: deps.Logger},
		Planner:    &Planner{LLM: deps.LLM, Attempts: cfg.StructuredRetries, Logger: deps.Logger},
		Retriever: &Pipeline{
			Search: deps.Search,
			Crawl:  deps.Crawl,
			Condenser: &Condenser{
				LLM:      deps.FastLLM,
				Cache:    deps.Cache,
				Splitter: splitter.NewRecursiveCharacterTextSplitter(chunk, 0),
				MaxChars: cfg.MaxContentChars,
				Logger:   deps.Logger,
			},
			Cache:  deps.Cache,
			Config: cfg,
			Logger: deps.Logger,
		},
		Decider:     &DecisionStep{LLM: deps.LLM, Attempts: cfg.StructuredRetries, Logger: deps.Logger},
		Synthesizer: &AnswerWriter{LLM: deps.LLM},
		Logger:      deps.Logger,
	}, nil
}

// Request is one question to research.
type Request struct {
	// Query defaults to the latest user message in History.
	Query    string
	History  []Message
	Location *Location
}

// Run researches req and returns the answer stream. Progress events are sent
// to sink, which may be nil. Refusals are answers, not errors. When ctx expires
// Run fails with ErrDeadlineExceeded and produces no answer.
func (e *Engine) Run(ctx context.Context, req Request, sink ProgressSink) (*Answer, error) {
	if sink == nil {
		sink = discardSink{}
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		query = strings.TrimSpace(LatestUserMessage(req.History))
	}
	if query == "" {
		return nil, ErrEmptyQuery
	}

	logger := e.logger()
	state := NewState(query, req.History, req.Location)
	logger.Info("Starting research loop", "query", query, "max_rounds", e.Config.MaxRounds)

	verdict, err := e.Classifier.Classify(ctx, query)
	if err != nil {
		return nil, e.fail(ctx, "safety check failed", err)
	}
	if verdict.Refused() {
		logger.Info("Query refused", "reason", verdict.Reason)
		return &Answer{
			Mode:    ModeRefusal,
			State:   state,
			Verdict: verdict,
			Stream:  e.Synthesizer.Refuse(ctx, query, verdict.Reason),
		}, nil
	}

	for state.StepCount() < e.Config.MaxRounds {
		logger.Info("Starting round", "step", state.StepCount()+1, "max", e.Config.MaxRounds)

		plan, err := e.Planner.Plan(ctx, state)
		if err != nil {
			return nil, e.fail(ctx, "planning failed", err)
		}
		sink.Emit(ProgressEvent{Type: EventNewAction, Action: &Action{
			Title:     "Planning research strategy",
			Reasoning: plan.Plan,
			Type:      ActionContinue,
		}})

		round, err := e.Retriever.Retrieve(ctx, plan.Queries, state.History())
		if err != nil {
			return nil, e.fail(ctx, "retrieval failed", err)
		}
		if round.Sources.Len() > 0 {
			sink.Emit(ProgressEvent{Type: EventSourcesFound, Sources: &SourcesFound{
				Sources: round.Sources.Sources(),
				Query:   strings.Join(round.Queries, ", "),
			}})
		}
		state = state.Apply(SearchesReported{Round: round.Round})

		action, err := e.Decider.Decide(ctx, state)
		if err != nil {
			return nil, e.fail(ctx, "decision failed", err)
		}
		sink.Emit(ProgressEvent{Type: EventNewAction, Action: &action})
		state = state.Apply(DecisionRecorded{Action: action})

		if action.Type == ActionAnswer {
			return e.answer(ctx, state, verdict, ModeNormal)
		}
	}

	logger.Info("Round limit reached, answering with available research", "rounds", state.StepCount())
	return e.answer(ctx, state, verdict, ModeBestEffort)
}

func (e *Engine) answer(ctx context.Context, state State, verdict SafetyVerdict, mode AnswerMode) (*Answer, error) {
	if err := ctx.Err(); err != nil {
		return nil, e.fail(ctx, "answer aborted", err)
	}
	e.logger().Info("Research complete", "mode", mode, "rounds", len(state.Rounds()))
	return &Answer{
		Mode:    mode,
		State:   state,
		Verdict: verdict,
		Stream:  guardStream(ctx, e.Synthesizer.Synthesize(ctx, state, mode)),
	}, nil
}

// guardStream reports a stream cut short by the run deadline as ErrDeadlineExceeded.
func guardStream(ctx context.Context, stream iter.Seq2[string, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for chunk, err := range stream {
			if err != nil && isContextErr(err) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %w", ErrDeadlineExceeded, err)
			}
			if !yield(chunk, err) || err != nil {
				return
			}
		}
	}
}

func (e *Engine) fail(ctx context.Context, msg string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		e.logger().Warn("Research deadline exceeded", "stage", msg, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrDeadlineExceeded, msg, err)
	}
	e.logger().Error("Research failed", "stage", msg, "error", err)
	return fmt.Errorf("%s: %w", msg, err)
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}
