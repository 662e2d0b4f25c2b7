package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mikeboe/deep-search/pkg/database"
	"github.com/mikeboe/deep-search/pkg/research"
)

// EngineFactory builds an engine whose components log to logger.
type EngineFactory func(logger *slog.Logger) (*research.Engine, error)

type Service struct {
	NewEngine EngineFactory
	Logs      LogStore
	Timeout   time.Duration
	Logger    *slog.Logger
}

func NewService(factory EngineFactory, logs LogStore, timeout time.Duration) *Service {
	return &Service{
		NewEngine: factory,
		Logs:      logs,
		Timeout:   timeout,
		Logger:    slog.Default(),
	}
}

// StreamEvent is one message of a search stream.
type StreamEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

const (
	EventText  = "text"
	EventError = "error"
	EventDone  = "done"
)

// Result summarizes a finished search.
type Result struct {
	RunID   uuid.UUID           `json:"runId"`
	Mode    research.AnswerMode `json:"mode"`
	Answer  string              `json:"answer"`
	Sources []research.Source   `json:"sources"`
}

// Search runs one research request under the service timeout. Progress and
// answer chunks are passed to emit, which may be nil, in order.
func (s *Service) Search(ctx context.Context, runID uuid.UUID, req research.Request, emit func(StreamEvent)) (*Result, error) {
	if emit == nil {
		emit = func(StreamEvent) {}
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	logger := s.runLogger(runID)
	engine, err := s.NewEngine(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init engine: %w", err)
	}

	var sources []research.Source
	seen := make(map[string]bool)
	sink := research.ProgressFunc(func(ev research.ProgressEvent) {
		switch ev.Type {
		case research.EventNewAction:
			emit(StreamEvent{Type: string(ev.Type), Payload: ev.Action})
		case research.EventSourcesFound:
			for _, src := range ev.Sources.Sources {
				if !seen[src.URL] {
					seen[src.URL] = true
					sources = append(sources, src)
				}
			}
			emit(StreamEvent{Type: string(ev.Type), Payload: ev.Sources})
		}
	})

	answer, err := engine.Run(ctx, req, sink)
	if err != nil {
		logger.Error("Research failed", "error", err)
		return nil, err
	}

	var text strings.Builder
	for chunk, err := range answer.Stream {
		if err != nil {
			logger.Error("Answer stream failed", "error", err)
			return nil, fmt.Errorf("answer stream failed: %w", err)
		}
		text.WriteString(chunk)
		emit(StreamEvent{Type: EventText, Payload: chunk})
	}
	logger.Info("Answer complete", "mode", answer.Mode, "length", text.Len())

	if sources == nil {
		sources = []research.Source{}
	}
	return &Result{RunID: runID, Mode: answer.Mode, Answer: text.String(), Sources: sources}, nil
}

func (s *Service) runLogger(runID uuid.UUID) *slog.Logger {
	base := s.Logger
	if base == nil {
		base = slog.Default()
	}
	if s.Logs == nil {
		return base.With("run_id", runID.String())
	}
	return slog.New(teeHandler{base.Handler(), NewDBLogHandler(s.Logs, runID)}).With("run_id", runID.String())
}

var ErrLogsUnavailable = errors.New("run logs are not persisted")

func (s *Service) RunLogs(ctx context.Context, runID uuid.UUID) ([]database.LogEntry, error) {
	if s.Logs == nil {
		return nil, ErrLogsUnavailable
	}
	return s.Logs.ListLogs(ctx, runID)
}
