package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mikeboe/deep-search/pkg/database"
)

// LogStore persists per-run log records.
type LogStore interface {
	InsertLog(ctx context.Context, runID uuid.UUID, ts time.Time, level, message string, metadata []byte) error
	ListLogs(ctx context.Context, runID uuid.UUID) ([]database.LogEntry, error)
}

// DBLogHandler is a slog.Handler that writes records to the database
type DBLogHandler struct {
	Store LogStore
	RunID uuid.UUID
	Level slog.Leveler

	attrs  []slog.Attr
	groups []string
}

func NewDBLogHandler(store LogStore, runID uuid.UUID) *DBLogHandler {
	return &DBLogHandler{
		Store: store,
		RunID: runID,
		Level: slog.LevelInfo,
	}
}

func (h *DBLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	threshold := slog.LevelInfo
	if h.Level != nil {
		threshold = h.Level.Level()
	}
	return level >= threshold
}

func (h *DBLogHandler) Handle(ctx context.Context, r slog.Record) error {
	meta := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		meta[a.Key] = attrValue(a.Value)
	}
	prefix := ""
	for _, g := range h.groups {
		prefix += g + "."
	}
	r.Attrs(func(a slog.Attr) bool {
		meta[prefix+a.Key] = attrValue(a.Value)
		return true
	})

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		metaJSON = []byte("{}")
	}

	// Detached from the request context so records survive client disconnects.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.Store.InsertLog(ctx, h.RunID, r.Time, r.Level.String(), r.Message, metaJSON)
}

func attrValue(v slog.Value) any {
	v = v.Resolve()
	if err, ok := v.Any().(error); ok {
		return err.Error()
	}
	if v.Kind() == slog.KindGroup {
		group := make(map[string]any)
		for _, a := range v.Group() {
			group[a.Key] = attrValue(a.Value)
		}
		return group
	}
	return v.Any()
}

func (h *DBLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	prefix := ""
	for _, g := range h.groups {
		prefix += g + "."
	}
	clone.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, slog.Attr{Key: prefix + a.Key, Value: a.Value})
	}
	return &clone
}

func (h *DBLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

// teeHandler fans records out to several handlers.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
