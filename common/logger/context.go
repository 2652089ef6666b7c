package logger

import (
	"context"
	"log/slog"
	"unicode/utf8"
)

type contextKey struct{}

// Fields are attached to every record logged with a context that carries them.
// A sync cycle sets Source, Scope and RunID once; each delivery inside it adds
// EventID and EventType. Empty fields are omitted.
type Fields struct {
	Source    string // adapter name, e.g. "github.commits"
	Scope     string // repository, project or channel
	RunID     string
	EventID   string
	EventType string
	Component string // e.g. "synapse.syncer.orchestrator"
}

// WithFields returns a context whose fields are the existing ones overlaid
// with the non-empty values of f.
func WithFields(ctx context.Context, f Fields) context.Context {
	return context.WithValue(ctx, contextKey{}, FieldsFrom(ctx).overlay(f))
}

// WithCycle tags ctx with the identity of one sync cycle.
func WithCycle(ctx context.Context, source, scope, runID string) context.Context {
	return WithFields(ctx, Fields{Source: source, Scope: scope, RunID: runID})
}

// WithEvent tags ctx with the canonical event being handled.
func WithEvent(ctx context.Context, eventID, eventType string) context.Context {
	return WithFields(ctx, Fields{EventID: eventID, EventType: eventType})
}

func WithComponent(ctx context.Context, component string) context.Context {
	return WithFields(ctx, Fields{Component: component})
}

func FieldsFrom(ctx context.Context) Fields {
	f, _ := ctx.Value(contextKey{}).(Fields)
	return f
}

func (f Fields) overlay(o Fields) Fields {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&f.Source, o.Source)
	set(&f.Scope, o.Scope)
	set(&f.RunID, o.RunID)
	set(&f.EventID, o.EventID)
	set(&f.EventType, o.EventType)
	set(&f.Component, o.Component)
	return f
}

func (f Fields) attrs() []slog.Attr {
	pairs := [...]struct{ key, val string }{
		{"source", f.Source},
		{"scope", f.Scope},
		{"run_id", f.RunID},
		{"event_id", f.EventID},
		{"event_type", f.EventType},
		{"component", f.Component},
	}
	out := make([]slog.Attr, 0, len(pairs))
	for _, p := range pairs {
		if p.val != "" {
			out = append(out, slog.String(p.key, p.val))
		}
	}
	return out
}

// Truncate shortens s to at most maxLen bytes without splitting a UTF-8
// sequence, appending "..." when it cuts.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
