package cursor

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Key addresses one watermark: an adapter name and the scope it polls.
type Key struct {
	Source string `json:"source"`
	Scope  string `json:"scope"`
}

func (k Key) String() string {
	return k.Source + "|" + k.Scope
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	source, scope, ok := strings.Cut(s, "|")
	if !ok {
		return Key{}, errors.New("cursor key missing separator")
	}
	return Key{Source: source, Scope: scope}, nil
}

// Position is the last processed point of a scope. Time is always set; Token
// carries an opaque source-native marker when the adapter has one.
type Position struct {
	Time  time.Time `json:"time"`
	Token string    `json:"token,omitempty"`
}

func At(t time.Time) Position {
	return Position{Time: t.UTC()}
}

func (p Position) IsZero() bool {
	return p.Time.IsZero() && p.Token == ""
}

// Before reports whether p is strictly earlier than other.
func (p Position) Before(other Position) bool {
	return p.Time.Before(other.Time)
}

// Advances reports whether committing p over from moves the cursor forward.
// At equal times a differing token counts as progress.
func (p Position) Advances(from Position) bool {
	if p.Time.After(from.Time) {
		return true
	}
	return p.Time.Equal(from.Time) && p.Token != "" && p.Token != from.Token
}

func (p Position) Equal(other Position) bool {
	return p.Time.Equal(other.Time) && p.Token == other.Token
}

// Backend persists positions. Implementations must be safe for concurrent use
// across different keys.
type Backend interface {
	Load(ctx context.Context, key Key) (Position, bool, error)
	Save(ctx context.Context, key Key, pos Position) error
	Delete(ctx context.Context, key Key) error
	DeleteAll(ctx context.Context) error
}
