package syncer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"synapse.app/ingest/internal/cursor"
)

var (
	// ErrSourceUnreachable marks a cycle whose fetch step failed before any
	// item was produced. The cursor is left untouched.
	ErrSourceUnreachable = errors.New("source unreachable")

	// ErrCycleInFlight is returned when a cycle for the same key is running.
	ErrCycleInFlight = errors.New("sync cycle already in flight")

	// ErrCyclePanicked marks a cycle aborted by a panic in an adapter or the
	// delivery client. The cursor is left where the panic found it.
	ErrCyclePanicked = errors.New("sync cycle panicked")
)

type State string

const (
	StateIdle           State = "idle"
	StateFetching       State = "fetching"
	StateDelivering     State = "delivering"
	StatePartialFailure State = "partial_failure"
	StateCommitting     State = "committing"
)

type Outcome string

const (
	OutcomeSucceeded      Outcome = "succeeded"
	OutcomePartialFailure Outcome = "partial_failure"
	OutcomeAborted        Outcome = "aborted"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeCanceled       Outcome = "canceled"
)

// CycleResult describes one Idle-to-Idle pass over a single scope.
type CycleResult struct {
	Adapter string
	Scope   string
	RunID   string

	Outcome Outcome
	States  []State

	From      cursor.Position
	To        cursor.Position
	Committed bool

	Fetched             int
	Delivered           int
	NormalizationFailed int
	DeliveryFailed      int

	// FetchErr is a mid-sequence fetch failure. Err is the cycle-level error
	// returned by RunCycle.
	FetchErr error
	Err      error

	StartedAt time.Time
	Duration  time.Duration
}

func (r *CycleResult) enter(s State) {
	if n := len(r.States); n > 0 && r.States[n-1] == s {
		return
	}
	r.States = append(r.States, s)
}

func (r *CycleResult) Key() cursor.Key {
	return cursor.Key{Source: r.Adapter, Scope: r.Scope}
}

// SourceResult folds the cycles of every scope of one adapter.
type SourceResult struct {
	Adapter string
	Cycles  []*CycleResult
	// Err is set when the scope list itself could not be resolved.
	Err error
}

// Outcome is the worst outcome among the cycles.
func (s *SourceResult) Outcome() Outcome {
	if s.Err != nil {
		return OutcomeAborted
	}
	worst := OutcomeSucceeded
	for _, c := range s.Cycles {
		if rank(c.Outcome) > rank(worst) {
			worst = c.Outcome
		}
	}
	return worst
}

func (s *SourceResult) Totals() (fetched, delivered, normFailed, deliveryFailed int) {
	for _, c := range s.Cycles {
		fetched += c.Fetched
		delivered += c.Delivered
		normFailed += c.NormalizationFailed
		deliveryFailed += c.DeliveryFailed
	}
	return
}

func rank(o Outcome) int {
	switch o {
	case OutcomeSucceeded:
		return 0
	case OutcomeSkipped:
		return 1
	case OutcomePartialFailure:
		return 2
	case OutcomeCanceled:
		return 3
	default:
		return 4
	}
}

// Summary renders results as the plain-text report returned by the manual
// trigger, one line per adapter followed by one indented line per scope.
func Summary(results []*SourceResult) string {
	if len(results) == 0 {
		return "no adapters configured\n"
	}
	var b strings.Builder
	for _, s := range results {
		fetched, delivered, normFailed, deliveryFailed := s.Totals()
		fmt.Fprintf(&b, "%s: %s (scopes=%d fetched=%d delivered=%d normalization_failed=%d delivery_failed=%d)\n",
			s.Adapter, s.Outcome(), len(s.Cycles), fetched, delivered, normFailed, deliveryFailed)
		if s.Err != nil {
			fmt.Fprintf(&b, "  error: %v\n", s.Err)
		}
		for _, c := range s.Cycles {
			fmt.Fprintf(&b, "  %s: %s fetched=%d delivered=%d", c.Scope, c.Outcome, c.Fetched, c.Delivered)
			if c.Committed {
				fmt.Fprintf(&b, " cursor=%s", c.To.Time.Format(time.RFC3339))
			}
			if c.Err != nil {
				fmt.Fprintf(&b, " error=%q", c.Err.Error())
			} else if c.FetchErr != nil {
				fmt.Fprintf(&b, " fetch_error=%q", c.FetchErr.Error())
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}
