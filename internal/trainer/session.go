// Package trainer drives a practice session: it applies user moves through
// the rules collaborator, requests follow-up evaluations, and keeps the
// visible state consistent when moves arrive faster than oracle answers.
package trainer

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hailam/endgamelab/internal/chess"
	"github.com/hailam/endgamelab/internal/tablebase"
)

// State is the session's evaluation lifecycle. There is no nullable record
// doing double duty: Resolved carries the record, Failed carries the error,
// and everything else carries neither.
type State int

const (
	StateIdle State = iota
	StatePending
	StateResolved
	StateFailed
	StateSuperseded // emitted on events only, never stored as current state
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	case StateSuperseded:
		return "superseded"
	default:
		return "idle"
	}
}

// Event is what the session publishes for the UI layer.
type Event struct {
	State  State
	FEN    string
	Epoch  uint64
	Record *tablebase.Evaluation
	Err    error
}

// Evaluator is the slice of the evaluation service the session needs.
type Evaluator interface {
	GetEvaluation(ctx context.Context, pos *chess.Position) (*tablebase.Evaluation, error)
}

// Snapshot is the session's current visible state.
type Snapshot struct {
	FEN    string
	State  State
	Epoch  uint64
	Record *tablebase.Evaluation
	Err    error
}

// Session is the move orchestrator. Every position change increments the
// epoch; an evaluation result is applied only when the epoch it was
// requested under is still current, which is the sole staleness guard —
// in-flight oracle requests are never aborted, because other sessions may
// share them through the service's deduplication.
type Session struct {
	rules chess.Rules
	evals Evaluator
	log   *logrus.Entry

	mu     sync.Mutex
	pos    *chess.Position
	epoch  uint64
	state  State
	record *tablebase.Evaluation
	err    error

	events chan Event
}

// NewSession starts a session at startFEN.
func NewSession(rules chess.Rules, evals Evaluator, startFEN string, log *logrus.Entry) (*Session, error) {
	pos, err := chess.ParseFEN(startFEN)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Session{
		rules:  rules,
		evals:  evals,
		log:    log.WithField("component", "session"),
		pos:    pos,
		state:  StateIdle,
		events: make(chan Event, 16),
	}, nil
}

// Events is the session's event stream. Sends never block; when the consumer
// falls behind, intermediate events are dropped in favor of newer ones.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Play applies a user move and requests an evaluation of the resulting
// position. A rejected move returns the rules collaborator's error and
// leaves every bit of session state untouched.
func (s *Session) Play(ctx context.Context, uciMove string) error {
	s.mu.Lock()
	next, err := s.rules.Apply(s.pos, uciMove)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.advanceLocked(next)
	pos, epoch := s.pos, s.epoch
	s.mu.Unlock()

	go s.evaluate(ctx, pos, epoch)
	return nil
}

// Reset replaces the position, superseding any pending evaluation, and
// requests an evaluation of the new position.
func (s *Session) Reset(ctx context.Context, fen string) error {
	pos, err := chess.ParseFEN(fen)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.advanceLocked(pos)
	epoch := s.epoch
	s.mu.Unlock()

	go s.evaluate(ctx, pos, epoch)
	return nil
}

// advanceLocked installs a new position: supersede whatever was pending,
// bump the epoch, and announce the pending evaluation. Caller holds s.mu.
func (s *Session) advanceLocked(next *chess.Position) {
	if s.state == StatePending {
		s.emit(Event{State: StateSuperseded, FEN: s.pos.FEN(), Epoch: s.epoch})
	}
	s.pos = next
	s.epoch++
	s.state = StatePending
	s.record = nil
	s.err = nil
	s.emit(Event{State: StatePending, FEN: next.FEN(), Epoch: s.epoch})
}

// evaluate runs off the caller's goroutine. The service call is detached
// from the triggering request's context; staleness is decided afterwards by
// comparing epochs, and a stale result is dropped without a trace.
func (s *Session) evaluate(ctx context.Context, pos *chess.Position, epoch uint64) {
	record, err := s.evals.GetEvaluation(context.WithoutCancel(ctx), pos)

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		s.log.WithFields(logrus.Fields{"epoch": epoch, "current": s.epoch}).
			Debug("discarding superseded evaluation")
		return
	}

	if err != nil {
		s.state = StateFailed
		s.err = err
		s.emit(Event{State: StateFailed, FEN: pos.FEN(), Epoch: epoch, Err: err})
		return
	}
	s.state = StateResolved
	s.record = record
	s.emit(Event{State: StateResolved, FEN: pos.FEN(), Epoch: epoch, Record: record})
}

// Snapshot returns the current visible state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		FEN:    s.pos.FEN(),
		State:  s.state,
		Epoch:  s.epoch,
		Record: s.record,
		Err:    s.err,
	}
}

// Position returns the current position value.
func (s *Session) Position() chess.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.pos
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		// Slow consumer: make room by dropping the oldest queued event.
		select {
		case <-s.events:
		default:
		}
		select {
		case s.events <- ev:
		default:
		}
	}
}
