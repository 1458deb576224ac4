package trainer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hailam/endgamelab/internal/chess"
	"github.com/hailam/endgamelab/internal/tablebase"
)

const startFEN = "4k3/8/4K3/4P3/8/8/8/8 w - - 0 1"

type evalResult struct {
	record *tablebase.Evaluation
	err    error
}

type evalCall struct {
	key     string
	release chan evalResult
}

// scriptedEvaluator hands each incoming call to the test, which decides when
// and how it resolves.
type scriptedEvaluator struct {
	calls chan evalCall
}

func newScriptedEvaluator() *scriptedEvaluator {
	return &scriptedEvaluator{calls: make(chan evalCall, 8)}
}

func (e *scriptedEvaluator) GetEvaluation(ctx context.Context, pos *chess.Position) (*tablebase.Evaluation, error) {
	call := evalCall{key: pos.Key(), release: make(chan evalResult)}
	e.calls <- call
	result := <-call.release
	return result.record, result.err
}

func (e *scriptedEvaluator) nextCall(t *testing.T) evalCall {
	t.Helper()
	select {
	case call := <-e.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("no evaluation request arrived")
		return evalCall{}
	}
}

func waitForState(t *testing.T, s *Session, want State) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := s.Snapshot()
		if snap.State == want {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("session never reached state %v (currently %v)", want, s.Snapshot().State)
	return Snapshot{}
}

func newTestSession(t *testing.T) (*Session, *scriptedEvaluator) {
	t.Helper()
	evals := newScriptedEvaluator()
	session, err := NewSession(chess.BasicRules{}, evals, startFEN, nil)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return session, evals
}

func TestSessionResolvesEvaluation(t *testing.T) {
	session, evals := newTestSession(t)

	if err := session.Play(context.Background(), "e6d6"); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if snap := session.Snapshot(); snap.State != StatePending {
		t.Errorf("state after Play: got %v, want pending", snap.State)
	}

	call := evals.nextCall(t)
	record := &tablebase.Evaluation{Key: call.key, Outcome: tablebase.OutcomeWin}
	call.release <- evalResult{record: record}

	snap := waitForState(t, session, StateResolved)
	if snap.Record != record {
		t.Error("resolved snapshot does not carry the evaluation record")
	}
	if snap.Epoch != 1 {
		t.Errorf("epoch: got %d, want 1", snap.Epoch)
	}
}

func TestSessionDiscardsStaleEvaluation(t *testing.T) {
	session, evals := newTestSession(t)
	ctx := context.Background()

	// Move A requested under epoch 1.
	if err := session.Play(ctx, "e6d6"); err != nil {
		t.Fatalf("Play A failed: %v", err)
	}
	callA := evals.nextCall(t)

	// Move B supersedes it before A resolves.
	if err := session.Play(ctx, "e8d8"); err != nil {
		t.Fatalf("Play B failed: %v", err)
	}
	callB := evals.nextCall(t)

	// The epoch-1 result arrives late and must not touch visible state.
	staleRecord := &tablebase.Evaluation{Key: callA.key, Outcome: tablebase.OutcomeLoss}
	callA.release <- evalResult{record: staleRecord}

	time.Sleep(20 * time.Millisecond)
	snap := session.Snapshot()
	if snap.State != StatePending {
		t.Fatalf("stale result changed state to %v", snap.State)
	}
	if snap.Record != nil {
		t.Fatal("stale record applied to visible state")
	}

	// The epoch-2 result must land.
	currentRecord := &tablebase.Evaluation{Key: callB.key, Outcome: tablebase.OutcomeWin}
	callB.release <- evalResult{record: currentRecord}

	snap = waitForState(t, session, StateResolved)
	if snap.Record != currentRecord {
		t.Error("current-epoch record not applied")
	}
	if snap.Epoch != 2 {
		t.Errorf("epoch: got %d, want 2", snap.Epoch)
	}
}

func TestSessionSupersededFailureIsSilent(t *testing.T) {
	session, evals := newTestSession(t)
	ctx := context.Background()

	if err := session.Play(ctx, "e6d6"); err != nil {
		t.Fatalf("Play A failed: %v", err)
	}
	callA := evals.nextCall(t)

	if err := session.Play(ctx, "e8d8"); err != nil {
		t.Fatalf("Play B failed: %v", err)
	}
	callB := evals.nextCall(t)

	// A stale failure is discarded exactly like a stale success.
	callA.release <- evalResult{err: tablebase.ErrTimeout}

	time.Sleep(20 * time.Millisecond)
	if snap := session.Snapshot(); snap.State != StatePending || snap.Err != nil {
		t.Fatalf("stale failure leaked into state: %+v", snap)
	}

	callB.release <- evalResult{record: &tablebase.Evaluation{Key: callB.key}}
	waitForState(t, session, StateResolved)
}

func TestSessionCurrentFailureSurfaces(t *testing.T) {
	session, evals := newTestSession(t)

	if err := session.Play(context.Background(), "e6d6"); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	call := evals.nextCall(t)
	call.release <- evalResult{err: tablebase.ErrRateLimited}

	snap := waitForState(t, session, StateFailed)
	if !errors.Is(snap.Err, tablebase.ErrRateLimited) {
		t.Errorf("snapshot error: got %v, want ErrRateLimited", snap.Err)
	}
}

func TestSessionIllegalMoveLeavesStateUntouched(t *testing.T) {
	session, _ := newTestSession(t)

	before := session.Snapshot()
	err := session.Play(context.Background(), "a1a2")
	if err == nil {
		t.Fatal("illegal move accepted")
	}
	var illegalErr *chess.IllegalMoveError
	if !errors.As(err, &illegalErr) {
		t.Errorf("error type: got %T, want *IllegalMoveError", err)
	}

	after := session.Snapshot()
	if after.FEN != before.FEN || after.Epoch != before.Epoch || after.State != before.State {
		t.Errorf("illegal move changed state:\n before %+v\n after  %+v", before, after)
	}
}

func TestSessionEmitsSupersededEvent(t *testing.T) {
	session, evals := newTestSession(t)
	ctx := context.Background()

	if err := session.Play(ctx, "e6d6"); err != nil {
		t.Fatalf("Play A failed: %v", err)
	}
	evals.nextCall(t)
	if err := session.Play(ctx, "e8d8"); err != nil {
		t.Fatalf("Play B failed: %v", err)
	}
	evals.nextCall(t)

	var seen []State
	deadline := time.After(time.Second)
	for len(seen) < 3 {
		select {
		case ev := <-session.Events():
			seen = append(seen, ev.State)
		case <-deadline:
			t.Fatalf("events seen so far: %v", seen)
		}
	}
	want := []State{StatePending, StateSuperseded, StatePending}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("event sequence: got %v, want %v", seen, want)
		}
	}
}

func TestSessionResetRequestsEvaluation(t *testing.T) {
	session, evals := newTestSession(t)

	if err := session.Reset(context.Background(), "8/8/3k4/8/3KP3/8/8/8 b - - 0 1"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	call := evals.nextCall(t)
	if call.key != "8/8/3k4/8/3KP3/8/8/8 b - -" {
		t.Errorf("evaluation requested for wrong key: %s", call.key)
	}
	call.release <- evalResult{record: &tablebase.Evaluation{Key: call.key}}
	waitForState(t, session, StateResolved)
}

func TestSessionRejectsBadResetFEN(t *testing.T) {
	session, _ := newTestSession(t)
	if err := session.Reset(context.Background(), "not a fen"); err == nil {
		t.Fatal("Reset accepted a malformed FEN")
	}
}
