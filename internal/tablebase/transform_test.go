package tablebase

import (
	"errors"
	"testing"
)

func intp(n int) *int { return &n }

const testKey = "4k3/8/4K3/4P3/8/8/8/8 w - -"

func TestTransformBasic(t *testing.T) {
	wire := &WireEvaluation{
		Category: "win",
		DTZ:      intp(9),
		DTM:      intp(13),
		Moves: []WireMove{
			{UCI: "e5e6", SAN: "e6", Category: "loss", DTZ: intp(-8), DTM: intp(-12)},
			{UCI: "e6d6", SAN: "Kd6", Category: "draw"},
		},
	}

	eval, err := Transform(wire, testKey)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if eval.Key != testKey {
		t.Errorf("key: got %q, want %q", eval.Key, testKey)
	}
	if eval.Outcome != OutcomeWin {
		t.Errorf("outcome: got %v, want win", eval.Outcome)
	}
	if eval.DTZ == nil || *eval.DTZ != 9 {
		t.Errorf("dtz: got %v, want 9", eval.DTZ)
	}
	if eval.Pieces != 3 {
		t.Errorf("pieces: got %d, want 3", eval.Pieces)
	}
	if len(eval.Moves) != 2 {
		t.Fatalf("moves: got %d, want 2", len(eval.Moves))
	}
}

func TestTransformInvertsCandidatePerspective(t *testing.T) {
	// The oracle reports each candidate from the opponent's point of view:
	// "loss" after the reply means the reply wins for the mover.
	wire := &WireEvaluation{
		Category: "win",
		Moves: []WireMove{
			{UCI: "e5e6", Category: "loss"},
			{UCI: "e6d5", Category: "win"},
			{UCI: "e6d6", Category: "draw"},
		},
	}

	eval, err := Transform(wire, testKey)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}

	want := []Outcome{OutcomeWin, OutcomeLoss, OutcomeDraw}
	for i, move := range eval.Moves {
		if move.Outcome != want[i] {
			t.Errorf("move %s: got %v, want %v", move.UCI, move.Outcome, want[i])
		}
	}
}

func TestTransformOpponentWinIsLoss(t *testing.T) {
	// A position the oracle scores "loss" for the side to move stays a loss;
	// nothing downstream may flip the record-level class.
	wire := &WireEvaluation{Category: "loss", DTZ: intp(-20)}
	eval, err := Transform(wire, testKey)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if eval.Outcome != OutcomeLoss {
		t.Errorf("outcome: got %v, want loss", eval.Outcome)
	}
	if eval.DTZ == nil || *eval.DTZ != -20 {
		t.Errorf("dtz sign must be preserved: got %v", eval.DTZ)
	}
}

func TestTransformMetricZeroVersusAbsent(t *testing.T) {
	wire := &WireEvaluation{
		Category: "draw",
		DTZ:      intp(0),
		Moves: []WireMove{
			{UCI: "e6d6", Category: "draw", DTZ: intp(0)},
			{UCI: "e6f6", Category: "draw"},
		},
	}

	eval, err := Transform(wire, testKey)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if eval.DTZ == nil || *eval.DTZ != 0 {
		t.Errorf("record dtz: zero must survive as a present value, got %v", eval.DTZ)
	}
	if eval.Moves[0].DTZ == nil {
		t.Error("move dtz 0 transformed to absent")
	}
	if eval.Moves[1].DTZ != nil {
		t.Error("absent move dtz transformed to a value")
	}
}

func TestTransformCategoryMapping(t *testing.T) {
	tests := []struct {
		category string
		want     Outcome
	}{
		{"win", OutcomeWin},
		{"maybe-win", OutcomeWin},
		{"cursed-win", OutcomeWin},
		{"draw", OutcomeDraw},
		{"loss", OutcomeLoss},
		{"maybe-loss", OutcomeLoss},
		{"blessed-loss", OutcomeLoss},
		{"unknown", OutcomeUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.category, func(t *testing.T) {
			eval, err := Transform(&WireEvaluation{Category: tc.category}, testKey)
			if err != nil {
				t.Fatalf("Transform failed: %v", err)
			}
			if eval.Outcome != tc.want {
				t.Errorf("got %v, want %v", eval.Outcome, tc.want)
			}
		})
	}
}

func TestTransformMalformed(t *testing.T) {
	tests := []struct {
		name string
		wire *WireEvaluation
	}{
		{"nil payload", nil},
		{"empty category", &WireEvaluation{}},
		{"unknown category", &WireEvaluation{Category: "meh"}},
		{"move without uci", &WireEvaluation{Category: "win", Moves: []WireMove{{Category: "loss"}}}},
		{"move with bad category", &WireEvaluation{Category: "win", Moves: []WireMove{{UCI: "e5e6", Category: "nope"}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Transform(tc.wire, testKey)
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("got %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestTransformDoesNotAliasWireMetrics(t *testing.T) {
	dtz := 5
	wire := &WireEvaluation{Category: "win", DTZ: &dtz}
	eval, err := Transform(wire, testKey)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	dtz = 99
	if *eval.DTZ != 5 {
		t.Errorf("record aliases the wire buffer: got %d", *eval.DTZ)
	}
}
