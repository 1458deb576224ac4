package tablebase

import (
	"fmt"

	"github.com/hailam/endgamelab/internal/chess"
)

// WireEvaluation is the oracle's payload shape. Distance metrics are
// pointer-typed so "absent" and "zero" stay distinguishable after decoding.
type WireEvaluation struct {
	Category             string     `json:"category"`
	DTZ                  *int       `json:"dtz"`
	DTM                  *int       `json:"dtm"`
	Checkmate            bool       `json:"checkmate"`
	Stalemate            bool       `json:"stalemate"`
	InsufficientMaterial bool       `json:"insufficient_material"`
	Moves                []WireMove `json:"moves"`
}

// WireMove is one candidate reply in the payload. Its category is from the
// perspective of the side to move after the move is played.
type WireMove struct {
	UCI      string `json:"uci"`
	SAN      string `json:"san"`
	Category string `json:"category"`
	DTZ      *int   `json:"dtz"`
	DTM      *int   `json:"dtm"`
	Zeroing  bool   `json:"zeroing"`
}

// parseCategory maps an oracle category string to an Outcome. The maybe-*
// and cursed/blessed qualifiers flag 50-move-rule interference; the class
// itself is unchanged.
func parseCategory(s string) (Outcome, error) {
	switch s {
	case "win", "maybe-win", "cursed-win":
		return OutcomeWin, nil
	case "draw":
		return OutcomeDraw, nil
	case "loss", "maybe-loss", "blessed-loss":
		return OutcomeLoss, nil
	case "unknown":
		return OutcomeUnknown, nil
	default:
		return OutcomeUnknown, fmt.Errorf("unknown category %q", s)
	}
}

// Transform validates a wire payload and converts it into an Evaluation for
// key. Pure; the candidate list keeps the wire order (the service ranks it).
//
// The top-level category is already from the side to move's perspective.
// Candidate categories are reported from the opponent's perspective — the
// side to move after the reply — and are inverted here so that a Candidate's
// Outcome always means "for the player choosing the move".
func Transform(wire *WireEvaluation, key string) (*Evaluation, error) {
	if wire == nil {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedResponse)
	}
	outcome, err := parseCategory(wire.Category)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	eval := &Evaluation{
		Key:     key,
		Outcome: outcome,
		DTZ:     cloneMetric(wire.DTZ),
		DTM:     cloneMetric(wire.DTM),
		Pieces:  chess.PieceCountFromKey(key),
	}

	if len(wire.Moves) > 0 {
		eval.Moves = make([]Candidate, 0, len(wire.Moves))
		for i, m := range wire.Moves {
			if m.UCI == "" {
				return nil, fmt.Errorf("%w: move %d has no uci field", ErrMalformedResponse, i)
			}
			replyOutcome, err := parseCategory(m.Category)
			if err != nil {
				return nil, fmt.Errorf("%w: move %s: %v", ErrMalformedResponse, m.UCI, err)
			}
			eval.Moves = append(eval.Moves, Candidate{
				UCI:     m.UCI,
				SAN:     m.SAN,
				Outcome: replyOutcome.Invert(),
				DTZ:     cloneMetric(m.DTZ),
				DTM:     cloneMetric(m.DTM),
			})
		}
	}
	return eval, nil
}

// cloneMetric copies an optional metric so the record does not alias the
// decoder's buffer. Sign is preserved; downstream ranking compares magnitudes.
func cloneMetric(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
