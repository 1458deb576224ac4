// Package tablebase is the access layer over the remote endgame oracle:
// transport with retry and rate-limit handling, response transformation,
// candidate-move ranking, a bounded TTL cache, and request deduplication.
package tablebase

// Outcome classifies a position from the perspective of the side to move.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeLoss
	OutcomeDraw
	OutcomeWin
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWin:
		return "win"
	case OutcomeDraw:
		return "draw"
	case OutcomeLoss:
		return "loss"
	default:
		return "unknown"
	}
}

// Invert flips the perspective: a win for one side is a loss for the other.
// Draw and Unknown are side-independent.
func (o Outcome) Invert() Outcome {
	switch o {
	case OutcomeWin:
		return OutcomeLoss
	case OutcomeLoss:
		return OutcomeWin
	default:
		return o
	}
}

// Candidate is a reply available in the evaluated position. Outcome is from
// the perspective of the side to move in that position (the mover), so a
// winning position has at least one Candidate with OutcomeWin.
//
// DTZ and DTM are nil when the oracle did not report them. Zero is a real
// value (conversion or mate is immediate), distinct from absent.
type Candidate struct {
	UCI     string  `json:"uci"`
	SAN     string  `json:"san,omitempty"`
	Outcome Outcome `json:"outcome"`
	DTZ     *int    `json:"dtz,omitempty"`
	DTM     *int    `json:"dtm,omitempty"`
}

// Evaluation is the transformed oracle answer for one position. It is
// immutable after construction; the cache hands out the same pointer to
// every caller.
type Evaluation struct {
	Key     string      `json:"key"`
	Outcome Outcome     `json:"outcome"`
	DTZ     *int        `json:"dtz,omitempty"`
	DTM     *int        `json:"dtm,omitempty"`
	Pieces  int         `json:"pieces"`
	Moves   []Candidate `json:"moves,omitempty"`
}
