package tablebase

import "sort"

// classOrder gives the primary sort key, best for the mover first.
func classOrder(o Outcome) int {
	switch o {
	case OutcomeWin:
		return 3
	case OutcomeDraw:
		return 2
	case OutcomeLoss:
		return 1
	default:
		return 0
	}
}

// metricOf picks the distance metric a candidate is compared on: DTZ when
// present, otherwise DTM. The bool reports presence; a zero metric is a real
// value, not a gap.
func metricOf(c Candidate) (int, bool) {
	if c.DTZ != nil {
		return absInt(*c.DTZ), true
	}
	if c.DTM != nil {
		return absInt(*c.DTM), true
	}
	return 0, false
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Rank orders candidates best-first for the mover: wins before draws before
// losses before unknowns. Among wins the fastest forced win (smallest
// magnitude) comes first; among losses the longest resistance (largest
// magnitude) comes first. Remaining ties keep input order, so Rank is
// idempotent and never reorders draws. The input slice is not modified.
func Rank(moves []Candidate) []Candidate {
	ranked := make([]Candidate, len(moves))
	copy(ranked, moves)

	sort.SliceStable(ranked, func(i, j int) bool {
		ci, cj := ranked[i], ranked[j]
		oi, oj := classOrder(ci.Outcome), classOrder(cj.Outcome)
		if oi != oj {
			return oi > oj
		}

		switch ci.Outcome {
		case OutcomeWin, OutcomeLoss:
			mi, iok := metricOf(ci)
			mj, jok := metricOf(cj)
			if iok != jok {
				// A known distance sorts ahead of an unknown one.
				return iok
			}
			if !iok || mi == mj {
				return false
			}
			if ci.Outcome == OutcomeWin {
				return mi < mj
			}
			return mi > mj
		default:
			return false
		}
	})
	return ranked
}

// BestMoves returns the ranked prefix sharing the best available outcome
// class, truncated to limit. A move of a strictly worse class never appears,
// even when limit leaves room.
func BestMoves(moves []Candidate, limit int) []Candidate {
	if len(moves) == 0 || limit <= 0 {
		return nil
	}
	ranked := Rank(moves)
	best := ranked[0].Outcome
	out := make([]Candidate, 0, limit)
	for _, c := range ranked {
		if c.Outcome != best || len(out) == limit {
			break
		}
		out = append(out, c)
	}
	return out
}
