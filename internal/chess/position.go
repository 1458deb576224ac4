// Package chess holds the position description shared by the evaluation
// core and the rules collaborator boundary. It parses and validates FEN,
// and derives the canonical cache key used to identify a position.
package chess

import (
	"fmt"
	"strconv"
	"strings"
)

// Position describes a board the way FEN does. The struct is a plain value;
// Apply on a Rules implementation returns a new Position rather than
// mutating in place.
type Position struct {
	Placement      string // piece placement field, ranks 8..1 separated by '/'
	SideToMove     string // "w" or "b"
	Castling       string // subset of "KQkq", or "-"
	EnPassant      string // target square like "e3", or "-"
	HalfMoveClock  int
	FullMoveNumber int
}

// InvalidPositionError reports a structurally malformed position description.
type InvalidPositionError struct {
	FEN    string
	Reason string
}

func (e *InvalidPositionError) Error() string {
	return fmt.Sprintf("invalid position %q: %s", e.FEN, e.Reason)
}

func invalid(fen, format string, args ...any) error {
	return &InvalidPositionError{FEN: fen, Reason: fmt.Sprintf(format, args...)}
}

// ParseFEN parses and validates a FEN string. The halfmove clock and
// fullmove number are optional and default to 0 and 1.
func ParseFEN(fen string) (*Position, error) {
	parts := strings.Fields(fen)
	if len(parts) < 4 {
		return nil, invalid(fen, "need at least 4 fields, got %d", len(parts))
	}

	pos := &Position{
		Placement:      parts[0],
		SideToMove:     parts[1],
		Castling:       parts[2],
		EnPassant:      parts[3],
		FullMoveNumber: 1,
	}

	if err := validatePlacement(fen, pos.Placement); err != nil {
		return nil, err
	}

	if pos.SideToMove != "w" && pos.SideToMove != "b" {
		return nil, invalid(fen, "invalid side to move: %s", pos.SideToMove)
	}

	if err := validateCastling(fen, pos.Castling); err != nil {
		return nil, err
	}

	if pos.EnPassant != "-" {
		if len(pos.EnPassant) != 2 ||
			pos.EnPassant[0] < 'a' || pos.EnPassant[0] > 'h' ||
			(pos.EnPassant[1] != '3' && pos.EnPassant[1] != '6') {
			return nil, invalid(fen, "invalid en passant square: %s", pos.EnPassant)
		}
	}

	if len(parts) > 4 {
		hmc, err := strconv.Atoi(parts[4])
		if err != nil || hmc < 0 {
			return nil, invalid(fen, "invalid half-move clock: %s", parts[4])
		}
		pos.HalfMoveClock = hmc
	}

	if len(parts) > 5 {
		fmn, err := strconv.Atoi(parts[5])
		if err != nil || fmn < 1 {
			return nil, invalid(fen, "invalid full-move number: %s", parts[5])
		}
		pos.FullMoveNumber = fmn
	}

	return pos, nil
}

// validatePlacement checks the piece placement field: 8 ranks of 8 squares,
// known piece letters only, exactly one king per side.
func validatePlacement(fen, placement string) error {
	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return invalid(fen, "need 8 ranks, got %d", len(ranks))
	}

	var whiteKings, blackKings, pieces int
	for i, rankStr := range ranks {
		squares := 0
		for _, c := range rankStr {
			switch {
			case c >= '1' && c <= '8':
				squares += int(c - '0')
			case strings.ContainsRune("pnbrqkPNBRQK", c):
				squares++
				pieces++
				if c == 'K' {
					whiteKings++
				} else if c == 'k' {
					blackKings++
				}
			default:
				return invalid(fen, "invalid piece character: %c", c)
			}
		}
		if squares != 8 {
			return invalid(fen, "rank %d has %d squares", 8-i, squares)
		}
	}

	if whiteKings != 1 || blackKings != 1 {
		return invalid(fen, "need exactly one king per side, got %d white and %d black", whiteKings, blackKings)
	}
	if pieces > 32 {
		return invalid(fen, "too many pieces: %d", pieces)
	}
	return nil
}

func validateCastling(fen, castling string) error {
	if castling == "-" {
		return nil
	}
	if castling == "" {
		return invalid(fen, "empty castling field")
	}
	for _, c := range castling {
		if !strings.ContainsRune("KQkq", c) {
			return invalid(fen, "invalid castling character: %c", c)
		}
	}
	return nil
}

// Key returns the canonical cache key for the position: the first four FEN
// fields. The halfmove clock and fullmove number do not affect the oracle's
// answer, so positions differing only in those share a key.
func (p *Position) Key() string {
	return p.Placement + " " + p.SideToMove + " " + p.Castling + " " + p.EnPassant
}

// FEN returns the full six-field FEN representation.
func (p *Position) FEN() string {
	return fmt.Sprintf("%s %s %s %s %d %d",
		p.Placement, p.SideToMove, p.Castling, p.EnPassant,
		p.HalfMoveClock, p.FullMoveNumber)
}

// PieceCount returns the number of pieces on the board.
func (p *Position) PieceCount() int {
	count := 0
	for _, c := range p.Placement {
		if strings.ContainsRune("pnbrqkPNBRQK", c) {
			count++
		}
	}
	return count
}

// PieceCountFromKey counts pieces in a position key without a full parse.
func PieceCountFromKey(key string) int {
	placement, _, _ := strings.Cut(key, " ")
	count := 0
	for _, c := range placement {
		if strings.ContainsRune("pnbrqkPNBRQK", c) {
			count++
		}
	}
	return count
}
