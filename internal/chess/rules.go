package chess

import (
	"fmt"
	"strings"
)

// Rules is the collaborator boundary for move legality. The evaluation core
// treats the implementation as authoritative and never re-validates moves.
type Rules interface {
	// Apply plays a UCI move on pos and returns the resulting position.
	// The input position is not modified.
	Apply(pos *Position, uciMove string) (*Position, error)
}

// IllegalMoveError reports a move the rules collaborator rejected. The
// position it was applied to is left unchanged.
type IllegalMoveError struct {
	Move   string
	Reason string
}

func (e *IllegalMoveError) Error() string {
	return fmt.Sprintf("illegal move %q: %s", e.Move, e.Reason)
}

func illegal(move, format string, args ...any) error {
	return &IllegalMoveError{Move: move, Reason: fmt.Sprintf(format, args...)}
}

// BasicRules applies moves structurally: piece ownership, captures,
// promotion, castling rook hops, en passant, and clock bookkeeping. It does
// not verify check legality; a full rules engine sits in front of it in the
// UI, and the oracle rejects positions that slipped through anyway.
type BasicRules struct{}

// grid is ranks 8..1 by files a..h, 0 for empty squares.
type grid [8][8]byte

func gridFromPlacement(placement string) (*grid, error) {
	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return nil, fmt.Errorf("need 8 ranks, got %d", len(ranks))
	}
	var g grid
	for r, rankStr := range ranks {
		file := 0
		for _, c := range rankStr {
			if c >= '1' && c <= '8' {
				file += int(c - '0')
				continue
			}
			if file > 7 {
				return nil, fmt.Errorf("rank %d overflows", 8-r)
			}
			g[r][file] = byte(c)
			file++
		}
		if file != 8 {
			return nil, fmt.Errorf("rank %d has %d squares", 8-r, file)
		}
	}
	return &g, nil
}

func (g *grid) placement() string {
	var sb strings.Builder
	for r := 0; r < 8; r++ {
		empty := 0
		for f := 0; f < 8; f++ {
			if g[r][f] == 0 {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			sb.WriteByte(g[r][f])
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
		if r < 7 {
			sb.WriteByte('/')
		}
	}
	return sb.String()
}

// square holds 0-based file and rank (rank 0 = rank 1).
type square struct{ file, rank int }

func (s square) String() string {
	return string([]byte{byte('a' + s.file), byte('1' + s.rank)})
}

// at indexes the grid, which stores rank 8 first.
func (g *grid) at(s square) byte     { return g[7-s.rank][s.file] }
func (g *grid) set(s square, p byte) { g[7-s.rank][s.file] = p }
func (g *grid) clear(s square)       { g[7-s.rank][s.file] = 0 }

func parseUCISquares(move string) (from, to square, promo byte, err error) {
	if len(move) != 4 && len(move) != 5 {
		return from, to, 0, fmt.Errorf("want 4 or 5 characters, got %d", len(move))
	}
	from = square{int(move[0] - 'a'), int(move[1] - '1')}
	to = square{int(move[2] - 'a'), int(move[3] - '1')}
	for _, s := range []square{from, to} {
		if s.file < 0 || s.file > 7 || s.rank < 0 || s.rank > 7 {
			return from, to, 0, fmt.Errorf("square out of range")
		}
	}
	if len(move) == 5 {
		promo = move[4]
		if !strings.ContainsRune("qrbn", rune(promo)) {
			return from, to, 0, fmt.Errorf("invalid promotion piece %c", promo)
		}
	}
	return from, to, promo, nil
}

func isWhitePiece(p byte) bool { return p >= 'A' && p <= 'Z' }

func (BasicRules) Apply(pos *Position, uciMove string) (*Position, error) {
	from, to, promo, err := parseUCISquares(uciMove)
	if err != nil {
		return nil, illegal(uciMove, "%v", err)
	}
	g, err := gridFromPlacement(pos.Placement)
	if err != nil {
		return nil, illegal(uciMove, "bad placement: %v", err)
	}

	piece := g.at(from)
	if piece == 0 {
		return nil, illegal(uciMove, "no piece on %s", from)
	}
	white := isWhitePiece(piece)
	if white != (pos.SideToMove == "w") {
		return nil, illegal(uciMove, "%c on %s belongs to the other side", piece, from)
	}
	target := g.at(to)
	if target != 0 && isWhitePiece(target) == white {
		return nil, illegal(uciMove, "%s is occupied by own piece", to)
	}
	if target == 'K' || target == 'k' {
		return nil, illegal(uciMove, "cannot capture the king")
	}

	isPawn := piece == 'P' || piece == 'p'
	capture := target != 0

	// En passant capture: pawn moves diagonally onto the recorded target
	// square while the destination is empty.
	if isPawn && target == 0 && from.file != to.file {
		if pos.EnPassant == "-" || to.String() != pos.EnPassant {
			return nil, illegal(uciMove, "diagonal pawn move to empty %s", to)
		}
		g.clear(square{to.file, from.rank})
		capture = true
	}

	g.clear(from)
	switch {
	case promo != 0:
		if !isPawn || (white && to.rank != 7) || (!white && to.rank != 0) {
			return nil, illegal(uciMove, "promotion from %s is not a pawn on the last rank", from)
		}
		if white {
			g.set(to, promo-'a'+'A')
		} else {
			g.set(to, promo)
		}
	case isPawn && (to.rank == 0 || to.rank == 7):
		return nil, illegal(uciMove, "pawn reaching last rank must promote")
	default:
		g.set(to, piece)
	}

	// Castling: a king moving two files drags the rook across.
	if (piece == 'K' || piece == 'k') && from.file == 4 && (to.file == 6 || to.file == 2) {
		rookFrom, rookTo := square{7, from.rank}, square{5, from.rank}
		if to.file == 2 {
			rookFrom, rookTo = square{0, from.rank}, square{3, from.rank}
		}
		rook := g.at(rookFrom)
		if rook != 'R' && rook != 'r' {
			return nil, illegal(uciMove, "no rook on %s to castle with", rookFrom)
		}
		g.clear(rookFrom)
		g.set(rookTo, rook)
	}

	next := &Position{
		Placement:      g.placement(),
		SideToMove:     "b",
		Castling:       updatedCastling(pos.Castling, piece, from, to),
		EnPassant:      "-",
		HalfMoveClock:  pos.HalfMoveClock + 1,
		FullMoveNumber: pos.FullMoveNumber,
	}
	if !white {
		next.SideToMove = "w"
		next.FullMoveNumber++
	}
	if isPawn || capture {
		next.HalfMoveClock = 0
	}
	if isPawn && abs(to.rank-from.rank) == 2 {
		next.EnPassant = square{from.file, (from.rank + to.rank) / 2}.String()
	}
	return next, nil
}

// updatedCastling drops rights when a king or rook leaves its home square,
// or when a rook on its home square is captured.
func updatedCastling(rights string, piece byte, from, to square) string {
	if rights == "-" {
		return rights
	}
	drop := func(flags string) {
		for _, f := range flags {
			rights = strings.ReplaceAll(rights, string(f), "")
		}
	}
	switch {
	case piece == 'K':
		drop("KQ")
	case piece == 'k':
		drop("kq")
	}
	for _, sq := range []square{from, to} {
		switch sq {
		case square{7, 0}:
			drop("K")
		case square{0, 0}:
			drop("Q")
		case square{7, 7}:
			drop("k")
		case square{0, 7}:
			drop("q")
		}
	}
	if rights == "" {
		return "-"
	}
	return rights
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
