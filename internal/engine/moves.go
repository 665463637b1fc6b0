package engine

var (
	knightOffsets = [8][2]int{{-2, -1}, {-2, 1}, {-1, -2}, {-1, 2}, {1, -2}, {1, 2}, {2, -1}, {2, 1}}
	kingOffsets   = [8][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
	rookDirs      = [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
	bishopDirs    = [4][2]int{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}}
)

// ValidMoves returns every legal destination for the piece on from.
// Empty when from is empty, holds an opposing piece, or every candidate
// would leave the mover's own king attacked.
func ValidMoves(s *State, from Square) []Square {
	if !from.valid() {
		return nil
	}
	p := s.Board.at(from)
	if p == nil || p.Color != s.CurrentPlayer {
		return nil
	}
	var legal []Square
	for _, to := range rawMoves(s, from) {
		if leavesKingSafe(s, from, to) {
			legal = append(legal, to)
		}
	}
	return legal
}

// hasAnyLegalMove reports whether the side to move has at least one reply.
func hasAnyLegalMove(s *State) bool {
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			p := s.Board[r][c]
			if p == nil || p.Color != s.CurrentPlayer {
				continue
			}
			from := Square{Row: r, Col: c}
			for _, to := range rawMoves(s, from) {
				if leavesKingSafe(s, from, to) {
					return true
				}
			}
		}
	}
	return false
}

// leavesKingSafe applies from->to to a scratch board and tests that the
// mover's king is not attacked afterwards.
func leavesKingSafe(s *State, from, to Square) bool {
	b := s.Board.clone()
	mover := b.at(from).Color
	applyToBoard(&b, from, to, s.EnPassantTarget)
	king, ok := kingSquare(&b, mover)
	if !ok {
		return false
	}
	return !squareAttacked(&b, king, mover.Opponent())
}

// applyToBoard performs the raw board mutation of a move: occupant
// replacement, en-passant removal, and the castling rook transit. Clocks,
// rights and status belong to MakeMove.
func applyToBoard(b *Board, from, to Square, epTarget *Square) *Piece {
	p := b.at(from)
	captured := b.at(to)

	if p.Type == Pawn && captured == nil && epTarget != nil && to == *epTarget && from.Col != to.Col {
		captured = b[from.Row][to.Col]
		b[from.Row][to.Col] = nil
	}
	if p.Type == King && abs(to.Col-from.Col) == 2 {
		row := from.Row
		if to.Col == 6 {
			b[row][5] = b[row][7]
			b[row][7] = nil
		} else {
			b[row][3] = b[row][0]
			b[row][0] = nil
		}
	}

	b[to.Row][to.Col] = p
	b[from.Row][from.Col] = nil
	return captured
}

// rawMoves generates geometric destinations for the piece on from,
// before the king-safety filter.
func rawMoves(s *State, from Square) []Square {
	p := s.Board.at(from)
	if p == nil {
		return nil
	}
	switch p.Type {
	case Pawn:
		return pawnMoves(s, from, p.Color)
	case Knight:
		return offsetMoves(&s.Board, from, p.Color, knightOffsets[:])
	case Bishop:
		return slideMoves(&s.Board, from, p.Color, bishopDirs[:])
	case Rook:
		return slideMoves(&s.Board, from, p.Color, rookDirs[:])
	case Queen:
		dirs := append(append([][2]int{}, rookDirs[:]...), bishopDirs[:]...)
		return slideMoves(&s.Board, from, p.Color, dirs)
	case King:
		moves := offsetMoves(&s.Board, from, p.Color, kingOffsets[:])
		return append(moves, castleMoves(s, from, p.Color)...)
	}
	return nil
}

func pawnMoves(s *State, from Square, color Color) []Square {
	var moves []Square
	dir := pawnDir(color)

	one := Square{Row: from.Row + dir, Col: from.Col}
	if one.valid() && s.Board.at(one) == nil {
		moves = append(moves, one)
		two := Square{Row: from.Row + 2*dir, Col: from.Col}
		if from.Row == pawnStartRow(color) && two.valid() && s.Board.at(two) == nil {
			moves = append(moves, two)
		}
	}
	for _, dc := range [2]int{-1, 1} {
		diag := Square{Row: from.Row + dir, Col: from.Col + dc}
		if !diag.valid() {
			continue
		}
		if t := s.Board.at(diag); t != nil && t.Color != color {
			moves = append(moves, diag)
		} else if t == nil && s.EnPassantTarget != nil && diag == *s.EnPassantTarget {
			moves = append(moves, diag)
		}
	}
	return moves
}

func offsetMoves(b *Board, from Square, color Color, offsets [][2]int) []Square {
	var moves []Square
	for _, o := range offsets {
		to := Square{Row: from.Row + o[0], Col: from.Col + o[1]}
		if !to.valid() {
			continue
		}
		if t := b.at(to); t == nil || t.Color != color {
			moves = append(moves, to)
		}
	}
	return moves
}

func slideMoves(b *Board, from Square, color Color, dirs [][2]int) []Square {
	var moves []Square
	for _, d := range dirs {
		for step := 1; ; step++ {
			to := Square{Row: from.Row + d[0]*step, Col: from.Col + d[1]*step}
			if !to.valid() {
				break
			}
			t := b.at(to)
			if t == nil {
				moves = append(moves, to)
				continue
			}
			if t.Color != color {
				moves = append(moves, to)
			}
			break
		}
	}
	return moves
}

// castleMoves yields the two-square king moves. A side is offered only
// when the right holds, the path is clear, the home rook is in place, and
// the king neither starts in check nor crosses an attacked square. The
// destination square is covered by the king-safety filter.
func castleMoves(s *State, from Square, color Color) []Square {
	row := homeRow(color)
	if from.Row != row || from.Col != 4 {
		return nil
	}
	rights := s.Castling.White
	if color == Black {
		rights = s.Castling.Black
	}
	if !rights.KingSide && !rights.QueenSide {
		return nil
	}
	enemy := color.Opponent()
	if squareAttacked(&s.Board, from, enemy) {
		return nil
	}

	var moves []Square
	if rights.KingSide &&
		s.Board[row][5] == nil && s.Board[row][6] == nil &&
		isHomeRook(s.Board[row][7], color) &&
		!squareAttacked(&s.Board, Square{Row: row, Col: 5}, enemy) {
		moves = append(moves, Square{Row: row, Col: 6})
	}
	if rights.QueenSide &&
		s.Board[row][1] == nil && s.Board[row][2] == nil && s.Board[row][3] == nil &&
		isHomeRook(s.Board[row][0], color) &&
		!squareAttacked(&s.Board, Square{Row: row, Col: 3}, enemy) {
		moves = append(moves, Square{Row: row, Col: 2})
	}
	return moves
}

func isHomeRook(p *Piece, color Color) bool {
	return p != nil && p.Type == Rook && p.Color == color
}

// squareAttacked reports whether any piece of color by geometrically
// attacks sq, honoring slider blocking.
func squareAttacked(b *Board, sq Square, by Color) bool {
	// Pawn attacks converge on sq from the direction the attacker advances,
	// so look one row behind sq relative to the attacker's movement.
	pr := sq.Row - pawnDir(by)
	for _, dc := range [2]int{-1, 1} {
		from := Square{Row: pr, Col: sq.Col + dc}
		if from.valid() {
			if p := b.at(from); p != nil && p.Type == Pawn && p.Color == by {
				return true
			}
		}
	}
	for _, o := range knightOffsets {
		from := Square{Row: sq.Row + o[0], Col: sq.Col + o[1]}
		if from.valid() {
			if p := b.at(from); p != nil && p.Type == Knight && p.Color == by {
				return true
			}
		}
	}
	for _, o := range kingOffsets {
		from := Square{Row: sq.Row + o[0], Col: sq.Col + o[1]}
		if from.valid() {
			if p := b.at(from); p != nil && p.Type == King && p.Color == by {
				return true
			}
		}
	}
	if slideAttacked(b, sq, by, rookDirs[:], Rook) {
		return true
	}
	return slideAttacked(b, sq, by, bishopDirs[:], Bishop)
}

func slideAttacked(b *Board, sq Square, by Color, dirs [][2]int, kind PieceType) bool {
	for _, d := range dirs {
		for step := 1; ; step++ {
			from := Square{Row: sq.Row + d[0]*step, Col: sq.Col + d[1]*step}
			if !from.valid() {
				break
			}
			p := b.at(from)
			if p == nil {
				continue
			}
			if p.Color == by && (p.Type == kind || p.Type == Queen) {
				return true
			}
			break
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
