package engine

// backRank is the piece order of each side's home row.
var backRank = [8]PieceType{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}

// Initial returns the standard starting position, White to move.
func Initial() *State {
	s := &State{
		CurrentPlayer: White,
		Status:        StatusActive,
		Castling: CastlingRights{
			White: SideRights{KingSide: true, QueenSide: true},
			Black: SideRights{KingSide: true, QueenSide: true},
		},
		HalfMoveClock:  0,
		FullMoveNumber: 1,
	}
	for c := 0; c < 8; c++ {
		s.Board[0][c] = &Piece{Type: backRank[c], Color: Black}
		s.Board[1][c] = &Piece{Type: Pawn, Color: Black}
		s.Board[6][c] = &Piece{Type: Pawn, Color: White}
		s.Board[7][c] = &Piece{Type: backRank[c], Color: White}
	}
	return s
}

// kingSquare locates the king of the given color. The second return is
// false only for corrupt boards with no king.
func kingSquare(b *Board, color Color) (Square, bool) {
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			if p := b[r][c]; p != nil && p.Type == King && p.Color == color {
				return Square{Row: r, Col: c}, true
			}
		}
	}
	return Square{}, false
}

// homeRow is the back rank of a color.
func homeRow(c Color) int {
	if c == White {
		return 7
	}
	return 0
}

// pawnDir is the row delta a pawn of this color advances by.
func pawnDir(c Color) int {
	if c == White {
		return -1
	}
	return 1
}

// pawnStartRow is the rank pawns of this color start on.
func pawnStartRow(c Color) int {
	if c == White {
		return 6
	}
	return 1
}

// promotionRow is the rank a pawn of this color promotes on.
func promotionRow(c Color) int {
	if c == White {
		return 0
	}
	return 7
}
