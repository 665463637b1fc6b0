package engine

// MakeMove applies from->to for the side to move and returns the resulting
// position along with the accepted move. The input state is not modified.
// promotion selects the piece a promoting pawn becomes; nil means queen.
func MakeMove(s *State, from, to Square, promotion *PieceType) (*State, *Move, error) {
	if s.Status.Terminal() {
		return nil, nil, ErrGameOver
	}
	if promotion != nil && !validPromotion(*promotion) {
		return nil, nil, ErrInvalidPromotion
	}
	if !containsSquare(ValidMoves(s, from), to) {
		return nil, nil, ErrIllegalMove
	}
	// A king can never actually be a capture target; legality filtering
	// already forbids it, this guards corrupt positions.
	if t := s.Board.at(to); t != nil && t.Type == King {
		return nil, nil, ErrIllegalMove
	}

	ns := s.Clone()
	p := ns.Board.at(from)
	mover := p.Color

	mv := Move{From: from, To: to, Piece: *p}
	if p.Type == King && abs(to.Col-from.Col) == 2 {
		if to.Col == 6 {
			mv.Castle = CastleKingSide
		} else {
			mv.Castle = CastleQueenSide
		}
	}
	epBefore := ns.EnPassantTarget
	wasEmpty := ns.Board.at(to) == nil

	captured := applyToBoard(&ns.Board, from, to, epBefore)
	if captured != nil {
		cp := *captured
		mv.Captured = &cp
		mv.EnPassant = p.Type == Pawn && wasEmpty
		if mover == White {
			ns.Captured.White = append(ns.Captured.White, cp)
		} else {
			ns.Captured.Black = append(ns.Captured.Black, cp)
		}
	}

	if p.Type == Pawn && to.Row == promotionRow(mover) {
		promoted := Queen
		if promotion != nil {
			promoted = *promotion
		}
		ns.Board[to.Row][to.Col] = &Piece{Type: promoted, Color: mover}
		mv.Promotion = &promoted
	}

	updateCastlingRights(ns, p, from, to, captured)

	ns.EnPassantTarget = nil
	if p.Type == Pawn && abs(to.Row-from.Row) == 2 {
		ns.EnPassantTarget = &Square{Row: (from.Row + to.Row) / 2, Col: from.Col}
	}

	if p.Type == Pawn || captured != nil {
		ns.HalfMoveClock = 0
	} else {
		ns.HalfMoveClock++
	}
	if mover == Black {
		ns.FullMoveNumber++
	}

	ns.CurrentPlayer = mover.Opponent()
	ns.MoveHistory = append(ns.MoveHistory, mv)

	updateStatus(ns, mover)
	return ns, &mv, nil
}

// updateCastlingRights voids rights disturbed by this move: any king move,
// a rook leaving its home corner, or a capture landing on one.
func updateCastlingRights(s *State, p *Piece, from, to Square, captured *Piece) {
	if p.Type == King {
		setRights(s, p.Color, SideRights{})
	}
	if p.Type == Rook {
		voidCornerRight(s, p.Color, from)
	}
	if captured != nil && captured.Type == Rook {
		voidCornerRight(s, captured.Color, to)
	}
}

func voidCornerRight(s *State, color Color, corner Square) {
	if corner.Row != homeRow(color) {
		return
	}
	rights := rightsOf(s, color)
	switch corner.Col {
	case 0:
		rights.QueenSide = false
	case 7:
		rights.KingSide = false
	default:
		return
	}
	setRights(s, color, rights)
}

func rightsOf(s *State, color Color) SideRights {
	if color == White {
		return s.Castling.White
	}
	return s.Castling.Black
}

func setRights(s *State, color Color, r SideRights) {
	if color == White {
		s.Castling.White = r
	} else {
		s.Castling.Black = r
	}
}

// updateStatus adjudicates the position for the new side to move.
func updateStatus(s *State, mover Color) {
	inCheck := false
	if king, ok := kingSquare(&s.Board, s.CurrentPlayer); ok {
		inCheck = squareAttacked(&s.Board, king, mover)
	}
	hasReply := hasAnyLegalMove(s)

	switch {
	case inCheck && !hasReply:
		s.Status = StatusCheckmate
		w := mover
		s.Winner = &w
	case inCheck:
		s.Status = StatusCheck
	case !hasReply:
		s.Status = StatusStalemate
	default:
		s.Status = StatusActive
	}
}

func validPromotion(p PieceType) bool {
	switch p {
	case Queen, Rook, Bishop, Knight:
		return true
	}
	return false
}

func containsSquare(list []Square, sq Square) bool {
	for _, s := range list {
		if s == sq {
			return true
		}
	}
	return false
}
