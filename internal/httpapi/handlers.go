package httpapi

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Layr-Labs/zugzwang/internal/engine"
	"github.com/Layr-Labs/zugzwang/internal/lobby"
	"github.com/Layr-Labs/zugzwang/pkg/gamedto"
)

var addrPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

type handlers struct {
	deps Deps
}

// health reports liveness, RPC connectivity and poller progress.
func (h *handlers) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	payload := gin.H{"status": "ok"}
	if h.deps.Chain != nil {
		payload["rpc"] = h.deps.Chain.ValidateConnectivity(ctx)
	}
	if h.deps.Poller != nil {
		payload["poller"] = h.deps.Poller.Status()
	}
	c.JSON(http.StatusOK, gamedto.OK(payload))
}

func (h *handlers) listGames(c *gin.Context) {
	var filter lobby.ListFilter

	if v := c.Query("state"); v != "" {
		state := lobby.State(strings.ToUpper(v))
		switch state {
		case lobby.StateCreated, lobby.StateWaiting, lobby.StateStarted, lobby.StateSettled:
			filter.State = state
		default:
			c.JSON(http.StatusBadRequest, gamedto.Err("invalid state filter"))
			return
		}
	}
	owner, ok := optionalAddress(c, "owner")
	if !ok {
		return
	}
	opponent, ok := optionalAddress(c, "opponent")
	if !ok {
		return
	}
	filter.Owner = owner
	filter.Opponent = opponent

	c.JSON(http.StatusOK, gamedto.OK(toDTOs(h.deps.Lobby.List(filter))))
}

func (h *handlers) listOpen(c *gin.Context) {
	exclude, ok := optionalAddress(c, "excludeUser")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gamedto.OK(toDTOs(h.deps.Lobby.ListOpen(exclude))))
}

func (h *handlers) listActive(c *gin.Context) {
	addr, ok := requiredAddress(c, "user")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gamedto.OK(toDTOs(h.deps.Lobby.ListActive(addr))))
}

func (h *handlers) listInvitations(c *gin.Context) {
	addr, ok := requiredAddress(c, "user")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gamedto.OK(toDTOs(h.deps.Lobby.ListInvitations(addr))))
}

func (h *handlers) listSettled(c *gin.Context) {
	addr, ok := requiredAddress(c, "userAddress")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gamedto.OK(toDTOs(h.deps.Lobby.ListSettled(addr))))
}

func (h *handlers) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gamedto.OK(h.deps.Lobby.Stats()))
}

func (h *handlers) getGame(c *gin.Context) {
	g, err := h.deps.Lobby.Get(c.Param("id"))
	if err != nil {
		respondLobbyError(c, err)
		return
	}
	c.JSON(http.StatusOK, gamedto.OK(g.ToDTO()))
}

func (h *handlers) getChess(c *gin.Context) {
	g, err := h.deps.Lobby.Get(c.Param("id"))
	if err != nil {
		respondLobbyError(c, err)
		return
	}
	if g.Chess == nil {
		c.JSON(http.StatusNotFound, gamedto.Err("game has not started"))
		return
	}
	c.JSON(http.StatusOK, gamedto.OK(g.Chess))
}

func (h *handlers) boardPNG(c *gin.Context) {
	g, err := h.deps.Lobby.Get(c.Param("id"))
	if err != nil {
		respondLobbyError(c, err)
		return
	}
	if g.Chess == nil {
		c.JSON(http.StatusNotFound, gamedto.Err("game has not started"))
		return
	}
	data, err := h.deps.Renderer.RenderPNG(g.Chess)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gamedto.Err("render failed"))
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

func (h *handlers) validMoves(c *gin.Context) {
	from, ok := pathSquare(c)
	if !ok {
		return
	}
	moves, err := h.deps.Lobby.ValidMoves(c.Param("id"), from, c.GetString(ctxCaller))
	if err != nil {
		respondLobbyError(c, err)
		return
	}
	if moves == nil {
		moves = []engine.Square{}
	}
	c.JSON(http.StatusOK, gamedto.OK(moves))
}

func (h *handlers) makeMove(c *gin.Context) {
	var req gamedto.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gamedto.Err("malformed move request"))
		return
	}
	if !coordInRange(req.From) || !coordInRange(req.To) {
		c.JSON(http.StatusBadRequest, gamedto.Err("coordinates out of range"))
		return
	}
	promotion, err := parsePromotion(req.PromotionPiece)
	if err != nil {
		c.JSON(http.StatusBadRequest, gamedto.Err("invalid promotion piece"))
		return
	}

	mv, g, err := h.deps.Lobby.MakeMove(
		c.Param("id"),
		engine.Square{Row: req.From.Row, Col: req.From.Col},
		engine.Square{Row: req.To.Row, Col: req.To.Col},
		promotion,
		c.GetString(ctxCaller),
	)
	if err != nil {
		respondLobbyError(c, err)
		return
	}
	c.JSON(http.StatusOK, gamedto.OK(gamedto.MoveResult{Move: mv, GameState: g.Chess}))
}

func respondLobbyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, lobby.ErrNotFound):
		c.JSON(http.StatusNotFound, gamedto.Err("game not found"))
	case errors.Is(err, lobby.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gamedto.Err("caller is not a participant"))
	case errors.Is(err, lobby.ErrNotYourTurn):
		c.JSON(http.StatusBadRequest, gamedto.Err("not your turn"))
	case errors.Is(err, lobby.ErrIllegalState):
		c.JSON(http.StatusBadRequest, gamedto.Err("operation not allowed in current game state"))
	case errors.Is(err, lobby.ErrIllegalMove):
		c.JSON(http.StatusBadRequest, gamedto.Err("illegal move"))
	default:
		c.JSON(http.StatusInternalServerError, gamedto.Err("internal error"))
	}
}

func toDTOs(games []*lobby.Game) []*gamedto.Game {
	out := make([]*gamedto.Game, 0, len(games))
	for _, g := range games {
		out = append(out, g.ToDTO())
	}
	return out
}

func optionalAddress(c *gin.Context, key string) (string, bool) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return "", true
	}
	if !addrPattern.MatchString(v) {
		c.JSON(http.StatusBadRequest, gamedto.Err("invalid address in "+key))
		return "", false
	}
	return v, true
}

func requiredAddress(c *gin.Context, key string) (string, bool) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		c.JSON(http.StatusBadRequest, gamedto.Err(key+" is required"))
		return "", false
	}
	if !addrPattern.MatchString(v) {
		c.JSON(http.StatusBadRequest, gamedto.Err("invalid address in "+key))
		return "", false
	}
	return v, true
}

func pathSquare(c *gin.Context) (engine.Square, bool) {
	row, err1 := strconv.Atoi(c.Param("row"))
	col, err2 := strconv.Atoi(c.Param("col"))
	if err1 != nil || err2 != nil || row < 0 || row > 7 || col < 0 || col > 7 {
		c.JSON(http.StatusBadRequest, gamedto.Err("coordinates out of range"))
		return engine.Square{}, false
	}
	return engine.Square{Row: row, Col: col}, true
}

func coordInRange(co gamedto.Coord) bool {
	return co.Row >= 0 && co.Row <= 7 && co.Col >= 0 && co.Col <= 7
}

func parsePromotion(s string) (*engine.PieceType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return nil, nil
	case "Q", "QUEEN":
		return piecePtr(engine.Queen), nil
	case "R", "ROOK":
		return piecePtr(engine.Rook), nil
	case "B", "BISHOP":
		return piecePtr(engine.Bishop), nil
	case "N", "KNIGHT":
		return piecePtr(engine.Knight), nil
	}
	return nil, errors.New("invalid promotion piece")
}

func piecePtr(t engine.PieceType) *engine.PieceType { return &t }
