package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/Layr-Labs/zugzwang/internal/obslog"
	"github.com/Layr-Labs/zugzwang/pkg/gamedto"
)

const wsWriteTimeout = 5 * time.Second

// watch upgrades to a websocket and streams game events until the client
// disconnects. Reads are discarded; the feed is one-way.
func (h *handlers) watch(c *gin.Context) {
	gameID := c.Param("id")
	if _, err := h.deps.Lobby.Get(gameID); err != nil {
		respondLobbyError(c, err)
		return
	}
	if h.deps.Hub == nil {
		c.JSON(http.StatusNotFound, gamedto.Err("live feed unavailable"))
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		obslog.L().Debug("ws_accept_error", zap.String("game_id", gameID), zap.Error(err))
		return
	}

	events, cancel := h.deps.Hub.Subscribe(gameID)
	defer cancel()

	ctx := conn.CloseRead(c.Request.Context())
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case evt := <-events:
			writeCtx, cancelWrite := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, conn, evt)
			cancelWrite()
			if err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}
}
