package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Layr-Labs/zugzwang/internal/auth"
	"github.com/Layr-Labs/zugzwang/internal/boardpng"
	"github.com/Layr-Labs/zugzwang/internal/live"
	"github.com/Layr-Labs/zugzwang/internal/lobby"
	"github.com/Layr-Labs/zugzwang/internal/poller"
	"github.com/Layr-Labs/zugzwang/pkg/gamedto"
)

// Connectivity is the chain client surface /health consumes.
type Connectivity interface {
	ValidateConnectivity(ctx context.Context) map[uint64]bool
}

// PollerStatus reports event poller progress for /health.
type PollerStatus interface {
	Status() poller.Status
}

// Deps wires the API's collaborators.
type Deps struct {
	Lobby    *lobby.Lobby
	Verifier auth.TokenVerifier
	Chain    Connectivity
	Poller   PollerStatus
	Hub      *live.Hub
	Renderer *boardpng.Renderer
}

// NewRouter assembles the gin engine with the full API surface.
func NewRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = []string{"Authorization", "Content-Type"}
	r.Use(cors.New(corsCfg))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gamedto.Err("invalid endpoint"))
	})

	h := &handlers{deps: deps}
	r.GET("/health", h.health)

	api := r.Group("/api")
	{
		games := api.Group("/games")
		{
			games.GET("", h.listGames)
			games.GET("/open", h.listOpen)
			games.GET("/active", h.listActive)
			games.GET("/invitations", h.listInvitations)
			games.GET("/settled", h.listSettled)
			games.GET("/stats", h.stats)
			games.GET("/:id", h.getGame)
			games.GET("/:id/chess", h.getChess)
			games.GET("/:id/chess/board.png", h.boardPNG)
			games.GET("/:id/ws", h.watch)

			authed := games.Group("")
			authed.Use(requireAuth(deps.Verifier))
			{
				authed.GET("/:id/chess/valid-moves/:row/:col", h.validMoves)
				authed.POST("/:id/chess/move", h.makeMove)
			}
		}
	}
	return r
}
