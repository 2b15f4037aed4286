package http

import (
	"context"
	"net/http"

	"github.com/dkeye/grinder/internal/adapters/signal"
	"github.com/dkeye/grinder/internal/config"
	"github.com/dkeye/grinder/internal/core"
	"github.com/dkeye/grinder/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "ct"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable anonymous token kept in
// the signed session cookie.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			sess.Set(clientTokenKey, token)
			if err := sess.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type roomURI struct {
	Code string `uri:"code" binding:"required,alphanum,max=16"`
}

type roomView struct {
	core.RoomInfo
	Participants []core.ParticipantDTO `json:"participants"`
	Timer        domain.TimerState     `json:"timer"`
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.SignalWSController, rooms core.RoomStore) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("GrinderSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": rooms.List()})
	})

	api.GET("/rooms/:code", func(c *gin.Context) {
		var uri roomURI
		if err := c.ShouldBindUri(&uri); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room code"})
			return
		}
		room, ok := rooms.Get(domain.RoomCode(uri.Code))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		participants := room.Participants()
		view := roomView{
			RoomInfo:     room.Info(),
			Participants: make([]core.ParticipantDTO, 0, len(participants)),
			Timer:        room.Timer(),
		}
		for _, p := range participants {
			view.Participants = append(view.Participants, p.DTO())
		}
		c.JSON(http.StatusOK, view)
	})

	return r
}
