package http

import (
	"context"
	"net/http"

	"github.com/dkeye/VoiceCall/internal/adapters/signal"
	"github.com/dkeye/VoiceCall/internal/app/relay"
	"github.com/dkeye/VoiceCall/internal/config"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const identityKey = "identity"

// IdentityMiddleware resolves the caller identity: the id query parameter,
// else the identity stored in the cookie session, else a fresh one.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		stored, _ := session.Get(identityKey).(string)

		var id domain.Identity
		switch raw := c.Query("id"); {
		case raw != "":
			parsed, err := domain.ParseIdentity(raw)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			id = parsed
		case stored != "":
			id = domain.Identity(stored)
		default:
			id = domain.NewIdentity()
		}

		if stored != string(id) {
			session.Set(identityKey, string(id))
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func identityOf(c *gin.Context) domain.Identity {
	id, _ := c.Get(identityKey)
	v, _ := id.(domain.Identity)
	return v
}

func SetupRouter(ctx context.Context, cfg *config.Config, hub *relay.Hub) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	ctrl := signal.NewSignalWSController(hub, signal.Config{
		ReadLimit:    cfg.Relay.ReadLimit,
		PingPeriod:   cfg.Relay.PingPeriod,
		WriteTimeout: cfg.Relay.WriteTimeout,
		SendBuffer:   cfg.Relay.SendBuffer,
	})

	store := cookie.NewStore([]byte(cfg.Relay.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 3600,
		HttpOnly: true,
		Secure:   cfg.Relay.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	api := r.Group("/api")
	api.Use(sessions.Sessions("VoiceCallSessions", store))
	api.Use(IdentityMiddleware())

	api.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"identity": identityOf(c)})
	})

	api.GET("/peers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"peers": hub.Online()})
	})

	api.GET("/ws/signal", func(c *gin.Context) {
		id := identityOf(c)
		log.Info().Str("module", "adapters.http").Str("identity", string(id)).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c, id)
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
