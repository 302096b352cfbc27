// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-cards-backend/internal/artwork"
	"github.com/tbourn/go-cards-backend/internal/config"
	"github.com/tbourn/go-cards-backend/internal/events"
	"github.com/tbourn/go-cards-backend/internal/http/handlers"
	"github.com/tbourn/go-cards-backend/internal/http/middleware"
	"github.com/tbourn/go-cards-backend/internal/rarity"
	"github.com/tbourn/go-cards-backend/internal/sentiment"
	"github.com/tbourn/go-cards-backend/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting,
// CORS and security headers, health and metrics endpoints, and then mounts
// the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per user/IP)
//  8. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, emitter *events.Emitter, cfg config.Config, log zerolog.Logger) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction (message content stays out of logs)
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/collaborators
	convSvc := services.NewConversationService(db)

	genSvc := services.NewGeneratorService(db, &artwork.Degrading{
		Inner:      artwork.Placeholder{},
		Timeout:    cfg.Cards.ArtworkTimeout,
		MaxElapsed: cfg.Cards.ArtworkTimeout,
	})

	ownSvc := &services.OwnershipService{
		DB:            db,
		Emitter:       emitter,
		Clock:         services.SystemClock{},
		Log:           log,
		ClaimDeadline: cfg.Cards.ClaimDeadline,
		VaultOwnerID:  cfg.Cards.VaultOwnerID,
	}

	gate := &services.EligibilityGate{
		DB:     db,
		Engine: rarity.NewEngine(rarityParams(cfg.Rarity)),
		Sentiment: &sentiment.Retrying{
			Inner:      sentiment.RuleBased{},
			Timeout:    cfg.Cards.SentimentTimeout,
			MaxElapsed: cfg.Cards.SentimentTimeout,
		},
		Generator:   genSvc,
		Ownership:   ownSvc,
		Log:         log,
		MinMessages: cfg.Cards.MinMessages,
	}

	museumSvc := &services.MuseumService{DB: db, Log: log}

	h := handlers.New(convSvc, gate, ownSvc, museumSvc)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Conversations
		api.POST("/conversations", h.CreateConversation)
		api.POST("/conversations/:id/messages", h.SendMessage)
		api.POST("/conversations/:id/participants/:uid/notable", h.SetNotable)
		api.GET("/conversations/:id/card", h.GetConversationCard)

		// Cards
		api.GET("/cards/:id", h.GetCard)
		api.GET("/cards/:id/history", h.GetCardHistory)
		api.POST("/cards/:id/claim", h.ClaimCard)
		api.POST("/cards/:id/decline", h.DeclineCard)
		api.POST("/cards/:id/burn", h.BurnCard)
		api.POST("/cards/:id/print", h.PrintCard)
		api.POST("/cards/:id/transfer", h.TransferCard)

		// Museum
		api.GET("/museum", h.ListMuseum)
		api.GET("/museum/search", h.SearchMuseum)
		api.GET("/museum/:id/events", h.GetCardEvents)
		api.POST("/museum/:id/view", h.ViewCard)
		api.POST("/museum/:id/redact", h.RedactCard)
		api.POST("/museum/:id/feature", h.FeatureCard)
	}
}

// rarityParams maps the rarity section of the runtime config onto engine
// parameters.
func rarityParams(rc config.RarityConfig) rarity.Params {
	return rarity.Params{
		LegendaryMin: rc.LegendaryMin,
		EpicMin:      rc.EpicMin,
		RareMin:      rc.RareMin,
		UncommonMin:  rc.UncommonMin,
		IdentityStep: rc.IdentityStep,
		IdentityCap:  rc.IdentityCap,
		VoiceWeight:  rc.VoiceWeight,
		VoiceCap:     rc.VoiceCap,
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
