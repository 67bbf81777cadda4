/*
Package handler provides the HTTP handlers and routing setup for the PingUp server.

This file defines the main Router, applying logging, CORS and keyed rate limiting before
delegating requests to the user, message, media and subscription handlers.
*/
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"pingup/internal/pkg/auth/jwt"
	"pingup/internal/pkg/errs"
	"pingup/internal/pkg/limiter"
	"pingup/internal/pkg/logx"
	"pingup/internal/pkg/resp"
)

const (
	SendRate       = 5
	SendBurst      = 20
	ConnectRate    = 0.5
	ConnectBurst   = 5
	SubscribeRate  = 0.2
	SubscribeBurst = 5
)

// byUser keys limiters by the authenticated user. Anonymous requests yield an empty key.
func byUser(r *http.Request) string {
	return jwt.UserID(r)
}

// Router sets up the main HTTP routing table. The rate limiters' cleanup goroutines stop when ctx ends.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	sendLimiter := limiter.New(ctx, rate.Limit(SendRate), SendBurst)
	connectLimiter := limiter.New(ctx, rate.Limit(ConnectRate), ConnectBurst)
	subscribeLimiter := limiter.New(ctx, rate.Limit(SubscribeRate), SubscribeBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", HandleHealth(deps))

	r.Group(func(authed chi.Router) {
		authed.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))
		authed.Use(jwt.RequireIdentity)

		authed.With(subscribeLimiter.Middleware(byUser)).Get("/ws", HandleWebSocket(deps, wsUpgrader))

		authed.Route("/api", func(api chi.Router) {
			api.Route("/user", func(u chi.Router) {
				u.Post("/sync", HandleSyncUser(deps))
				u.Get("/network", HandleGetNetwork(deps))
				u.Get("/status/{userId}", HandleGetStatus(deps))
				u.Post("/follow", HandleFollow(deps))
				u.Post("/unfollow", HandleUnfollow(deps))
				u.With(connectLimiter.Middleware(byUser)).Post("/connect", HandleRequestConnection(deps))
				u.Post("/accept", HandleAcceptConnection(deps))
				u.Post("/decline", HandleDeclineConnection(deps))
			})

			api.Route("/message", func(m chi.Router) {
				m.With(sendLimiter.Middleware(byUser)).Post("/send", HandleSendMessage(deps))
				m.Post("/get", HandleGetConversation(deps))
				m.Get("/recent", HandleRecentMessages(deps))
				m.With(subscribeLimiter.Middleware(byUser)).Get("/stream", HandleEventStream(deps))
			})

			api.Post("/media/presign", HandlePresignUploadURL(deps))
			api.Get("/media", HandlePresignDownloadURL(deps))
		})
	})

	return r
}

// HandleHealth reports liveness plus store reachability and the number of online users.
func HandleHealth(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"status":  "ok",
			"service": "PingUp Server",
			"online":  deps.Registry.Len(),
		}

		if deps.Store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := deps.Store.Ping(ctx); err != nil {
				logx.Warn("Health check: store unreachable", "error", err.Error())
				data["status"] = "degraded"
				resp.RespondJSON(w, r, http.StatusServiceUnavailable, resp.JSONResponse{Code: errs.ErrStoreUnavailable, Message: "store unreachable", Data: data})
				return
			}
			data["store"] = "ok"
		}

		resp.RespondSuccess(w, r, data)
	}
}
