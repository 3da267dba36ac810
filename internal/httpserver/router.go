package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/config"
	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/domain"
	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/security"
	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/service"
	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/ws"
)

// Deps bundles everything the router wires together.
type Deps struct {
	Cfg      *config.Config
	Log      *zap.SugaredLogger
	Hub      *ws.Hub
	Typing   *ws.TypingBroker
	Tokens   *security.TokenService
	Users    domain.UserRepository
	Auth     *service.AuthService
	UserSvc  *service.UserService
	Threads  *service.ThreadService
	Messages *service.MessageService
	Presence *service.PresenceService
}

// NewRouter constructs the main HTTP router and wires routes and middleware.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "PESS Tracker chat API",
			"version": "1.0.0",
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", handleLogin(d.Auth))

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(d.Tokens, d.Users))

			r.Post("/auth/logout", handleLogout())
			r.Get("/auth/me", handleMe())

			r.Route("/users", func(r chi.Router) {
				r.Get("/", handleListUsers(d.UserSvc, d.Presence))
				r.Get("/online", handleListOnlineUsers(d.Presence))
				r.Get("/{userID}", handleGetUser(d.UserSvc, d.Presence))
			})

			r.Post("/presence/ping", handlePresencePing(d.Presence))

			r.Route("/chats", func(r chi.Router) {
				r.Post("/", handleCreateThread(d))
				r.Get("/", handleListThreads(d.Threads))
				r.Get("/{threadID}", handleGetThread(d.Threads))
				r.Patch("/{threadID}", handleUpdateThread(d))
				r.Delete("/{threadID}", handleDeleteThread(d))
				r.Post("/{threadID}/participants", handleAddParticipants(d))
				r.Delete("/{threadID}/participants/{userID}", handleRemoveParticipant(d))
				r.Get("/{threadID}/messages", handleListMessages(d.Messages))
				r.Post("/{threadID}/messages", handleSendMessage(d))
				r.Delete("/{threadID}/messages/{messageID}", handleDeleteMessage(d))
				r.Get("/{threadID}/messages/{messageID}/audit", handleAuditMessage(d.Messages))
			})
		})
	})

	r.Get("/ws", ws.MakeHandler(
		d.Hub,
		d.Typing,
		d.Tokens,
		d.Users,
		d.Threads,
		d.Messages,
		d.Presence,
		d.Log,
		d.Cfg.CORSOrigins,
	))

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps the domain sentinels to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrConstraint):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
