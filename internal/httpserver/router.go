package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"breederhub/internal/auth"
	"breederhub/internal/config"
	"breederhub/internal/domain"
	"breederhub/internal/service"
	"breederhub/internal/ws"
)

// Deps bundles everything the router wires into handlers. Services are
// constructed in main so the realtime registries and side-channel
// collaborators are shared with the rest of the process.
type Deps struct {
	Threads  *service.ThreadService
	Messages *service.MessageService
	SLA      *service.SLAService
	Audit    domain.AuditLogRepository

	Tokens    *auth.TokenService
	StaffHub  *ws.Hub[int64]
	PortalHub *ws.Hub[string]
	Log       *zap.Logger
}

// NewRouter constructs the main HTTP router and wires routes and middleware.
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message":"BreederHub Messaging API","version":"1.0.0"}`))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(ActorMiddleware(deps.Tokens))

			// Threads and messages
			r.Route("/threads", func(r chi.Router) {
				r.Post("/", handleCreateThread(deps.Threads))
				r.Get("/", handleListThreads(deps.Threads))
				r.Get("/{threadID}", handleGetThread(deps.Threads))
				r.Post("/{threadID}/read", handleMarkThreadRead(deps.Threads))
				r.Post("/{threadID}/unread", handleMarkThreadUnread(deps.Threads))
				r.Post("/{threadID}/archive", handleSetThreadArchived(deps.Threads))
				r.Post("/{threadID}/flag", handleSetThreadFlagged(deps.Threads))
				r.Get("/{threadID}/messages", handleListMessages(deps.Messages))
				r.Post("/{threadID}/messages", handleCreateMessage(deps.Messages))
			})

			// Response-time statistics and business-hours config
			r.Route("/sla", func(r chi.Router) {
				r.Get("/stats", handleGetSLAStats(deps.SLA))
				r.Put("/schedule", handleUpdateSchedule(deps.SLA))
			})

			// Side-channel failure audit trail
			r.Get("/audit", handleListAudit(deps.Audit))
		})
	})

	// WebSocket endpoints: staff connect with actor tokens, portal contacts
	// with portal tokens.
	r.Get("/ws", ws.MakeStaffHandler(deps.StaffHub, deps.Tokens, cfg.CORSOrigins, deps.Log))
	r.Get("/portal/ws", ws.MakePortalHandler(deps.PortalHub, deps.Tokens, cfg.CORSOrigins, deps.Log))

	return r
}

func handleListAudit(audit domain.AuditLogRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := CurrentActor(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		entries, err := audit.ListForTenant(r.Context(), actor.TenantID, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
