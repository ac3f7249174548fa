package handler

import (
	"encoding/json"
	"net/http"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/config"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/gateway"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/idempotency"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Resp map[string]interface{}

type Handler struct {
	logger   *zap.Logger
	services *service.Service
	gateway  *gateway.Gateway
	guard    *idempotency.Guard
	limiter  *rateLimiter
	validate *validator.Validate
	secret   []byte
	upgrader websocket.Upgrader
}

func New(logger *zap.Logger, cfg *config.Config, services *service.Service, gw *gateway.Gateway, guard *idempotency.Guard) *Handler {
	return &Handler{
		logger:   logger,
		services: services,
		gateway:  gw,
		guard:    guard,
		limiter:  newRateLimiter(cfg.RateLimit, cfg.RateBurst),
		validate: validator.New(),
		secret:   []byte(cfg.AccessSecret),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// mobile clients and the installed PWA send no usable Origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		h.Respond(w, Resp{"status": "ok"}, http.StatusOK)
	})

	// notifications
	mux.HandleFunc("GET /api/v1/notifications/unread", h.user(h.notificationsUnread))
	mux.HandleFunc("GET /api/v1/notifications/unread/count", h.user(h.notificationsUnreadCount))
	mux.HandleFunc("POST /api/v1/notifications", h.admin(h.notificationsCreate))
	mux.HandleFunc("PUT /api/v1/notifications/{id}/read", h.user(h.notificationsMarkRead))
	mux.HandleFunc("PUT /api/v1/notifications/read-all", h.user(h.notificationsMarkAllRead))
	mux.HandleFunc("DELETE /api/v1/notifications/read", h.user(h.notificationsCleanup))

	// live stream
	mux.HandleFunc("GET /api/v1/notifications/stream", h.streamUser(h.notificationsStream))
	mux.HandleFunc("GET /api/v1/notifications/ws", h.streamUser(h.notificationsWebSocket))

	// push
	mux.HandleFunc("POST /api/v1/push/subscriptions", h.user(h.pushRegister))
	mux.HandleFunc("DELETE /api/v1/push/subscriptions", h.user(h.pushUnregister))
	mux.HandleFunc("POST /api/v1/push/send", h.admin(h.pushSend))

	return mux
}

type userHandlerFunc func(user *model.User, w http.ResponseWriter, r *http.Request)

func (h *Handler) user(next userHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := h.authMiddleware(r, false)
		if err != nil {
			h.Respond(w, Resp{"error": err.Error()}, http.StatusUnauthorized)
			return
		}
		next(user, w, r)
	}
}

// streamUser also accepts ?token= because EventSource cannot set headers.
func (h *Handler) streamUser(next userHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := h.authMiddleware(r, true)
		if err != nil {
			h.Respond(w, Resp{"error": err.Error()}, http.StatusUnauthorized)
			return
		}
		next(user, w, r)
	}
}

func (h *Handler) admin(next userHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := h.adminMiddleware(r)
		if err != nil {
			status := http.StatusUnauthorized
			if err == errNotAdmin {
				status = http.StatusForbidden
			}
			h.Respond(w, Resp{"error": err.Error()}, status)
			return
		}
		next(user, w, r)
	}
}

func (h *Handler) Respond(w http.ResponseWriter, resp any, statusCode int) {
	respJSON, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(respJSON)
}
