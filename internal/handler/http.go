// Package handler exposes the HTTP surface: the websocket upgrade endpoint
// and a small read-only API over player state, balances, achievements and
// the hall of fame.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/geostrike/internal/domain"
	"github.com/geostrike/internal/game"
	"github.com/geostrike/internal/redis"
	"github.com/geostrike/internal/service"
	"github.com/geostrike/internal/websocket"
)

// Store is the durable read surface the API serves from.
type Store interface {
	FindPlayer(ctx context.Context, playerID string) (*domain.Player, error)
	ListInventory(ctx context.Context, playerID string) ([]domain.InventoryItem, error)
	UseInventoryItem(ctx context.Context, playerID, itemID string) (*domain.InventoryItem, error)
}

// Handler provides the HTTP handlers for the game API
type Handler struct {
	dispatcher *game.Dispatcher
	store      Store
	ledger     *service.Ledger
	hallOfFame *redis.HallOfFame
	logger     *slog.Logger
}

// NewHandler creates a new HTTP handler. hallOfFame may be nil when the
// Redis layer is disabled.
func NewHandler(
	dispatcher *game.Dispatcher,
	store Store,
	ledger *service.Ledger,
	hallOfFame *redis.HallOfFame,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		store:      store,
		ledger:     ledger,
		hallOfFame: hallOfFame,
		logger:     logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/players/{playerID}", func(r chi.Router) {
			r.Get("/", h.GetPlayer)
			r.Get("/balance", h.GetBalance)
			r.Get("/achievements", h.GetAchievements)
			r.Get("/inventory", h.GetInventory)
			r.Post("/inventory/use/{itemID}", h.UseInventoryItem)
		})

		r.Route("/halloffame/{board}", func(r chi.Router) {
			r.Get("/top", h.GetHallOfFameTop)
			r.Get("/player/{playerID}", h.GetHallOfFameRank)
		})

		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.dispatcher, h.logger, w, r)
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// GetPlayer returns the durable player snapshot
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	player, err := h.store.FindPlayer(r.Context(), playerID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to fetch player", "player_id", playerID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, player)
}

// GetBalance returns the player's token balances
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	balance, err := h.ledger.Balance(r.Context(), playerID)
	if err != nil {
		h.logger.Error("failed to fetch balance", "player_id", playerID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, balance)
}

// GetAchievements returns the player's unlocked achievements
func (h *Handler) GetAchievements(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	achievements, err := h.ledger.Achievements(r.Context(), playerID)
	if err != nil {
		h.logger.Error("failed to fetch achievements", "player_id", playerID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, achievements)
}

// GetInventory returns every pickup a player has collected
func (h *Handler) GetInventory(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	items, err := h.store.ListInventory(r.Context(), playerID)
	if err != nil {
		h.logger.Error("failed to fetch inventory", "player_id", playerID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, items)
}

// UseInventoryItem marks one of the player's collected items as consumed
func (h *Handler) UseInventoryItem(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	itemID := chi.URLParam(r, "itemID")
	if playerID == "" || itemID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	item, err := h.store.UseInventoryItem(r.Context(), playerID, itemID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to use inventory item",
			"player_id", playerID, "item_id", itemID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, item)
}

// GetHallOfFameTop returns the top entries of one hall-of-fame board
func (h *Handler) GetHallOfFameTop(w http.ResponseWriter, r *http.Request) {
	if h.hallOfFame == nil {
		h.writeError(w, http.StatusNotFound, domain.ErrInvalidRequest)
		return
	}

	board := chi.URLParam(r, "board")
	limit := 10
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	entries, err := h.hallOfFame.TopN(r.Context(), board, limit)
	if err != nil {
		h.logger.Error("failed to fetch hall of fame", "board", board, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, entries)
}

// GetHallOfFameRank returns one player's rank on a board
func (h *Handler) GetHallOfFameRank(w http.ResponseWriter, r *http.Request) {
	if h.hallOfFame == nil {
		h.writeError(w, http.StatusNotFound, domain.ErrInvalidRequest)
		return
	}

	board := chi.URLParam(r, "board")
	playerID := chi.URLParam(r, "playerID")

	entry, err := h.hallOfFame.PlayerRank(r.Context(), board, playerID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to fetch rank", "board", board, "player_id", playerID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, entry)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.dispatcher.Registry().Count(),
	})
}
