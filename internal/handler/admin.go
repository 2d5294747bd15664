package handler

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/dukerupert/closeshop/internal/store"
)

// SubscriberCounter reports connected realtime subscribers.
type SubscriberCounter interface {
	ClientCount() int
}

type AdminHandler struct {
	profileStore *store.ProfileStore
	shopStore    *store.ShopStore
	productStore *store.ProductStore
	messageStore *store.MessageStore
	notifStore   *store.NotificationStore
	subscribers  SubscriberCounter
	logger       *slog.Logger
}

func NewAdminHandler(
	ps *store.ProfileStore,
	ss *store.ShopStore,
	prs *store.ProductStore,
	ms *store.MessageStore,
	ns *store.NotificationStore,
	subscribers SubscriberCounter,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		profileStore: ps,
		shopStore:    ss,
		productStore: prs,
		messageStore: ms,
		notifStore:   ns,
		subscribers:  subscribers,
		logger:       logger,
	}
}

type statsResponse struct {
	ProfilesByRole      map[string]int `json:"profiles_by_role"`
	Shops               int            `json:"shops"`
	Products            int            `json:"products"`
	Messages            int            `json:"messages"`
	Notifications       int            `json:"notifications"`
	RealtimeSubscribers int            `json:"realtime_subscribers"`
}

// Stats handles GET /admin/v1/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var resp statsResponse
	var err error

	if resp.ProfilesByRole, err = h.profileStore.CountByRole(); err != nil {
		h.statsError(w, err)
		return
	}
	if resp.Shops, err = h.shopStore.Count(); err != nil {
		h.statsError(w, err)
		return
	}
	if resp.Products, err = h.productStore.Count(); err != nil {
		h.statsError(w, err)
		return
	}
	if resp.Messages, err = h.messageStore.Count(); err != nil {
		h.statsError(w, err)
		return
	}
	if resp.Notifications, err = h.notifStore.Count(); err != nil {
		h.statsError(w, err)
		return
	}
	resp.RealtimeSubscribers = h.subscribers.ClientCount()

	writeJSON(w, http.StatusOK, resp)
}

func (h *AdminHandler) statsError(w http.ResponseWriter, err error) {
	h.logger.Error("admin stats", "error", err)
	writeError(w, http.StatusInternalServerError, "failed to load stats")
}

// Health handles GET /health
func Health(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
