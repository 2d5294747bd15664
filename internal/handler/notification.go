package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/closeshop/internal/auth"
	"github.com/dukerupert/closeshop/internal/model"
	"github.com/dukerupert/closeshop/internal/realtime"
	"github.com/dukerupert/closeshop/internal/store"
)

// Publisher announces inserted rows to realtime subscribers.
type Publisher interface {
	PublishInsert(table, userID string, record any)
}

type NotificationHandler struct {
	notifStore   *store.NotificationStore
	profileStore *store.ProfileStore
	publisher    Publisher
	logger       *slog.Logger
}

func NewNotificationHandler(ns *store.NotificationStore, ps *store.ProfileStore, pub Publisher, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifStore: ns, profileStore: ps, publisher: pub, logger: logger}
}

// List handles GET /rest/v1/notifications?user_id=. Rows are newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = auth.UserID(r.Context())
	}
	if userID != auth.UserID(r.Context()) && !auth.IsAdmin(r.Context()) {
		writeError(w, http.StatusForbidden, "cannot read another user's notifications")
		return
	}

	notifs, err := h.notifStore.ListByUser(userID)
	if err != nil {
		h.logger.Error("list notifications", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(notifs))
}

// MarkRead handles PATCH /rest/v1/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	ok, err := h.notifStore.MarkRead(id, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("mark notification read", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update notification")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}

	n, err := h.notifStore.GetByID(id)
	if err != nil || n == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

type createNotificationRequest struct {
	UserID  string          `json:"user_id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Create handles POST /rest/v1/notifications (admin only).
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Type == "" {
		req.Type = model.NotifTypeGeneral
	}

	profile, err := h.profileStore.Get(req.UserID)
	if err != nil {
		h.logger.Error("lookup notification recipient", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create notification")
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	n, err := h.notifStore.Create(req.UserID, req.Type, req.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification payload")
		return
	}

	h.publisher.PublishInsert(realtime.TableNotifications, n.UserID, n)
	writeJSON(w, http.StatusCreated, n)
}
