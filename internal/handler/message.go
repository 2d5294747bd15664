package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/closeshop/internal/auth"
	"github.com/dukerupert/closeshop/internal/model"
	"github.com/dukerupert/closeshop/internal/realtime"
	"github.com/dukerupert/closeshop/internal/store"
)

// Dispatcher sends out-of-band notifications for a new message.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg model.Message)
}

type MessageHandler struct {
	messageStore *store.MessageStore
	notifStore   *store.NotificationStore
	profileStore *store.ProfileStore
	publisher    Publisher
	dispatcher   Dispatcher
	logger       *slog.Logger
}

func NewMessageHandler(
	ms *store.MessageStore,
	ns *store.NotificationStore,
	ps *store.ProfileStore,
	pub Publisher,
	dispatcher Dispatcher,
	logger *slog.Logger,
) *MessageHandler {
	return &MessageHandler{
		messageStore: ms,
		notifStore:   ns,
		profileStore: ps,
		publisher:    pub,
		dispatcher:   dispatcher,
		logger:       logger,
	}
}

type sendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
}

type messageNotificationPayload struct {
	MessageID int64  `json:"message_id"`
	SenderID  string `json:"sender_id"`
	Content   string `json:"content"`
}

// Send handles POST /rest/v1/messages. The message is stored, the receiver
// gets a notification row streamed to their realtime channel, and a push is
// dispatched in the background.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	senderID := auth.UserID(r.Context())

	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.ReceiverID == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "receiver_id and content are required")
		return
	}
	if req.ReceiverID == senderID {
		writeError(w, http.StatusBadRequest, "cannot message yourself")
		return
	}

	receiver, err := h.profileStore.Get(req.ReceiverID)
	if err != nil {
		h.logger.Error("lookup receiver", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}
	if receiver == nil {
		writeError(w, http.StatusNotFound, "receiver not found")
		return
	}

	msg, err := h.messageStore.Create(senderID, req.ReceiverID, req.Content)
	if err != nil {
		h.logger.Error("create message", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	payload, _ := json.Marshal(messageNotificationPayload{
		MessageID: msg.ID,
		SenderID:  senderID,
		Content:   msg.Content,
	})
	n, err := h.notifStore.Create(msg.ReceiverID, model.NotifTypeMessage, payload)
	if err != nil {
		h.logger.Error("create message notification", "error", err)
	} else {
		h.publisher.PublishInsert(realtime.TableNotifications, n.UserID, n)
	}

	go h.dispatcher.Dispatch(r.Context(), *msg)

	writeJSON(w, http.StatusCreated, msg)
}

// Conversation handles GET /rest/v1/messages?with=<user id>
func (h *MessageHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	other := r.URL.Query().Get("with")
	if other == "" {
		writeError(w, http.StatusBadRequest, "with is required")
		return
	}

	msgs, err := h.messageStore.Conversation(auth.UserID(r.Context()), other)
	if err != nil {
		h.logger.Error("list conversation", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(msgs))
}
