package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/closeshop/internal/auth"
)

// TableNotifications is the only table currently streamed.
const TableNotifications = "notifications"

var errBadFilter = errors.New("filter must have the form user_id=eq.<id>")

// ParseFilter parses a row filter of the form "user_id=eq.<id>" and returns
// the user id.
func ParseFilter(filter string) (string, error) {
	col, rest, ok := strings.Cut(filter, "=")
	if !ok || col != "user_id" {
		return "", errBadFilter
	}
	value, ok := strings.CutPrefix(rest, "eq.")
	if !ok || value == "" {
		return "", errBadFilter
	}
	return value, nil
}

// HandleSubscribe upgrades an authenticated request to a websocket
// subscribed to INSERT events on one user's rows. Only the owner or an admin
// may subscribe.
func HandleSubscribe(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		table := q.Get("table")
		if table != TableNotifications {
			writeError(w, http.StatusBadRequest, "unsupported table")
			return
		}
		if event := q.Get("event"); event != "" && event != EventInsert {
			writeError(w, http.StatusBadRequest, "unsupported event")
			return
		}
		userID, err := ParseFilter(q.Get("filter"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		ac, _ := auth.FromContext(r.Context())
		if ac.UserID != userID && !auth.IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, "cannot subscribe to another user's rows")
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // clients authenticate with bearer tokens, not cookies
		})
		if err != nil {
			logger.Error("websocket accept", "error", err)
			return
		}
		defer conn.CloseNow()

		topic := Topic(table, userID)
		logger.Debug("subscriber connected", "topic", topic)
		NewClient(hub, conn).Run(r.Context(), topic, table)
		logger.Debug("subscriber disconnected", "topic", topic)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
