package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/closeshop/internal/auth"
)

// withUser injects an AuthContext the way RequireAuth would.
func withUser(userID, role string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithAuth(r.Context(), auth.AuthContext{UserID: userID, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func TestHandleSubscribeRejectsOtherUser(t *testing.T) {
	hub := NewHub(slog.Default())
	h := withUser("alice", "user", HandleSubscribe(hub, slog.Default()))

	req := httptest.NewRequest("GET", "/realtime/v1/websocket?table=notifications&event=INSERT&filter=user_id=eq.bob", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestHandleSubscribeRejectsBadQuery(t *testing.T) {
	hub := NewHub(slog.Default())
	h := withUser("alice", "user", HandleSubscribe(hub, slog.Default()))

	for _, q := range []string{
		"table=messages&filter=user_id=eq.alice",
		"table=notifications&event=DELETE&filter=user_id=eq.alice",
		"table=notifications&filter=bogus",
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/realtime/v1/websocket?"+q, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", q, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestHandleSubscribeDeliversInserts(t *testing.T) {
	hub := NewHub(slog.Default())
	srv := httptest.NewServer(withUser("alice", "user", HandleSubscribe(hub, slog.Default())))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?table=notifications&event=INSERT&filter=user_id=eq.alice"
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	var ack Event
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if err := json.Unmarshal(data, &ack); err != nil || ack.Type != EventSubscribed {
		t.Fatalf("expected SUBSCRIBED ack, got %s (%v)", data, err)
	}

	hub.PublishInsert("notifications", "alice", map[string]any{"id": 7})

	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != EventInsert || ev.Table != "notifications" {
		t.Errorf("unexpected event %+v", ev)
	}

	conn.Close(ws.StatusNormalClosure, "")
}
