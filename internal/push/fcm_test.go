package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFCMSenderWireFormat(t *testing.T) {
	var gotAuth string
	var got fcmRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte(`{"success":1,"failure":0,"results":[{"message_id":"1"}]}`))
	}))
	defer srv.Close()

	s := NewFCMSender("server-key", srv.URL)
	err := s.Send(context.Background(), PushMessage{
		RecipientToken: "device-token",
		Title:          "New Message",
		Body:           "hello",
		Data:           map[string]string{"sender_id": "a", "receiver_id": "b"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotAuth != "key=server-key" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "key=server-key")
	}
	if got.To != "device-token" {
		t.Errorf("to = %q", got.To)
	}
	if got.Notification.Title != "New Message" || got.Notification.Body != "hello" {
		t.Errorf("notification = %+v", got.Notification)
	}
	if got.Data["sender_id"] != "a" || got.Data["receiver_id"] != "b" {
		t.Errorf("data = %v", got.Data)
	}
}

func TestFCMSenderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewFCMSender("bad", srv.URL).Send(context.Background(), PushMessage{RecipientToken: "t"})
	if err == nil {
		t.Fatal("expected error for 401")
	}
}

func TestFCMSenderNotRegistered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":0,"failure":1,"results":[{"error":"NotRegistered"}]}`))
	}))
	defer srv.Close()

	err := NewFCMSender("key", srv.URL).Send(context.Background(), PushMessage{RecipientToken: "stale"})
	if !errors.Is(err, ErrExpired) {
		t.Errorf("err = %v, want ErrExpired", err)
	}
}

func TestFCMSenderDefaults(t *testing.T) {
	s := NewFCMSender("key", "")
	if s.endpoint != DefaultFCMEndpoint {
		t.Errorf("endpoint = %q, want default", s.endpoint)
	}
	var nilSender *FCMSender
	if nilSender.Enabled() {
		t.Error("nil sender should be disabled")
	}
	if NewFCMSender("", "").Enabled() {
		t.Error("sender without key should be disabled")
	}
}
