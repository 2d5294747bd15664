package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultFCMEndpoint is the FCM legacy HTTP send endpoint.
const DefaultFCMEndpoint = "https://fcm.googleapis.com/fcm/send"

// PushMessage is one notification addressed to a device token.
type PushMessage struct {
	RecipientToken string
	Title          string
	Body           string
	Data           map[string]string
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmRequest struct {
	To           string            `json:"to"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		Error string `json:"error"`
	} `json:"results"`
}

// FCMSender delivers PushMessages through the FCM legacy HTTP API.
type FCMSender struct {
	serverKey string
	endpoint  string
	client    *http.Client
}

// NewFCMSender creates a sender. An empty endpoint uses DefaultFCMEndpoint.
func NewFCMSender(serverKey, endpoint string) *FCMSender {
	if endpoint == "" {
		endpoint = DefaultFCMEndpoint
	}
	return &FCMSender{
		serverKey: serverKey,
		endpoint:  endpoint,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a server key is configured.
func (s *FCMSender) Enabled() bool {
	return s != nil && s.serverKey != ""
}

// Send posts msg to FCM once. Tokens FCM reports as unregistered yield ErrExpired.
func (s *FCMSender) Send(ctx context.Context, msg PushMessage) error {
	body, err := json.Marshal(fcmRequest{
		To:           msg.RecipientToken,
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
	})
	if err != nil {
		return fmt.Errorf("marshal fcm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create fcm request: %w", err)
	}
	req.Header.Set("Authorization", "key="+s.serverKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fcm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("fcm returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var result fcmResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode fcm response: %w", err)
	}
	if result.Failure > 0 && len(result.Results) > 0 {
		switch reason := result.Results[0].Error; reason {
		case "NotRegistered", "InvalidRegistration":
			return ErrExpired
		default:
			return fmt.Errorf("fcm delivery failed: %s", reason)
		}
	}
	return nil
}
