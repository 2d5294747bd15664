package push

import (
	"encoding/base64"
	"testing"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	if pub == "" {
		t.Error("expected non-empty public key")
	}
	if priv == "" {
		t.Error("expected non-empty private key")
	}

	// Public key should be base64url-encoded, 65 bytes uncompressed P-256 point
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	// Private key should be base64url-encoded, 32 bytes P-256 scalar
	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

func TestWebPushServiceEnabled(t *testing.T) {
	var nilSvc *WebPushService
	if nilSvc.Enabled() {
		t.Error("nil service should be disabled")
	}
	if NewWebPushService("", "", "mailto:x@example.com").Enabled() {
		t.Error("service without keys should be disabled")
	}
	svc := NewWebPushService("pub", "priv", "mailto:x@example.com")
	if !svc.Enabled() {
		t.Error("service with keys should be enabled")
	}
	if svc.VAPIDPublicKey() != "pub" {
		t.Errorf("VAPIDPublicKey = %q", svc.VAPIDPublicKey())
	}
}
