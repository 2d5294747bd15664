package store

import "testing"

func TestPushSubscriptionUpsert(t *testing.T) {
	db := setupTestDB(t)
	ps := NewPushStore(db)
	u := createTestUser(t, db, "alice@example.com")

	sub, err := ps.CreateSubscription(u.ID, "https://push.example/1", "p256", "auth", "laptop")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sub.Endpoint != "https://push.example/1" || sub.DeviceName != "laptop" {
		t.Errorf("sub = %+v", sub)
	}

	again, err := ps.CreateSubscription(u.ID, "https://push.example/1", "p256-new", "auth-new", "phone")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if again.ID != sub.ID {
		t.Errorf("id = %d, want %d (same endpoint)", again.ID, sub.ID)
	}
	if again.P256dhKey != "p256-new" || again.DeviceName != "phone" {
		t.Errorf("upsert did not update keys: %+v", again)
	}

	subs, _ := ps.ListByUser(u.ID)
	if len(subs) != 1 {
		t.Errorf("subscriptions = %d, want 1", len(subs))
	}
}

func TestPushSubscriptionDelete(t *testing.T) {
	db := setupTestDB(t)
	ps := NewPushStore(db)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")

	sub, _ := ps.CreateSubscription(alice.ID, "https://push.example/a", "k", "a", "")
	ps.CreateSubscription(alice.ID, "https://push.example/b", "k", "a", "")

	// bob cannot remove alice's subscription
	ps.DeleteSubscription(sub.ID, bob.ID)
	subs, _ := ps.ListByUser(alice.ID)
	if len(subs) != 2 {
		t.Fatalf("subscriptions = %d, want 2", len(subs))
	}

	ps.DeleteSubscription(sub.ID, alice.ID)
	ps.DeleteByEndpoint("https://push.example/b")
	subs, _ = ps.ListByUser(alice.ID)
	if len(subs) != 0 {
		t.Errorf("subscriptions = %d, want 0", len(subs))
	}
}
