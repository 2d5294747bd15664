package store

import "testing"

func seedProduct(t *testing.T, shops *ShopStore, products *ProductStore, ownerID string) int64 {
	t.Helper()
	sh, err := shops.Create(ownerID, "Corner Shop", "", "Main St", nil, nil)
	if err != nil {
		t.Fatalf("create shop: %v", err)
	}
	p, err := products.Create(sh.ID, "Mango", "ripe", 250, "")
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p.ID
}

func TestShopAndProduct(t *testing.T) {
	db := setupTestDB(t)
	shops := NewShopStore(db)
	products := NewProductStore(db)
	owner := createTestUser(t, db, "owner@example.com")

	lat, lon := 8.95, 125.53
	sh, err := shops.Create(owner.ID, "Fruit Stand", "fresh", "Market Rd", &lat, &lon)
	if err != nil {
		t.Fatalf("create shop: %v", err)
	}
	if sh.Latitude == nil || *sh.Latitude != lat {
		t.Errorf("latitude = %v, want %v", sh.Latitude, lat)
	}

	if _, err := products.Create(sh.ID, "Banana", "", 100, ""); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := products.Create(sh.ID, "Free sample", "", -1, ""); err == nil {
		t.Error("expected negative price to be rejected")
	}

	list, _ := products.List(sh.ID)
	if len(list) != 1 {
		t.Errorf("products = %d, want 1", len(list))
	}
	owned, _ := shops.List(owner.ID)
	if len(owned) != 1 {
		t.Errorf("owned shops = %d, want 1", len(owned))
	}
	other, _ := shops.List("someone-else")
	if len(other) != 0 {
		t.Errorf("foreign shops = %d, want 0", len(other))
	}
}

func TestCartAddMergesQuantity(t *testing.T) {
	db := setupTestDB(t)
	cs := NewCartStore(db)
	u := createTestUser(t, db, "alice@example.com")
	productID := seedProduct(t, NewShopStore(db), NewProductStore(db), u.ID)

	if _, err := cs.Add(u.ID, productID, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	it, err := cs.Add(u.ID, productID, 2)
	if err != nil {
		t.Fatalf("add again: %v", err)
	}
	if it.Quantity != 3 {
		t.Errorf("quantity = %d, want 3", it.Quantity)
	}
	if it.Title != "Mango" || it.PriceCents != 250 {
		t.Errorf("joined product fields = %+v", it)
	}

	items, _ := cs.List(u.ID)
	if len(items) != 1 {
		t.Errorf("lines = %d, want 1", len(items))
	}

	if _, err := cs.Add(u.ID, productID, 0); err == nil {
		t.Error("expected zero quantity to be rejected")
	}
}

func TestCartSetQuantityAndRemove(t *testing.T) {
	db := setupTestDB(t)
	cs := NewCartStore(db)
	u := createTestUser(t, db, "alice@example.com")
	productID := seedProduct(t, NewShopStore(db), NewProductStore(db), u.ID)
	it, _ := cs.Add(u.ID, productID, 1)

	updated, err := cs.SetQuantity(it.ID, u.ID, 5)
	if err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if updated.Quantity != 5 {
		t.Errorf("quantity = %d, want 5", updated.Quantity)
	}

	removed, err := cs.SetQuantity(it.ID, u.ID, 0)
	if err != nil {
		t.Fatalf("set zero: %v", err)
	}
	if removed != nil {
		t.Error("expected nil item after zero quantity")
	}
	items, _ := cs.List(u.ID)
	if len(items) != 0 {
		t.Errorf("lines = %d, want 0", len(items))
	}

	cs.Add(u.ID, productID, 1)
	if err := cs.Clear(u.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	items, _ = cs.List(u.ID)
	if len(items) != 0 {
		t.Errorf("lines after clear = %d, want 0", len(items))
	}
}
