package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/closeshop/internal/auth"
	"github.com/dukerupert/closeshop/internal/store"
)

type CartHandler struct {
	cartStore    *store.CartStore
	productStore *store.ProductStore
	logger       *slog.Logger
}

func NewCartHandler(cs *store.CartStore, ps *store.ProductStore, logger *slog.Logger) *CartHandler {
	return &CartHandler{cartStore: cs, productStore: ps, logger: logger}
}

type cartResponse struct {
	Items      any   `json:"items"`
	Count      int   `json:"count"`
	TotalCents int64 `json:"total_cents"`
}

// List handles GET /rest/v1/cart_items
func (h *CartHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.cartStore.List(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list cart", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list cart")
		return
	}

	resp := cartResponse{Items: emptyIfNil(items)}
	for _, it := range items {
		resp.Count += it.Quantity
		resp.TotalCents += int64(it.Quantity) * it.PriceCents
	}
	writeJSON(w, http.StatusOK, resp)
}

type addCartItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Add handles POST /rest/v1/cart_items. Adding a product already in the
// cart increases its quantity.
func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 0 {
		writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	product, err := h.productStore.GetByID(req.ProductID)
	if err != nil {
		h.logger.Error("lookup product", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add to cart")
		return
	}
	if product == nil {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}

	item, err := h.cartStore.Add(auth.UserID(r.Context()), product.ID, req.Quantity)
	if err != nil {
		h.logger.Error("add cart item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add to cart")
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// Update handles PATCH /rest/v1/cart_items/{id}. A quantity of zero removes the line.
func (h *CartHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req updateCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	userID := auth.UserID(r.Context())
	existing, err := h.cartStore.Get(id, userID)
	if err != nil {
		h.logger.Error("get cart item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update cart")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "cart item not found")
		return
	}

	item, err := h.cartStore.SetQuantity(id, userID, req.Quantity)
	if err != nil {
		h.logger.Error("update cart item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update cart")
		return
	}
	if item == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Remove handles DELETE /rest/v1/cart_items/{id}
func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.cartStore.Remove(id, auth.UserID(r.Context())); err != nil {
		h.logger.Error("remove cart item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /rest/v1/cart_items
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.cartStore.Clear(auth.UserID(r.Context())); err != nil {
		h.logger.Error("clear cart", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear cart")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
