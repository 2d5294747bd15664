package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/closeshop/internal/auth"
	"github.com/dukerupert/closeshop/internal/store"
)

type ShopHandler struct {
	shopStore    *store.ShopStore
	productStore *store.ProductStore
	logger       *slog.Logger
}

func NewShopHandler(ss *store.ShopStore, ps *store.ProductStore, logger *slog.Logger) *ShopHandler {
	return &ShopHandler{shopStore: ss, productStore: ps, logger: logger}
}

// ListShops handles GET /rest/v1/shops?owner_id=
func (h *ShopHandler) ListShops(w http.ResponseWriter, r *http.Request) {
	shops, err := h.shopStore.List(r.URL.Query().Get("owner_id"))
	if err != nil {
		h.logger.Error("list shops", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list shops")
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(shops))
}

type createShopRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Address     string   `json:"address"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

// CreateShop handles POST /rest/v1/shops
func (h *ShopHandler) CreateShop(w http.ResponseWriter, r *http.Request) {
	var req createShopRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		writeError(w, http.StatusBadRequest, "latitude and longitude must be set together")
		return
	}
	if req.Latitude != nil && (*req.Latitude < -90 || *req.Latitude > 90 || *req.Longitude < -180 || *req.Longitude > 180) {
		writeError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}

	shop, err := h.shopStore.Create(auth.UserID(r.Context()), req.Name, req.Description, req.Address, req.Latitude, req.Longitude)
	if err != nil {
		h.logger.Error("create shop", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create shop")
		return
	}
	writeJSON(w, http.StatusCreated, shop)
}

// ListProducts handles GET /rest/v1/products?shop_id=
func (h *ShopHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	var shopID int64
	if s := r.URL.Query().Get("shop_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid shop_id")
			return
		}
		shopID = id
	}

	products, err := h.productStore.List(shopID)
	if err != nil {
		h.logger.Error("list products", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(products))
}

type createProductRequest struct {
	ShopID      int64  `json:"shop_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	ImageURL    string `json:"image_url"`
}

// CreateProduct handles POST /rest/v1/products. Only the shop owner or an
// admin may add products.
func (h *ShopHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.PriceCents < 0 {
		writeError(w, http.StatusBadRequest, "price_cents must not be negative")
		return
	}

	shop, err := h.shopStore.GetByID(req.ShopID)
	if err != nil {
		h.logger.Error("lookup shop", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create product")
		return
	}
	if shop == nil {
		writeError(w, http.StatusNotFound, "shop not found")
		return
	}
	if shop.OwnerID != auth.UserID(r.Context()) && !auth.IsAdmin(r.Context()) {
		writeError(w, http.StatusForbidden, "not the shop owner")
		return
	}

	product, err := h.productStore.Create(shop.ID, req.Title, req.Description, req.PriceCents, req.ImageURL)
	if err != nil {
		h.logger.Error("create product", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create product")
		return
	}
	writeJSON(w, http.StatusCreated, product)
}
