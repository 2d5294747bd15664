package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/closeshop/internal/geocode"
)

// Geocoder resolves addresses and coordinates.
type Geocoder interface {
	Search(ctx context.Context, query string) ([]geocode.Place, error)
	Reverse(ctx context.Context, lat, lon float64) (*geocode.Place, error)
}

type GeocodeHandler struct {
	geocoder Geocoder
	logger   *slog.Logger
}

func NewGeocodeHandler(g Geocoder, logger *slog.Logger) *GeocodeHandler {
	return &GeocodeHandler{geocoder: g, logger: logger}
}

// Search handles GET /api/geocode?q=
func (h *GeocodeHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing query")
		return
	}

	places, err := h.geocoder.Search(r.Context(), q)
	if err != nil {
		h.logger.Error("geocode search", "error", err)
		writeError(w, http.StatusBadGateway, "failed to fetch geocode")
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(places))
}

// Reverse handles GET /api/reverse-geocode?lat=&lon=
func (h *GeocodeHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		writeError(w, http.StatusBadRequest, "missing coordinates")
		return
	}

	place, err := h.geocoder.Reverse(r.Context(), lat, lon)
	if err != nil {
		if errors.Is(err, geocode.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no place found")
			return
		}
		h.logger.Error("reverse geocode", "error", err)
		writeError(w, http.StatusBadGateway, "failed to fetch reverse geocode")
		return
	}
	writeJSON(w, http.StatusOK, place)
}
