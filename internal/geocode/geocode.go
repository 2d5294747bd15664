package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const (
	DefaultBaseURL   = "https://nominatim.openstreetmap.org"
	DefaultUserAgent = "closeshop/1.0"
	defaultCacheTTL  = 24 * time.Hour
	searchLimit      = 5
)

// ErrNotFound is returned when a reverse lookup has no result.
var ErrNotFound = errors.New("no place found")

// Config holds geocoder settings.
type Config struct {
	BaseURL   string
	UserAgent string
	CacheTTL  time.Duration
}

// Place is a geocoding result.
type Place struct {
	DisplayName string            `json:"display_name"`
	Lat         float64           `json:"lat"`
	Lon         float64           `json:"lon"`
	Address     map[string]string `json:"address,omitempty"`
}

type cacheEntry struct {
	places    []Place
	fetchedAt time.Time
}

// Service proxies forward and reverse lookups to a Nominatim instance and
// caches the results.
type Service struct {
	config Config
	client *http.Client

	mu    sync.RWMutex
	cache map[string]cacheEntry
	now   func() time.Time
}

// NewService creates a geocoder with the given configuration.
func NewService(cfg Config) *Service {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	return &Service{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		cache:  make(map[string]cacheEntry),
		now:    time.Now,
	}
}

// Search returns places matching a free-form query.
func (s *Service) Search(ctx context.Context, query string) ([]Place, error) {
	params := url.Values{
		"q":              {query},
		"format":         {"json"},
		"addressdetails": {"1"},
		"limit":          {strconv.Itoa(searchLimit)},
	}
	return s.lookup(ctx, "/search", params, func(dec *json.Decoder) ([]Place, error) {
		var raw []apiPlace
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		places := make([]Place, 0, len(raw))
		for _, r := range raw {
			p, err := r.place()
			if err != nil {
				return nil, err
			}
			places = append(places, p)
		}
		return places, nil
	})
}

// Reverse returns the place at the given coordinates.
func (s *Service) Reverse(ctx context.Context, lat, lon float64) (*Place, error) {
	params := url.Values{
		"lat":            {strconv.FormatFloat(lat, 'f', 6, 64)},
		"lon":            {strconv.FormatFloat(lon, 'f', 6, 64)},
		"format":         {"json"},
		"addressdetails": {"1"},
	}
	places, err := s.lookup(ctx, "/reverse", params, func(dec *json.Decoder) ([]Place, error) {
		var raw apiPlace
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		if raw.Error != "" {
			return nil, nil
		}
		p, err := raw.place()
		if err != nil {
			return nil, err
		}
		return []Place{p}, nil
	})
	if err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, ErrNotFound
	}
	return &places[0], nil
}

// lookup serves from cache while fresh. On upstream failure a stale entry is
// returned rather than the error.
func (s *Service) lookup(ctx context.Context, path string, params url.Values, decode func(*json.Decoder) ([]Place, error)) ([]Place, error) {
	key := path + "?" + params.Encode()

	s.mu.RLock()
	entry, ok := s.cache[key]
	s.mu.RUnlock()
	if ok && s.now().Sub(entry.fetchedAt) < s.config.CacheTTL {
		return entry.places, nil
	}

	places, err := s.fetch(ctx, key, decode)
	if err != nil {
		if ok {
			return entry.places, nil
		}
		return nil, err
	}

	s.mu.Lock()
	s.cache[key] = cacheEntry{places: places, fetchedAt: s.now()}
	s.mu.Unlock()
	return places, nil
}

func (s *Service) fetch(ctx context.Context, pathAndQuery string, decode func(*json.Decoder) ([]Place, error)) ([]Place, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.BaseURL+pathAndQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("create geocode request: %w", err)
	}
	// Nominatim's usage policy requires an identifying User-Agent.
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode API returned status %d", resp.StatusCode)
	}

	places, err := decode(json.NewDecoder(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}
	return places, nil
}

// Cleanup drops cache entries older than the TTL and reports how many were removed.
func (s *Service) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for key, e := range s.cache {
		if now.Sub(e.fetchedAt) >= s.config.CacheTTL {
			delete(s.cache, key)
			n++
		}
	}
	return n
}

// apiPlace mirrors the Nominatim JSON shape, which encodes coordinates as strings.
type apiPlace struct {
	DisplayName string            `json:"display_name"`
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	Address     map[string]string `json:"address"`
	Error       string            `json:"error"`
}

func (a apiPlace) place() (Place, error) {
	lat, err := strconv.ParseFloat(a.Lat, 64)
	if err != nil {
		return Place{}, fmt.Errorf("parse lat %q: %w", a.Lat, err)
	}
	lon, err := strconv.ParseFloat(a.Lon, 64)
	if err != nil {
		return Place{}, fmt.Errorf("parse lon %q: %w", a.Lon, err)
	}
	return Place{DisplayName: a.DisplayName, Lat: lat, Lon: lon, Address: a.Address}, nil
}
