package geo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/text/cases"
)

var ErrNotFound = errors.New("address not found")

type Location struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	DisplayName string  `json:"display_name"`
}

type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

// Geocoder resolves free-form addresses with a Nominatim server. The public
// server requires an identifying User-Agent and allows about one request a
// second, so answers are cached.
type Geocoder struct {
	baseURL   string
	userAgent string
	client    *http.Client
	cache     *expirable.LRU[string, Location]
}

func NewGeocoder(opts Options) *Geocoder {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "herhealth_app"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	return &Geocoder{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		client:    &http.Client{Timeout: opts.Timeout},
		cache:     expirable.NewLRU[string, Location](opts.CacheSize, nil, opts.CacheTTL),
	}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode returns the best match for address.
func (g *Geocoder) Geocode(ctx context.Context, address string) (Location, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Location{}, errors.New("address is required")
	}
	key := cases.Fold().String(strings.Join(strings.Fields(address), " "))
	if loc, ok := g.cache.Get(key); ok {
		return loc, nil
	}

	query := url.Values{}
	query.Set("q", address)
	query.Set("format", "json")
	query.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/search?"+query.Encode(), nil)
	if err != nil {
		return Location{}, err
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Location{}, errors.Wrap(err, "geocode request")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Location{}, errors.Newf("geocoder returned status %d", resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return Location{}, errors.Wrap(err, "decode geocoder response")
	}
	if len(places) == 0 {
		return Location{}, errors.Wrapf(ErrNotFound, "%s", address)
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return Location{}, errors.Wrap(err, "parse latitude")
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return Location{}, errors.Wrap(err, "parse longitude")
	}
	loc := Location{Latitude: lat, Longitude: lon, DisplayName: places[0].DisplayName}
	g.cache.Add(key, loc)
	return loc, nil
}
