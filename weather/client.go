package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	ErrCityNotFound  = errors.New("city not found")
	ErrNotConfigured = errors.New("weather api key is not configured")
)

type Options struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

// Report is the current weather for a city.
type Report struct {
	City        string  `json:"city"`
	Condition   string  `json:"condition"`
	Temperature float64 `json:"temperature"`
}

// Client looks up current conditions on OpenWeatherMap. Answers are cached
// per city, compared caselessly, for CacheTTL. Casers are stateful, so one
// is built per call.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	cache   *expirable.LRU[string, Report]
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openweathermap.org"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	return &Client{
		apiKey:  opts.APIKey,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  &http.Client{Timeout: opts.Timeout},
		cache:   expirable.NewLRU[string, Report](opts.CacheSize, nil, opts.CacheTTL),
	}
}

type owmResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
}

// Current returns the weather in city, in metric units.
func (c *Client) Current(ctx context.Context, city string) (Report, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return Report{}, errors.New("city is required")
	}
	if c.apiKey == "" {
		return Report{}, ErrNotConfigured
	}
	key := cases.Fold().String(city)
	if report, ok := c.cache.Get(key); ok {
		return report, nil
	}

	query := url.Values{}
	query.Set("q", city)
	query.Set("appid", c.apiKey)
	query.Set("units", "metric")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/data/2.5/weather?"+query.Encode(), nil)
	if err != nil {
		return Report{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Report{}, errors.Wrap(err, "weather request")
	}
	defer resp.Body.Close()

	var body owmResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Report{}, errors.Wrapf(ErrCityNotFound, "%s", city)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		if decodeErr == nil && body.Message != "" {
			return Report{}, errors.Newf("weather api error: %s", body.Message)
		}
		return Report{}, errors.Newf("weather api returned status %d", resp.StatusCode)
	case decodeErr != nil:
		return Report{}, errors.Wrap(decodeErr, "decode weather response")
	case len(body.Weather) == 0:
		return Report{}, errors.New("weather api returned no conditions")
	}

	report := Report{
		City:        city,
		Condition:   cases.Title(language.English).String(body.Weather[0].Description),
		Temperature: body.Main.Temp,
	}
	c.cache.Add(key, report)
	return report, nil
}
