package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeocode(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "MG Road, Bengaluru", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "herhealth_app", r.Header.Get("User-Agent"))
		w.Write([]byte(`[{"lat":"12.9755","lon":"77.6068","display_name":"MG Road, Bengaluru, Karnataka, India"}]`))
	}))
	defer server.Close()

	geocoder := NewGeocoder(Options{BaseURL: server.URL})
	loc, err := geocoder.Geocode(context.Background(), "MG Road, Bengaluru")
	require.NoError(t, err)
	assert.Equal(t, 12.9755, loc.Latitude)
	assert.Equal(t, 77.6068, loc.Longitude)
	assert.Contains(t, loc.DisplayName, "Karnataka")

	_, err = geocoder.Geocode(context.Background(), "mg road,   BENGALURU")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGeocodeNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	_, err := NewGeocoder(Options{BaseURL: server.URL}).Geocode(context.Background(), "nowhere at all")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = NewGeocoder(Options{BaseURL: server.URL}).Geocode(context.Background(), " ")
	assert.Error(t, err)
}

func TestGeocodeUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewGeocoder(Options{BaseURL: server.URL}).Geocode(context.Background(), "Pune")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
