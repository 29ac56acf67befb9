package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sifan077/LinkTrace/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(ipURL, reverseURL string, timeout time.Duration) *Client {
	return NewClient(config.GeoConfig{
		IPLookupURL:      ipURL,
		ReverseLookupURL: reverseURL,
		AccessKey:        "test-key",
		Timeout:          timeout,
	})
}

func TestLookup_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/203.0.113.9", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("access_key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"city":"Berlin","region_name":"Berlin","country_name":"Germany"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, "", time.Second)
	loc, err := client.Lookup(context.Background(), "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, "Berlin", loc.City)
	assert.Equal(t, "Berlin", loc.Region)
	assert.Equal(t, "Germany", loc.Country)
}

func TestLookup_ProviderErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":{"code":101,"type":"invalid_access_key"}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, "", time.Second)
	_, err := client.Lookup(context.Background(), "203.0.113.9")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestLookup_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, "", time.Second)
	_, err := client.Lookup(context.Background(), "203.0.113.9")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestLookup_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, "", time.Second)
	_, err := client.Lookup(context.Background(), "203.0.113.9")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestLookup_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, "", 20*time.Millisecond)
	_, err := client.Lookup(context.Background(), "203.0.113.9")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestReverseLookup_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "52.52", r.URL.Query().Get("lat"))
		assert.Equal(t, "13.405", r.URL.Query().Get("lon"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"address":{"city":"Berlin","state":"Berlin","country":"Germany"}}`))
	}))
	defer srv.Close()

	client := newTestClient("", srv.URL, time.Second)
	loc, err := client.ReverseLookup(context.Background(), 52.52, 13.405)
	require.NoError(t, err)
	assert.Equal(t, "Berlin", loc.City)
	assert.Equal(t, "Germany", loc.Country)
}

func TestReverseLookup_TownFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"address":{"town":"Nauen","state":"Brandenburg","country":"Germany"}}`))
	}))
	defer srv.Close()

	client := newTestClient("", srv.URL, time.Second)
	loc, err := client.ReverseLookup(context.Background(), 52.6, 12.88)
	require.NoError(t, err)
	assert.Equal(t, "Nauen", loc.City)
	assert.Equal(t, "Brandenburg", loc.Region)
}

func TestReverseLookup_VillageFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"address":{"village":"Kleinmachnow","country":"Germany"}}`))
	}))
	defer srv.Close()

	client := newTestClient("", srv.URL, time.Second)
	loc, err := client.ReverseLookup(context.Background(), 52.4, 13.2)
	require.NoError(t, err)
	assert.Equal(t, "Kleinmachnow", loc.City)
}

func TestLookup_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(srv.URL, "", time.Second)
	_, err := client.Lookup(ctx, "203.0.113.9")
	require.ErrorIs(t, err, ErrUnavailable)
}
