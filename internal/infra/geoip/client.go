package geoip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sifan077/LinkTrace/config"
	"github.com/sifan077/LinkTrace/internal/app/model"
)

// ErrUnavailable signals that a provider failed, timed out, or returned a
// malformed response. Callers must treat it as "no location", never as fatal.
var ErrUnavailable = errors.New("geolocation provider unavailable")

const defaultTimeout = 3 * time.Second

// Client resolves addresses and coordinates against two external providers:
// an ipstack-style IP API and a nominatim-style reverse geocoder. Every call
// is bounded by a short deadline.
type Client struct {
	httpClient       *http.Client
	ipLookupURL      string
	reverseLookupURL string
	accessKey        string
}

// NewClient builds a geolocation client from app config.
func NewClient(cfg config.GeoConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient:       &http.Client{Timeout: timeout},
		ipLookupURL:      cfg.IPLookupURL,
		reverseLookupURL: cfg.ReverseLookupURL,
		accessKey:        cfg.AccessKey,
	}
}

type ipLookupResponse struct {
	City       string          `json:"city"`
	RegionName string          `json:"region_name"`
	Country    string          `json:"country_name"`
	Error      json.RawMessage `json:"error"`
}

// Lookup resolves a network address into a location.
func (c *Client) Lookup(ctx context.Context, address string) (model.Location, error) {
	endpoint := fmt.Sprintf("%s/%s?access_key=%s",
		c.ipLookupURL, url.PathEscape(address), url.QueryEscape(c.accessKey))

	var payload ipLookupResponse
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return model.Location{}, err
	}
	if len(payload.Error) > 0 {
		return model.Location{}, fmt.Errorf("%w: provider error", ErrUnavailable)
	}

	return model.Location{
		City:    payload.City,
		Region:  payload.RegionName,
		Country: payload.Country,
	}, nil
}

type reverseLookupResponse struct {
	Address struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"address"`
}

// ReverseLookup resolves a coordinate pair into a location.
func (c *Client) ReverseLookup(ctx context.Context, lat, lon float64) (model.Location, error) {
	query := url.Values{}
	query.Set("format", "json")
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	endpoint := c.reverseLookupURL + "?" + query.Encode()

	var payload reverseLookupResponse
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return model.Location{}, err
	}

	city := payload.Address.City
	if city == "" {
		city = payload.Address.Town
	}
	if city == "" {
		city = payload.Address.Village
	}

	return model.Location{
		City:    city,
		Region:  payload.Address.State,
		Country: payload.Address.Country,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", "linktrace")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
