// Package geocode resolves free-text location queries (ZIP codes, city
// names, "lat,lon" pairs) against a Nominatim-style API. Upstream usage
// policy requires a descriptive User-Agent and at most one request per
// second; the client enforces the rate gate itself so ordering of callers
// never matters.
package geocode

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"sync"
	"time"

	"lawncast/internal/fetch"
)

var zipPattern = regexp.MustCompile(`^\d{5}$`)

// Result is a single geocoding match, filtered to US locations with a
// 5-digit postal code.
type Result struct {
	DisplayName string  `json:"displayName"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Zip         string  `json:"zip"`
}

type nominatimResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Address     struct {
		Postcode    string `json:"postcode"`
		CountryCode string `json:"country_code"`
	} `json:"address"`
}

// Client is a rate-gated geocoding client.
type Client struct {
	fetcher     *fetch.Client
	baseURL     string
	minInterval time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	nextSlot time.Time
}

// New creates a geocoding client. minInterval is the minimum spacing
// between upstream requests; zero disables the gate.
func New(fetcher *fetch.Client, baseURL string, minInterval time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		fetcher:     fetcher,
		baseURL:     baseURL,
		minInterval: minInterval,
		logger:      logger,
	}
}

// Search resolves query to at most limit US results carrying a 5-digit ZIP.
// Blocks until the rate gate admits the request or ctx is done.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 5
	}
	if err := c.waitTurn(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("addressdetails", "1")
	q.Set("countrycodes", "us")
	q.Set("limit", strconv.Itoa(limit))
	searchURL := fmt.Sprintf("%s/search?%s", c.baseURL, q.Encode())

	var raw []nominatimResult
	if err := c.fetcher.GetJSON(ctx, searchURL, nil, &raw); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(raw))
	for _, r := range raw {
		if r.Address.CountryCode != "us" || !zipPattern.MatchString(r.Address.Postcode) {
			continue
		}
		lat, latErr := strconv.ParseFloat(r.Lat, 64)
		lon, lonErr := strconv.ParseFloat(r.Lon, 64)
		if latErr != nil || lonErr != nil {
			c.logger.WarnContext(ctx, "skipping geocode result with bad coordinates",
				"lat", r.Lat, "lon", r.Lon)
			continue
		}
		results = append(results, Result{
			DisplayName: r.DisplayName,
			Lat:         lat,
			Lon:         lon,
			Zip:         r.Address.Postcode,
		})
	}
	return results, nil
}

// waitTurn reserves the next request slot and sleeps until it arrives.
func (c *Client) waitTurn(ctx context.Context) error {
	if c.minInterval <= 0 {
		return nil
	}

	c.mu.Lock()
	now := time.Now()
	wait := time.Duration(0)
	prev := c.nextSlot
	if c.nextSlot.After(now) {
		wait = c.nextSlot.Sub(now)
		c.nextSlot = c.nextSlot.Add(c.minInterval)
	} else {
		c.nextSlot = now.Add(c.minInterval)
	}
	reserved := c.nextSlot
	c.mu.Unlock()

	if wait == 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		// The slot was never used; hand it back so the next caller is not
		// held behind a request that never fired. If someone reserved
		// after us the gate has moved on and the slot is lost.
		c.mu.Lock()
		if c.nextSlot.Equal(reserved) {
			c.nextSlot = prev
		}
		c.mu.Unlock()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
