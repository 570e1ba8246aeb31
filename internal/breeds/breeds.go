// Package breeds looks up the set of currently recognized cat breeds.
package breeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultURL     = "https://api.thecatapi.com/v1/breeds"
	DefaultTimeout = 10 * time.Second
)

// ErrUnavailable wraps every failure to obtain the breed list.
var ErrUnavailable = errors.New("breed lookup unavailable")

// Source returns the names of all recognized breeds.
type Source interface {
	Breeds(ctx context.Context) ([]string, error)
}

// Client fetches breeds from a TheCatAPI-compatible endpoint. It does not cache or retry.
type Client struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(url string) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{URL: url, Timeout: DefaultTimeout}
}

type breedRecord struct {
	Name string `json:"name"`
}

func (c *Client) Breeds(ctx context.Context) ([]string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, res.StatusCode)
	}
	var records []breedRecord
	if err := json.NewDecoder(res.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	names := make([]string, 0, len(records))
	for _, r := range records {
		if r.Name != "" {
			names = append(names, r.Name)
		}
	}
	return names, nil
}

// Static is a fixed breed list, used offline and in tests.
type Static []string

func (s Static) Breeds(context.Context) ([]string, error) {
	out := make([]string, len(s))
	copy(out, s)
	return out, nil
}

// Match reports whether breed case-insensitively equals one of names.
// Surrounding whitespace is not ignored.
func Match(names []string, breed string) bool {
	if breed == "" {
		return false
	}
	for _, n := range names {
		if strings.EqualFold(n, breed) {
			return true
		}
	}
	return false
}
