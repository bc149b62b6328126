// Package svcclient calls the internal endpoints of peer services.
package svcclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"labreserve/internal/metrics"
)

var (
	// ErrNotFound is returned when the peer answers 404.
	ErrNotFound = errors.New("not found by peer service")
	// ErrUnavailable covers transport failures and unexpected statuses.
	ErrUnavailable = errors.New("peer service unavailable")
)

// Options configures a client.
type Options struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// client is the shared plumbing of the typed clients.
type client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newClient(name string, opts Options) client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return client{
		name:       name,
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// envelope mirrors the JSON body written by the API response helpers.
type envelope struct {
	Code    int             `json:"code"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *client) doGet(ctx context.Context, endpoint string, out any) (err error) {
	defer func() {
		metrics.IncPeerRequest(c.name, err == nil || errors.Is(err, ErrNotFound))
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Only an API envelope means the record is missing; anything else is
		// an unknown route, usually a misconfigured base URL.
		var env envelope
		if json.NewDecoder(resp.Body).Decode(&env) == nil && env.Code == http.StatusNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %s: no such endpoint %s", ErrUnavailable, c.name, req.URL.Path)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s: http %d", ErrUnavailable, c.name, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", ErrUnavailable, c.name, err)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %s: decode data: %v", ErrUnavailable, c.name, err)
	}
	return nil
}
