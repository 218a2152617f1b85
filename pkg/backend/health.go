package backend

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthCheck implements [API]. It calls GET /health with the health
// timeout and records the outcome; listeners registered with
// [Client.OnConnectivityChange] fire only when the outcome differs from the
// previous one.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	ok := c.ping(ctx)
	c.setConnected(ok)
	return ok
}

func (c *Client) ping(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Debug("backend: health check failed", "url", c.baseURL, "err", err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Connected returns the outcome of the most recent health check. It is false
// until the first successful check.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// OnConnectivityChange registers fn to be called whenever connectivity flips.
// Listeners are called synchronously from the goroutine running the check
// and must not block.
func (c *Client) OnConnectivityChange(fn func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Client) setConnected(ok bool) {
	c.mu.Lock()
	if c.connected == ok {
		c.mu.Unlock()
		return
	}
	c.connected = ok
	listeners := make([]func(bool), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	if ok {
		slog.Info("backend: connected", "url", c.baseURL)
	} else {
		slog.Warn("backend: connection lost", "url", c.baseURL)
	}
	for _, fn := range listeners {
		fn(ok)
	}
}

// Monitor checks the backend immediately and then every interval until ctx
// is done.
func (c *Client) Monitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	c.HealthCheck(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.HealthCheck(ctx)
		}
	}
}
