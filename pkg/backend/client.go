// Package backend is a typed HTTP client for the patient simulation service:
// the server that transcribes the trainee's speech, classifies its emotional
// tone, advances the patient's stress level and synthesizes the reply.
//
// One method exists per exchange and every method is independently fallible:
//
//	GET  /health               → [Client.HealthCheck]
//	GET  /api/session/start    → [Client.StartSession]
//	POST /api/process-audio    → [Client.ProcessAudio]
//	POST /api/synthesize-text  → [Client.SynthesizeText]
//	GET  <audio_url>           → [Client.DownloadAudio]
//
// Failures are classified as [ErrNetwork], [ErrDeserialization] or
// *[BackendError]; match them with errors.Is / errors.As. The client never
// retries or coalesces requests: the turn controller sequences them.
//
// Usage:
//
//	c, err := backend.New("http://localhost:8000", backend.WithTimeout(45*time.Second))
//	res, err := c.ProcessAudio(ctx, wav, backend.TurnRequest{StressLevel: 7, TurnCount: 0})
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultBaseURL is where the simulation service listens in development.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout bounds every request except the health check.
	DefaultTimeout = 30 * time.Second

	// DefaultHealthTimeout bounds a single health check.
	DefaultHealthTimeout = 5 * time.Second

	// maxErrorBody caps how much of an error response is read for Detail.
	maxErrorBody = 4 << 10
)

// Compile-time assertion that Client implements API.
var _ API = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout for all exchanges other than the
// health check. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHealthTimeout sets the health check timeout. Defaults to 5s.
func WithHealthTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.healthTimeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. Its Timeout field is
// overwritten by the configured request timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// Client implements [API] over HTTP. It is safe for concurrent use.
type Client struct {
	baseURL       string
	timeout       time.Duration
	healthTimeout time.Duration
	httpClient    *http.Client

	mu        sync.Mutex
	connected bool
	listeners []func(connected bool)
}

// New creates a Client for the service at baseURL (e.g.,
// "http://localhost:8000"). baseURL must be non-empty.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("backend: baseURL must not be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("backend: parse baseURL: %w", err)
	}
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		timeout:       DefaultTimeout,
		healthTimeout: DefaultHealthTimeout,
		httpClient:    &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	hc := *c.httpClient
	hc.Timeout = c.timeout
	c.httpClient = &hc
	return c, nil
}

// BaseURL returns the normalised base URL (no trailing slash).
func (c *Client) BaseURL() string { return c.baseURL }

// ResolveURL turns a possibly relative audio URL from a response into an
// absolute one. URLs that already start with "http" are returned as is.
func (c *Client) ResolveURL(u string) string {
	if strings.HasPrefix(u, "http") {
		return u
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return c.baseURL + u
}

// ─── Exchanges ────────────────────────────────────────────────────────────────

// StartSession implements [API].
func (c *Client) StartSession(ctx context.Context) (*SessionStart, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/session/start", nil)
	if err != nil {
		return nil, fmt.Errorf("backend: start session: create request: %w", err)
	}
	var out SessionStart
	if err := c.doJSON(req, "start session", &out); err != nil {
		return nil, err
	}
	if out.SessionID == "" {
		return nil, fmt.Errorf("backend: start session: %w: empty session_id", ErrDeserialization)
	}
	return &out, nil
}

// ProcessAudio implements [API]. The WAV bytes are sent as the multipart
// field "audio" (filename recording.wav, type audio/wav); the session context
// travels in the query string.
func (c *Client) ProcessAudio(ctx context.Context, wav []byte, tr TurnRequest) (*TurnResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="audio"; filename="recording.wav"`)
	h.Set("Content-Type", "audio/wav")
	fw, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("backend: process audio: create form part: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("backend: process audio: write wav data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("backend: process audio: close multipart writer: %w", err)
	}

	q := url.Values{}
	q.Set("stress_level", strconv.Itoa(tr.StressLevel))
	q.Set("turn_count", strconv.Itoa(tr.TurnCount))
	if tr.SessionID != "" {
		q.Set("session_id", tr.SessionID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/process-audio?"+q.Encode(), &body)
	if err != nil {
		return nil, fmt.Errorf("backend: process audio: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out TurnResult
	if err := c.doJSON(req, "process audio", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SynthesizeText implements [API].
func (c *Client) SynthesizeText(ctx context.Context, text string, stressLevel int) (*Synthesis, error) {
	payload, err := json.Marshal(struct {
		Text        string `json:"text"`
		StressLevel int    `json:"stress_level"`
	}{Text: text, StressLevel: stressLevel})
	if err != nil {
		return nil, fmt.Errorf("backend: synthesize text: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/synthesize-text", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("backend: synthesize text: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out Synthesis
	if err := c.doJSON(req, "synthesize text", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadAudio implements [API].
func (c *Client) DownloadAudio(ctx context.Context, audioURL string) (*AudioAsset, error) {
	if audioURL == "" {
		return nil, errors.New("backend: download audio: empty url")
	}
	abs := c.ResolveURL(audioURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, abs, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: download audio: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: download audio: %w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "download audio"); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend: download audio: read body: %w: %w", ErrNetwork, err)
	}
	return &AudioAsset{URL: abs, ContentType: resp.Header.Get("Content-Type"), Data: data}, nil
}

// ─── helpers ──────────────────────────────────────────────────────────────────

// doJSON executes req and decodes a JSON body into out.
func (c *Client) doJSON(req *http.Request, op string, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s: %w: %w", op, ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, op); err != nil {
		return err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backend: %s: read body: %w: %w", op, ErrNetwork, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("backend: %s: %w: %w", op, ErrDeserialization, err)
	}
	return nil
}

// checkStatus converts a non-2xx response into a *BackendError.
func checkStatus(resp *http.Response, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &BackendError{Op: op, StatusCode: resp.StatusCode, Detail: errorDetail(body)}
}

// errorDetail extracts a message from a FastAPI-style {"detail": ...} body,
// falling back to the trimmed raw body.
func errorDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		return string(payload.Detail)
	}
	return strings.TrimSpace(string(body))
}
