package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultURL = "https://lehydrosys-sqfy.onrender.com"

	latestPath   = "/api/data/latest"
	relayPath    = "/api/relay"
	registerPath = "/api/register_token"

	maxBodySize = 1 << 20
)

// StatusError is returned when the server responds with a non-2xx status
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: server returned %d %s", e.Op, e.Code, http.StatusText(e.Code))
}

type Config struct {
	URL                string
	Timeout            time.Duration
	InsecureSkipVerify bool
	HTTPClient         *http.Client
	Logger             *slog.Logger
}

// Client talks to the LeHydroSys cloud server
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *slog.Logger
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	u, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL scheme: %q", u.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		httpClient = &http.Client{Timeout: cfg.Timeout, Transport: transport}
	}
	return &Client{baseURL: u, http: httpClient, logger: cfg.Logger}, nil
}

// URL returns the absolute URL for path on the configured server
func (c *Client) URL(path string) string {
	return c.baseURL.String() + path
}

// Latest fetches the raw latest sensor payload
func (c *Client) Latest(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(latestPath), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	return c.do(req, "fetch latest data")
}

type relayRequest struct {
	Command string `json:"command"`
}

// Relay posts a relay command token
func (c *Client) Relay(ctx context.Context, command string) error {
	body, err := json.Marshal(relayRequest{Command: command})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(relayPath), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req, "send relay command")
	return err
}

// RegisterToken registers a push notification token with the server
func (c *Client) RegisterToken(ctx context.Context, token string) error {
	form := url.Values{}
	form.Set("fcmToken", token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(registerPath), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, err = c.do(req, "register token")
	return err
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	c.logger.LogAttrs(
		req.Context(),
		slog.LevelDebug,
		"Server response",
		slog.String("request_id", requestID),
		slog.String("method", req.Method),
		slog.String("url", req.URL.String()),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: op, Code: resp.StatusCode}
	}
	return body, nil
}
