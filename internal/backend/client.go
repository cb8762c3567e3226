// Package backend is the REST client for the CRM API: inbox snapshot,
// contact lookup, message pages and outbound sends.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/matheus3301/omnisync/internal/wire"
)

var (
	// ErrUnauthorized is returned for a missing or expired token and for 401 responses.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned when a lookup yields no record.
	ErrNotFound = errors.New("not found")
	// ErrUnsupportedPlatform is returned for sends on channels without a send route.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrConnectionNotFound is returned when no outbound WhatsApp connection can be selected.
	ErrConnectionNotFound = errors.New("whatsapp connection not found")
)

// APIError is a non-2xx response. Message is the backend's own reason.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend: %d %s", e.Status, e.Message)
}

// Unwrap maps 401 onto ErrUnauthorized and 404 onto ErrNotFound.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// Config holds the connection settings of the client.
type Config struct {
	BaseURL     string
	AccessToken string
	// CompanyID and UserID skip the /users/me lookup when set.
	CompanyID string
	UserID    string
	Timeout   time.Duration
	PageSize  int
}

// Client talks to the CRM REST API with a bearer token.
type Client struct {
	cfg    Config
	base   *url.URL
	http   *http.Client
	parser wire.Parser
	logger *zap.Logger

	mu   sync.Mutex
	user *User
}

// New creates a client. The base URL must be absolute.
func New(cfg Config, parser wire.Parser, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		base:   base,
		http:   &http.Client{Timeout: cfg.Timeout},
		parser: parser,
		logger: logger,
	}, nil
}

// TokenExpired reports whether token is a JWT whose exp claim has passed.
// Opaque (non-JWT) tokens are never considered expired here; the server
// decides.
func TokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	return !claims.VerifyExpiresAt(now.Unix(), false)
}

func (c *Client) checkToken() error {
	if c.cfg.AccessToken == "" {
		return fmt.Errorf("%w: no access token configured", ErrUnauthorized)
	}
	if TokenExpired(c.cfg.AccessToken, time.Now()) {
		return fmt.Errorf("%w: access token expired", ErrUnauthorized)
	}
	return nil
}

// get decodes the JSON body of GET path?query into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := c.checkToken(); err != nil {
		return err
	}

	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	c.logger.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(resp.Status, data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// errorMessage extracts the backend's reason from an error body.
func errorMessage(status string, body []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" && len(s) < 512 {
		return s
	}
	return status
}
