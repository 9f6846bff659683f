// Package remote is the adapter for the remote shipment service.
//
// The service exposes a small JSON contract:
//
//	GET    /shipments         -> [APIShipment...]
//	DELETE /shipments/{id}    -> {"ok":true,"deleted":N}
//	POST   /reset-shipments   -> {"ok":true,"count":N}
//	GET    /health            -> {"ok":true}
//
// Every failure maps onto one of the sentinel errors in errors.go so the
// reconciliation engine can decide between "offline", "retry later" and
// "already gone".
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldagentpro/fieldsync/internal/shipment"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 5 * time.Second

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 10 << 20

// Source is the remote shipment service as seen by the reconciliation engine.
type Source interface {
	// FetchAll returns the full current collection. It never returns a
	// partial collection: any invalid item fails the whole call.
	FetchAll(ctx context.Context) ([]shipment.Shipment, error)

	// DeleteOne removes a shipment remotely. ErrNotFound means it was
	// already absent.
	DeleteOne(ctx context.Context, orderID int64) error

	// ResetSeed restores the remote dataset and returns its size.
	ResetSeed(ctx context.Context) (int, error)
}

// Config holds client settings.
type Config struct {
	BaseURL string        // e.g. http://10.0.2.2:3000
	Timeout time.Duration // per request; DefaultTimeout if zero
}

// Client is the HTTP implementation of Source.
type Client struct {
	base   string
	http   *http.Client
	logger *log.Logger
	now    func() time.Time
}

// NewClient creates a client for the service at cfg.BaseURL.
// A nil logger disables request logging.
func NewClient(cfg Config, logger *log.Logger) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("remote base URL is required")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("remote base URL %q must be http or https", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		base:   base,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
		now:    time.Now,
	}, nil
}

// BaseURL returns the service root the client talks to.
func (c *Client) BaseURL() string {
	return c.base
}

type deleteResponse struct {
	OK      bool   `json:"ok"`
	Deleted *int   `json:"deleted"`
	Error   string `json:"error,omitempty"`
}

type resetResponse struct {
	OK    bool   `json:"ok"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

// FetchAll implements Source.
func (c *Client) FetchAll(ctx context.Context) ([]shipment.Shipment, error) {
	body, err := c.do(ctx, http.MethodGet, "/shipments")
	if err != nil {
		return nil, err
	}

	var items []shipment.APIShipment
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("GET /shipments: %w: %v", ErrInvalidPayload, err)
	}
	// JSON null decodes to a nil slice; only an array is a collection.
	if items == nil {
		return nil, fmt.Errorf("GET /shipments: %w: expected an array", ErrInvalidPayload)
	}

	rows, err := shipment.MapAll(items, c.now())
	if err != nil {
		return nil, fmt.Errorf("GET /shipments: %w: %v", ErrInvalidPayload, err)
	}
	return rows, nil
}

// DeleteOne implements Source.
func (c *Client) DeleteOne(ctx context.Context, orderID int64) error {
	path := "/shipments/" + strconv.FormatInt(orderID, 10)
	body, err := c.do(ctx, http.MethodDelete, path)
	if err != nil {
		return err
	}

	// An empty 2xx body is a plain success.
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}

	var resp deleteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("DELETE %s: %w: %v", path, ErrInvalidPayload, err)
	}
	if !resp.OK {
		return fmt.Errorf("DELETE %s: %w: %s", path, ErrServer, resp.Error)
	}
	if resp.Deleted != nil && *resp.Deleted == 0 {
		return fmt.Errorf("DELETE %s: %w", path, ErrNotFound)
	}
	return nil
}

// ResetSeed implements Source.
func (c *Client) ResetSeed(ctx context.Context) (int, error) {
	body, err := c.do(ctx, http.MethodPost, "/reset-shipments")
	if err != nil {
		return 0, err
	}

	var resp resetResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("POST /reset-shipments: %w: %v", ErrInvalidPayload, err)
	}
	if !resp.OK {
		return 0, fmt.Errorf("POST /reset-shipments: %w: %s", ErrServer, resp.Error)
	}
	return resp.Count, nil
}

// Health checks that the service is up.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health")
	return err
}

// do performs a request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string) ([]byte, error) {
	op := method + " " + path

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request %s: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logf("%s failed after %v (request %s): %v", op, time.Since(start), requestID, err)
		return nil, classifyTransport(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyTransport(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logf("%s -> %d (request %s)", op, resp.StatusCode, requestID)
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode}
	}
	return body, nil
}

func (c *Client) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
