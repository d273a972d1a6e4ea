// Package square is a narrow REST client for the Square APIs the booking
// site depends on: Catalog, Bookings, Team, Customers, Cards, Payments and
// Locations.
package square

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/square-bookings/pkg/logging"
)

var squareTracer = otel.Tracer("bookings.internal.square")

// Observer receives one observation per API call.
type Observer interface {
	ObserveRemoteCall(api, operation, status string, seconds float64)
}

// Client calls the Square REST API with a single access token.
type Client struct {
	accessToken string
	baseURL     string
	httpClient  *http.Client
	logger      *logging.Logger
	observer    Observer
	newKey      func() string
}

// NewClient builds a client against production Square. Use WithBaseURL for
// the sandbox.
func NewClient(accessToken string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		accessToken: accessToken,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
		newKey:      uuid.NewString,
	}
}

// WithBaseURL overrides the Square API host (e.g., sandbox).
func (c *Client) WithBaseURL(baseURL string) *Client {
	if baseURL == "" {
		return c
	}
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// WithHTTPClient swaps the transport, e.g. for otelhttp instrumentation.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

func (c *Client) WithObserver(o Observer) *Client {
	c.observer = o
	return c
}

// ErrorDetail is one entry of Square's errors envelope.
type ErrorDetail struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
	Field    string `json:"field,omitempty"`
}

// APIError is returned for any non-2xx Square response.
type APIError struct {
	StatusCode int
	Operation  string
	Errors     []ErrorDetail
	Body       string
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		msg := e.Body
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return fmt.Sprintf("square: %s: status %d: %s", e.Operation, e.StatusCode, msg)
	}
	parts := make([]string, 0, len(e.Errors))
	for _, d := range e.Errors {
		part := d.Code
		if d.Detail != "" {
			part += ": " + d.Detail
		}
		parts = append(parts, part)
	}
	return fmt.Sprintf("square: %s: status %d: %s", e.Operation, e.StatusCode, strings.Join(parts, "; "))
}

// HasCode reports whether any error detail carries the given code.
func (e *APIError) HasCode(code string) bool {
	for _, d := range e.Errors {
		if d.Code == code {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err is a Square 404 / NOT_FOUND response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusNotFound || apiErr.HasCode("NOT_FOUND")
}

// IsClientError reports whether Square rejected the request itself (4xx).
func IsClientError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

// do sends one request. body may be nil; out may be nil when the response is
// not needed.
func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, body, out any) error {
	if strings.TrimSpace(c.accessToken) == "" {
		return fmt.Errorf("square: %s: missing access token", operation)
	}

	ctx, span := squareTracer.Start(ctx, "square."+operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("square.path", path),
	)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("square: %s: marshal: %w", operation, err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("square: %s: request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Square-Version", apiVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(operation, "error", start)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return fmt.Errorf("square: %s: http: %w", operation, err)
	}
	defer resp.Body.Close()
	c.observe(operation, strconv.Itoa(resp.StatusCode), start)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("square: %s: read: %w", operation, err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{StatusCode: resp.StatusCode, Operation: operation, Body: string(respBody)}
		var envelope struct {
			Errors []ErrorDetail `json:"errors"`
		}
		if json.Unmarshal(respBody, &envelope) == nil {
			apiErr.Errors = envelope.Errors
		}
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, "api")
		c.logger.Warn("square api error", "operation", operation, "status", resp.StatusCode, "error", apiErr.Error())
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("square: %s: decode: %w", operation, err)
	}
	return nil
}

func (c *Client) observe(operation, status string, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveRemoteCall("square", operation, status, time.Since(start).Seconds())
}

func (c *Client) idempotencyKey() string {
	return c.newKey()
}
