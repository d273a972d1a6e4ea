// Package verify wraps the Twilio Verify v2 API used for SMS one-time codes.
package verify

import (
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/square-bookings/pkg/logging"
)

const (
	defaultBaseURL = "https://verify.twilio.com"

	ChannelSMS = "sms"

	StatusPending  = "pending"
	StatusApproved = "approved"
)

var verifyTracer = otel.Tracer("bookings.internal.verify")

// Observer receives one observation per API call.
type Observer interface {
	ObserveRemoteCall(api, operation, status string, seconds float64)
}

// Verification is the subset of Twilio's verification resource we read.
type Verification struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	To      string `json:"to"`
	Channel string `json:"channel"`
	Valid   bool   `json:"valid"`
}

// Approved reports whether the code check succeeded.
func (v *Verification) Approved() bool {
	return v != nil && v.Status == StatusApproved
}

// Client starts and checks verifications for a single Verify service.
type Client struct {
	accountSID string
	authToken  string
	serviceSID string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	observer   Observer
}

func NewClient(accountSID, authToken, serviceSID string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		accountSID: accountSID,
		authToken:  authToken,
		serviceSID: serviceSID,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (c *Client) WithBaseURL(baseURL string) *Client {
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

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

// StartVerification sends a code to the phone number over the channel
// (sms when empty).
func (c *Client) StartVerification(ctx context.Context, to, channel string) (*Verification, error) {
	if strings.TrimSpace(to) == "" {
		return nil, errors.New("verify: to required")
	}
	if channel == "" {
		channel = ChannelSMS
	}
	form := url.Values{}
	form.Set("To", to)
	form.Set("Channel", channel)

	var out Verification
	if _, err := c.post(ctx, "start_verification", "Verifications", form, &out); err != nil {
		return nil, err
	}
	c.logger.Info("verification started", "sid", out.SID, "status", out.Status)
	return &out, nil
}

// CheckVerification checks a code. Twilio answers 404 once a verification has
// expired, been approved already or never existed; that is returned as a
// non-approved result rather than an error.
func (c *Client) CheckVerification(ctx context.Context, to, code string) (*Verification, error) {
	if strings.TrimSpace(to) == "" {
		return nil, errors.New("verify: to required")
	}
	if strings.TrimSpace(code) == "" {
		return &Verification{To: to, Status: StatusPending}, nil
	}
	form := url.Values{}
	form.Set("To", to)
	form.Set("Code", code)

	var out Verification
	status, err := c.post(ctx, "check_verification", "VerificationCheck", form, &out)
	if status == http.StatusNotFound {
		c.logger.Info("verification check not found", "to", to)
		return &Verification{To: to, Status: "not_found"}, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, operation, resource string, form url.Values, out any) (int, error) {
	if c.accountSID == "" || c.authToken == "" || c.serviceSID == "" {
		return 0, errors.New("verify: twilio credentials missing")
	}

	ctx, span := verifyTracer.Start(ctx, "verify."+operation)
	defer span.End()
	span.SetAttributes(attribute.String("twilio.service_sid", c.serviceSID))

	endpoint := fmt.Sprintf("%s/v2/Services/%s/%s", c.baseURL, url.PathEscape(c.serviceSID), resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("verify: %s: request: %w", operation, err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(operation, "error", start)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return 0, fmt.Errorf("verify: %s: http: %w", operation, err)
	}
	defer resp.Body.Close()
	c.observe(operation, strconv.Itoa(resp.StatusCode), start)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("verify: %s: %s", operation, formatTwilioError(resp.StatusCode, body))
		span.RecordError(err)
		span.SetStatus(codes.Error, "api")
		return resp.StatusCode, err
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("verify: %s: decode: %w", operation, err)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) observe(operation, status string, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveRemoteCall("twilio_verify", operation, status, time.Since(start).Seconds())
}

type twilioAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func formatTwilioError(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	return fmt.Sprintf("status %d: %s", status, trimmed)
}
