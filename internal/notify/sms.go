package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/square-bookings/pkg/logging"
)

const (
	twilioAPIBaseURL = "https://api.twilio.com"
	smsAttempts      = 3
)

var smsTracer = otel.Tracer("bookings.internal.notify.sms")

type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// TwilioSMSSender posts messages to Twilio's Messages API.
type TwilioSMSSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
	backoff    func(attempt int) time.Duration
	logger     *logging.Logger
}

func NewTwilioSMSSender(accountSID, authToken, from string, logger *logging.Logger) *TwilioSMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioSMSSender{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    twilioAPIBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		backoff: func(int) time.Duration {
			return time.Duration(200+rand.Intn(300)) * time.Millisecond
		},
		logger: logger,
	}
}

func (s *TwilioSMSSender) WithBaseURL(baseURL string) *TwilioSMSSender {
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

// SendSMS sends one message, retrying transport errors, 429s and 5xx.
func (s *TwilioSMSSender) SendSMS(ctx context.Context, to, body string) error {
	switch {
	case s.accountSID == "" || s.authToken == "":
		return errors.New("notify: twilio credentials missing")
	case s.from == "":
		return errors.New("notify: sms from number required")
	case strings.TrimSpace(to) == "":
		return errors.New("notify: sms to required")
	case strings.TrimSpace(body) == "":
		return errors.New("notify: sms body required")
	}

	ctx, span := smsTracer.Start(ctx, "notify.twilio.send")
	defer span.End()
	span.SetAttributes(attribute.String("bookings.sms_to", to))

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.from)
	form.Set("Body", body)
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, url.PathEscape(s.accountSID))

	var lastErr error
	for attempt := 1; attempt <= smsAttempts; attempt++ {
		retry, err := s.post(ctx, endpoint, form)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == smsAttempts {
			break
		}
		select {
		case <-ctx.Done():
			span.RecordError(ctx.Err())
			return fmt.Errorf("notify: sms send: %w", ctx.Err())
		case <-time.After(s.backoff(attempt)):
		}
	}
	span.RecordError(lastErr)
	return lastErr
}

// post makes one attempt and reports whether a failure is worth retrying.
func (s *TwilioSMSSender) post(ctx context.Context, endpoint string, form url.Values) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("notify: sms request: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("notify: sms send: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var parsed struct {
			SID    string `json:"sid"`
			Status string `json:"status"`
		}
		_ = json.Unmarshal(respBody, &parsed)
		s.logger.Info("twilio sms sent", "sid", parsed.SID, "status", parsed.Status)
		return false, nil
	}
	err = fmt.Errorf("notify: twilio send failed: %s", formatTwilioError(resp.StatusCode, respBody))
	retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return retry, err
}

type twilioAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
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

// StubSMSSender logs instead of sending.
type StubSMSSender struct {
	logger *logging.Logger
}

func NewStubSMSSender(logger *logging.Logger) *StubSMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubSMSSender{logger: logger}
}

func (s *StubSMSSender) SendSMS(_ context.Context, _ string, body string) error {
	s.logger.Info("stub sms sender: would send sms", "length", len(body))
	return nil
}

var (
	_ SMSSender = (*TwilioSMSSender)(nil)
	_ SMSSender = (*StubSMSSender)(nil)
)
