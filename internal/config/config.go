package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	squareProductionURL = "https://connect.squareup.com"
	squareSandboxURL    = "https://connect.squareupsandbox.com"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// Square
	SquareAccessToken   string
	SquareLocationID    string
	SquareApplicationID string
	SquareSandbox       bool
	SquareBaseURL       string
	SquareReferenceID   string
	DepositCurrency     string

	// Twilio Verify + Messages
	TwilioAccountSID       string
	TwilioAuthToken        string
	TwilioVerificationSID  string
	TwilioFromNumber       string
	VerifyTokenSecret      string
	VerifyTokenTTL         time.Duration
	SMSConfirmationEnabled bool

	// Availability search window
	AvailabilityLeadTime   time.Duration
	AvailabilityWindowDays int
	BusinessTimezone       string

	// Redis (rate limiting of SMS-triggering routes)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	SMSRateLimit  int
	SMSRateWindow time.Duration

	// Email confirmation
	EmailProvider  string
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string
	EmailReplyTo   string
	// NotifyTimeout bounds one background confirmation send.
	NotifyTimeout time.Duration

	// SESConfigurationSet routes SES events (bounces, opens) to a destination.
	SESConfigurationSet string

	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// Tracing
	OTelEnabled      bool
	OTelEndpoint     string
	OTelSampleRatio  float64
	OTelServiceName  string
	CORSAllowOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		SquareAccessToken:   getEnv("SQUARE_ACCESS_TOKEN", ""),
		SquareLocationID:    getEnv("SQUARE_LOCATION_ID", ""),
		SquareApplicationID: getEnv("SQUARE_APPLICATION_ID", ""),
		SquareSandbox:       getEnvAsBool("SQUARE_SANDBOX", true),
		SquareBaseURL:       getEnv("SQUARE_BASE_URL", ""),
		SquareReferenceID:   getEnv("SQUARE_REFERENCE_ID", "BOOKINGS-SAMPLE-APP"),
		DepositCurrency:     strings.ToUpper(getEnv("DEPOSIT_CURRENCY", "USD")),

		TwilioAccountSID:       getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:        getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioVerificationSID:  getEnv("TWILIO_VERIFICATION_SID", ""),
		TwilioFromNumber:       getEnv("TWILIO_FROM_NUMBER", ""),
		VerifyTokenSecret:      getEnv("VERIFY_TOKEN_SECRET", ""),
		VerifyTokenTTL:         getEnvAsDuration("VERIFY_TOKEN_TTL", 15*time.Minute),
		SMSConfirmationEnabled: getEnvAsBool("SMS_CONFIRMATION_ENABLED", false),

		AvailabilityLeadTime:   getEnvAsDuration("AVAILABILITY_LEAD_TIME", 24*time.Hour),
		AvailabilityWindowDays: getEnvAsInt("AVAILABILITY_WINDOW_DAYS", 31),
		BusinessTimezone:       getEnv("BUSINESS_TIMEZONE", "UTC"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		SMSRateLimit:  getEnvAsInt("SMS_RATE_LIMIT", 5),
		SMSRateWindow: getEnvAsDuration("SMS_RATE_WINDOW", 10*time.Minute),

		EmailProvider:       strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "none"))),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:           getEnv("EMAIL_FROM", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Bookings"),
		EmailReplyTo:        getEnv("EMAIL_REPLY_TO", ""),
		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),
		NotifyTimeout:       getEnvAsDuration("NOTIFY_TIMEOUT", time.Minute),

		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),

		OTelEnabled:      getEnvAsBool("OTEL_ENABLED", false),
		OTelEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRatio:  getEnvAsFloat("OTEL_SAMPLING_RATIO", 1),
		OTelServiceName:  getEnv("OTEL_SERVICE_NAME", "square-bookings"),
		CORSAllowOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
	}
	if cfg.AvailabilityWindowDays <= 0 || cfg.AvailabilityWindowDays > 31 {
		cfg.AvailabilityWindowDays = 31
	}
	return cfg
}

// SquareAPIBaseURL returns the Square host, honoring an explicit override
// before the sandbox flag.
func (c *Config) SquareAPIBaseURL() string {
	if strings.TrimSpace(c.SquareBaseURL) != "" {
		return strings.TrimRight(c.SquareBaseURL, "/")
	}
	if c.SquareSandbox {
		return squareSandboxURL
	}
	return squareProductionURL
}

// Location loads the business timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate reports settings the booking flow cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.SquareAccessToken == "" {
		missing = append(missing, "SQUARE_ACCESS_TOKEN")
	}
	if c.SquareLocationID == "" {
		missing = append(missing, "SQUARE_LOCATION_ID")
	}
	if c.TwilioAccountSID == "" {
		missing = append(missing, "TWILIO_ACCOUNT_SID")
	}
	if c.TwilioAuthToken == "" {
		missing = append(missing, "TWILIO_AUTH_TOKEN")
	}
	if c.TwilioVerificationSID == "" {
		missing = append(missing, "TWILIO_VERIFICATION_SID")
	}
	if c.VerifyTokenSecret == "" {
		missing = append(missing, "VERIFY_TOKEN_SECRET")
	}
	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("config: missing %s", strings.Join(missing, ", ")))
	}
	switch c.EmailProvider {
	case "", "none", "ses":
	case "sendgrid":
		if c.SendGridAPIKey == "" {
			errs = append(errs, errors.New("config: EMAIL_PROVIDER=sendgrid requires SENDGRID_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown EMAIL_PROVIDER %q", c.EmailProvider))
	}
	return errors.Join(errs...)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
