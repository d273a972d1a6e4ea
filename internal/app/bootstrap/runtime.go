package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/square-bookings/internal/config"
	httpmiddleware "github.com/wolfman30/square-bookings/internal/http/middleware"
	"github.com/wolfman30/square-bookings/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSMSLimiter picks the limiter for routes that send a verification
// text. A Redis client shares the budget across instances; without one the
// budget is per process. The returned func releases limiter resources.
func BuildSMSLimiter(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (httpmiddleware.Limiter, func()) {
	if logger == nil {
		logger = logging.Default()
	}
	var (
		limit  int
		window time.Duration
	)
	if cfg != nil {
		limit, window = cfg.SMSRateLimit, cfg.SMSRateWindow
	}
	if redisClient != nil {
		logger.Info("sms rate limiter: redis", "limit", limit, "window", window)
		return httpmiddleware.NewRedisLimiter(redisClient, limit, window, "bookings:sms"), func() {}
	}
	logger.Info("sms rate limiter: memory", "limit", limit, "window", window)
	limiter := httpmiddleware.NewMemoryLimiter(limit, window)
	return limiter, limiter.Close
}
