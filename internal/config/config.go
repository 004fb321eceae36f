package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port                    int    `env:"PORT" envDefault:"8080"`
	DatabaseURL             string `env:"DATABASE_URL,required,notEmpty"`
	RedisURL                string `env:"REDIS_URL"`
	StripeSecretKey         string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret     string `env:"STRIPE_WEBHOOK_SECRET"`
	WebhookToleranceSeconds int    `env:"WEBHOOK_TOLERANCE_SECONDS" envDefault:"300"`
	IdentityJWTSecret       string `env:"IDENTITY_JWT_SECRET"`
	IdentityIssuer          string `env:"IDENTITY_ISSUER"`
	AdminTokenHash          string `env:"ADMIN_TOKEN_HASH"`
	SeedCredits             int64  `env:"SEED_CREDITS" envDefault:"3"`
	AnalyzerURL             string `env:"ANALYZER_URL"`
	AnalyzerTimeoutSeconds  int    `env:"ANALYZER_TIMEOUT_SECONDS" envDefault:"60"`
	SiteURL                 string `env:"SITE_URL" envDefault:"http://localhost:3000"`
	RateLimitPerMin         int    `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	LogLevel                string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat               string `env:"LOG_FORMAT" envDefault:"console"`
	LogFile                 string `env:"LOG_FILE"`
}

func (c *Config) WebhookTolerance() time.Duration {
	return time.Duration(c.WebhookToleranceSeconds) * time.Second
}

func (c *Config) AnalyzerTimeout() time.Duration {
	return time.Duration(c.AnalyzerTimeoutSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.AdminTokenHash != "" {
		if !strings.HasPrefix(c.AdminTokenHash, "$2a$") &&
			!strings.HasPrefix(c.AdminTokenHash, "$2b$") &&
			!strings.HasPrefix(c.AdminTokenHash, "$2y$") {
			return fmt.Errorf("ADMIN_TOKEN_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go)")
		}
	}
	if c.SeedCredits < 0 {
		return fmt.Errorf("SEED_CREDITS must not be negative")
	}
	if c.WebhookToleranceSeconds <= 0 {
		return fmt.Errorf("WEBHOOK_TOLERANCE_SECONDS must be positive")
	}

	if isProduction {
		if c.StripeWebhookSecret == "" {
			return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required in production")
		}
		if err := validateSecret("IDENTITY_JWT_SECRET", c.IdentityJWTSecret); err != nil {
			return err
		}

		if c.StripeSecretKey == "" {
			log.Warn().Msg("STRIPE_SECRET_KEY is empty in production: checkout is disabled")
		}
		if c.RedisURL == "" {
			log.Warn().Msg("REDIS_URL is empty in production: rate limits are per instance and the event stream is off")
		} else if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.AdminTokenHash == "" {
			log.Warn().Msg("ADMIN_TOKEN_HASH is empty in production: admin routes are disabled")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
