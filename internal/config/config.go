package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Fallback secrets used outside production only.
const (
	devSessionKey    = "dev-onboarding-session-key-change-me"
	devInvitationKey = "dev-invitation-signing-key-change-me"
)

// Session store backends selectable through SESSION_BACKEND.
const (
	BackendDynamo = "dynamo"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	SessionBackend    string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	SessionEncryptKey string
	SessionDefaultTTL time.Duration
	SessionMaxTTL     time.Duration
	SweepSchedule     string // cron spec; empty disables the background sweep
	ArchiveBucket     string // empty disables archiving

	SNSRegion         string
	EventsTopicARN    string // empty disables event publishing
	InvitationKey     string
	InvitationTTL     time.Duration
	OnboardingBaseURL string
	AdminAPIKey       string // empty disables admin routes

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	AllowedOrigins []string // CORS allowed origins
	RateLimitRPS   float64
	RateLimitBurst int
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	OnboardingSessions string
	Invitations        string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	env := getEnv("APP_ENV", getEnv("NODE_ENV", "development"))
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  env,

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			OnboardingSessions: getEnv("DYNAMO_TABLE_ONBOARDING_SESSIONS", "onboarding_sessions"),
			Invitations:        getEnv("DYNAMO_TABLE_INVITATIONS", "invitations"),
		},

		SessionBackend:    strings.ToLower(getEnv("SESSION_BACKEND", BackendDynamo)),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		SessionEncryptKey: getEnv("SESSION_ENCRYPTION_KEY", ""),
		SessionDefaultTTL: time.Duration(getEnvInt("SESSION_DEFAULT_TTL_MINUTES", 180)) * time.Minute,
		SessionMaxTTL:     time.Duration(getEnvInt("SESSION_MAX_TTL_MINUTES", 1440)) * time.Minute,
		SweepSchedule:     getEnv("SESSION_SWEEP_SCHEDULE", ""),
		ArchiveBucket:     getEnv("SESSION_ARCHIVE_BUCKET", ""),

		SNSRegion:         getEnv("SNS_REGION", "us-east-1"),
		EventsTopicARN:    getEnv("SNS_EVENTS_TOPIC_ARN", ""),
		InvitationKey:     getEnv("INVITATION_SIGNING_KEY", ""),
		InvitationTTL:     time.Duration(getEnvInt("INVITATION_TTL_HOURS", 168)) * time.Hour,
		OnboardingBaseURL: getEnv("ONBOARDING_BASE_URL", "http://localhost:3001/onboarding"),
		AdminAPIKey:       getEnv("ADMIN_API_KEY", ""),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "1025"),
		SMTPFrom:     getEnv("SMTP_FROM", "onboarding@example.com"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),
	}
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// SessionKey returns the payload encryption secret. Production refuses to
// start without SESSION_ENCRYPTION_KEY.
func (c *Config) SessionKey() (string, error) {
	return secret(c, c.SessionEncryptKey, devSessionKey, "SESSION_ENCRYPTION_KEY")
}

// InvitationSigningKey returns the invitation token secret.
func (c *Config) InvitationSigningKey() (string, error) {
	return secret(c, c.InvitationKey, devInvitationKey, "INVITATION_SIGNING_KEY")
}

func secret(c *Config, v, fallback, name string) (string, error) {
	if v != "" {
		return v, nil
	}
	if c.IsProduction() {
		return "", errors.New(name + " must be set in production")
	}
	return fallback, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return fallback
}
