package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"tripwire/models"
	"tripwire/services"
)

type Config struct {
	Environment string
	Port        string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string
	BaseURL     string // used for unsubscribe links in emails

	// Firebase Config
	FirebaseCredentialsPath string
	FirebaseProjectID       string

	// Twilio Config
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	// SMTP Settings
	EmailProvider string
	SMTPHost      string
	SMTPPort      string
	SMTPUsername  string
	SMTPPassword  string
	SMTPFrom      string

	// Dispatch Settings
	MaxConcurrentSends  int
	SendTimeoutSeconds  int
	SoftBounceThreshold int

	// Per-channel fixed-window ceilings
	PushPerMinute  int
	PushPerDay     int
	EmailPerMinute int
	EmailPerDay    int
	SMSPerMinute   int
	SMSPerDay      int

	// Async Worker Settings
	WorkerCount int
	QueueSize   int

	// Delivery log retention
	DeliveryLogRetentionDays int
}

func Load() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "mongodb://localhost:27017/tripwire"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:   getEnv("JWT_SECRET", "your-super-secret-jwt-key"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),

		// Firebase
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),

		// Twilio
		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber: getEnv("TWILIO_PHONE_NUMBER", ""),

		// Email settings
		EmailProvider: getEnv("EMAIL_PROVIDER", "smtp"),
		SMTPHost:      getEnv("SMTP_HOST", ""),
		SMTPPort:      getEnv("SMTP_PORT", "587"),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:      getEnv("SMTP_FROM", "noreply@tripwire.app"),

		// Dispatch settings
		MaxConcurrentSends:  getEnvAsInt("MAX_CONCURRENT_SENDS", 25),
		SendTimeoutSeconds:  getEnvAsInt("SEND_TIMEOUT_SECONDS", 10),
		SoftBounceThreshold: getEnvAsInt("SOFT_BOUNCE_THRESHOLD", 5),

		// Rate limit ceilings
		PushPerMinute:  getEnvAsInt("RATE_LIMIT_PUSH_PER_MINUTE", 30),
		PushPerDay:     getEnvAsInt("RATE_LIMIT_PUSH_PER_DAY", 500),
		EmailPerMinute: getEnvAsInt("RATE_LIMIT_EMAIL_PER_MINUTE", 10),
		EmailPerDay:    getEnvAsInt("RATE_LIMIT_EMAIL_PER_DAY", 100),
		SMSPerMinute:   getEnvAsInt("RATE_LIMIT_SMS_PER_MINUTE", 3),
		SMSPerDay:      getEnvAsInt("RATE_LIMIT_SMS_PER_DAY", 20),

		// Worker settings
		WorkerCount: getEnvAsInt("DISPATCH_WORKER_COUNT", 3),
		QueueSize:   getEnvAsInt("DISPATCH_QUEUE_SIZE", 500),

		// Retention
		DeliveryLogRetentionDays: getEnvAsInt("DELIVERY_LOG_RETENTION_DAYS", 90),
	}
}

// DispatchConfig assembles the fan-out tuning from the flat env config.
func (c *Config) DispatchConfig() services.DispatchConfig {
	return services.DispatchConfig{
		MaxConcurrentSends: c.MaxConcurrentSends,
		SendTimeout:        time.Duration(c.SendTimeoutSeconds) * time.Second,
		RateLimits: map[string]services.RateLimitCeilings{
			models.ChannelPush:  {PerMinute: c.PushPerMinute, PerDay: c.PushPerDay},
			models.ChannelEmail: {PerMinute: c.EmailPerMinute, PerDay: c.EmailPerDay},
			models.ChannelSMS:   {PerMinute: c.SMSPerMinute, PerDay: c.SMSPerDay},
		},
	}
}

func InitRedis(cfg *Config) *redis.Client {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		// Fallback to default config
		opt = &redis.Options{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
		}
	}

	client := redis.NewClient(opt)
	return client
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
