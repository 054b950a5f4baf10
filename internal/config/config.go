// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for our application
type Config struct {
	App          AppConfig
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Security     SecurityConfig
	Cart         CartConfig
	Checkout     CheckoutConfig
	Payment      PaymentConfig
	Notification NotificationConfig
	Events       EventsConfig
	Reconcile    ReconcileConfig
	Logging      LoggingConfig
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string
	Version     string
	Environment string
	Debug       bool
	BaseURL     string

	// Printed on receipts
	CompanyName    string
	CompanyAddress string
	CompanyEmail   string
	CompanyPhone   string
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Host         string
	Port         string
	Name         string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Host         string
	Port         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// JWTConfig contains JWT token configuration.
// Tokens are issued by the authentication provider; we only verify them.
type JWTConfig struct {
	Secret            string
	Issuer            string
	AccessTokenExpiry time.Duration
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	RateLimitPerMinute int
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
	TrustedProxies     []string
	SecureCookies      bool
}

// CartConfig controls persistence of session carts
type CartConfig struct {
	SessionTTL    time.Duration
	UndoTTL       time.Duration
	IdleTTL       time.Duration
	CookieMaxAge  int
	CookieDomain  string
	SweepInterval time.Duration
}

// CheckoutConfig controls pricing rules and the checkout protocol
type CheckoutConfig struct {
	TaxRate             string
	TaxExemptProductIDs []int64
	Currency            string
	StepTimeout         time.Duration
	MaxRetries          int
	RetryDelay          time.Duration
	AttemptTTL          time.Duration
	OrderServiceURL     string
	SignInURL           string
}

// PaymentConfig contains payment processor configuration
type PaymentConfig struct {
	BaseURL         string
	KeyID           string
	KeySecret       string
	PublishableKey  string
	WebhookSecret   string
	Timeout         time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

// NotificationConfig contains notification delivery configuration
type NotificationConfig struct {
	Email EmailConfig
	SMS   SMSConfig
}

// EmailConfig contains email service configuration
type EmailConfig struct {
	Provider     string
	APIKey       string
	FromEmail    string
	FromName     string
	ReplyTo      string
	BaseURL      string
	TemplateDir  string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPUseTLS   bool
}

// SMSConfig contains SMS provider configuration
type SMSConfig struct {
	Enabled    bool
	BaseURL    string
	AccountSID string
	AuthToken  string
	From       string
}

// EventsConfig contains order event publishing configuration
type EventsConfig struct {
	KafkaBrokers []string
	Topic        string
}

// ReconcileConfig drives the background reconciler
type ReconcileConfig struct {
	Enabled      bool
	Interval     time.Duration
	PendingAfter time.Duration
	AbandonAfter time.Duration
	BatchSize    int
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	config := &Config{
		App: AppConfig{
			Name:           getEnv("APP_NAME", "Seasonal Storefront"),
			Version:        getEnv("APP_VERSION", "1.0.0"),
			Environment:    getEnv("APP_ENV", "development"),
			Debug:          getEnvAsBool("APP_DEBUG", true),
			BaseURL:        getEnv("APP_BASE_URL", "http://localhost:3000"),
			CompanyName:    getEnv("COMPANY_NAME", "Evergreen & Tinsel Co."),
			CompanyAddress: getEnv("COMPANY_ADDRESS", "1 Holly Lane, North Pole, AK 99705"),
			CompanyEmail:   getEnv("COMPANY_EMAIL", "orders@example.com"),
			CompanyPhone:   getEnv("COMPANY_PHONE", "+1 555 010 0000"),
		},
		Server: ServerConfig{
			Port:           getEnv("APP_PORT", "8080"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout: getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			MaxBodyBytes:   getEnvAsInt64("SERVER_MAX_BODY_BYTES", 1<<20),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Name:         getEnv("DB_NAME", "storefront_db"),
			User:         getEnv("DB_USER", "storefront_user"),
			Password:     getEnv("DB_PASSWORD", "storefront_password"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 300*time.Second),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", "your-super-secret-jwt-key-change-in-production"),
			Issuer:            getEnv("JWT_ISSUER", "storefront-auth"),
			AccessTokenExpiry: getEnvAsDuration("JWT_ACCESS_EXPIRE", 24*time.Hour),
		},
		Security: SecurityConfig{
			RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 100),
			CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:3001"}),
			CORSAllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			CORSAllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}),
			TrustedProxies:     getEnvAsSlice("TRUSTED_PROXIES", []string{}),
			SecureCookies:      getEnvAsBool("SECURE_COOKIES", false),
		},
		Cart: CartConfig{
			SessionTTL:    getEnvAsDuration("CART_SESSION_TTL", 30*24*time.Hour),
			UndoTTL:       getEnvAsDuration("CART_UNDO_TTL", 24*time.Hour),
			IdleTTL:       getEnvAsDuration("CART_SESSION_IDLE_TTL", 30*time.Minute),
			CookieMaxAge:  getEnvAsInt("CART_COOKIE_MAX_AGE", 30*86400),
			CookieDomain:  getEnv("CART_COOKIE_DOMAIN", ""),
			SweepInterval: getEnvAsDuration("CART_SWEEP_INTERVAL", time.Minute),
		},
		Checkout: CheckoutConfig{
			TaxRate:             getEnv("CHECKOUT_TAX_RATE", "0.07"),
			TaxExemptProductIDs: getEnvAsInt64Slice("CHECKOUT_TAX_EXEMPT_PRODUCT_IDS", nil),
			Currency:            getEnv("CHECKOUT_CURRENCY", "USD"),
			StepTimeout:         getEnvAsDuration("CHECKOUT_STEP_TIMEOUT", 8*time.Second),
			MaxRetries:          getEnvAsInt("CHECKOUT_MAX_RETRIES", 3),
			RetryDelay:          getEnvAsDuration("CHECKOUT_RETRY_DELAY", 500*time.Millisecond),
			AttemptTTL:          getEnvAsDuration("CHECKOUT_ATTEMPT_TTL", time.Hour),
			OrderServiceURL:     getEnv("ORDER_SERVICE_URL", ""),
			SignInURL:           getEnv("CHECKOUT_SIGNIN_URL", "/signin?next=/checkout"),
		},
		Payment: PaymentConfig{
			BaseURL:         getEnv("PAYMENT_BASE_URL", "https://api.payments.example.com/v1"),
			KeyID:           getEnv("PAYMENT_KEY_ID", ""),
			KeySecret:       getEnv("PAYMENT_KEY_SECRET", ""),
			PublishableKey:  getEnv("PAYMENT_PUBLISHABLE_KEY", ""),
			WebhookSecret:   getEnv("PAYMENT_WEBHOOK_SECRET", ""),
			Timeout:         getEnvAsDuration("PAYMENT_TIMEOUT", 15*time.Second),
			BreakerFailures: getEnvAsInt("PAYMENT_BREAKER_FAILURES", 5),
			BreakerCooldown: getEnvAsDuration("PAYMENT_BREAKER_COOLDOWN", 30*time.Second),
		},
		Notification: NotificationConfig{
			Email: EmailConfig{
				Provider:     getEnv("EMAIL_PROVIDER", "smtp"),
				APIKey:       getEnv("EMAIL_API_KEY", ""),
				FromEmail:    getEnv("FROM_EMAIL", "noreply@example.com"),
				FromName:     getEnv("FROM_NAME", "Seasonal Storefront"),
				ReplyTo:      getEnv("EMAIL_REPLY_TO", ""),
				BaseURL:      getEnv("EMAIL_BASE_URL", "http://localhost:3000"),
				TemplateDir:  getEnv("EMAIL_TEMPLATE_DIR", "./templates/emails"),
				SMTPHost:     getEnv("SMTP_HOST", ""),
				SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
				SMTPUsername: getEnv("SMTP_USERNAME", ""),
				SMTPPassword: getEnv("SMTP_PASSWORD", ""),
				SMTPUseTLS:   getEnvAsBool("SMTP_USE_TLS", false),
			},
			SMS: SMSConfig{
				Enabled:    getEnvAsBool("SMS_ENABLED", false),
				BaseURL:    getEnv("SMS_BASE_URL", "https://api.twilio.com/2010-04-01"),
				AccountSID: getEnv("SMS_ACCOUNT_SID", ""),
				AuthToken:  getEnv("SMS_AUTH_TOKEN", ""),
				From:       getEnv("SMS_FROM", ""),
			},
		},
		Events: EventsConfig{
			KafkaBrokers: getEnvAsSlice("KAFKA_BROKERS", []string{}),
			Topic:        getEnv("KAFKA_ORDER_TOPIC", "order-events"),
		},
		Reconcile: ReconcileConfig{
			Enabled:      getEnvAsBool("RECONCILE_ENABLED", true),
			Interval:     getEnvAsDuration("RECONCILE_INTERVAL", 30*time.Second),
			PendingAfter: getEnvAsDuration("RECONCILE_PENDING_AFTER", 2*time.Minute),
			AbandonAfter: getEnvAsDuration("RECONCILE_ABANDON_AFTER", 24*time.Hour),
			BatchSize:    getEnvAsInt("RECONCILE_BATCH_SIZE", 100),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "debug"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate JWT secret
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	// Validate database configuration
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}

	// Validate Redis configuration
	if c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}

	// Validate server port
	if c.Server.Port == "" {
		return fmt.Errorf("APP_PORT is required")
	}

	if rate, err := strconv.ParseFloat(c.Checkout.TaxRate, 64); err != nil || rate < 0 || rate >= 1 {
		return fmt.Errorf("CHECKOUT_TAX_RATE must be a fraction in [0, 1), got %q", c.Checkout.TaxRate)
	}
	if c.Checkout.MaxRetries < 1 {
		return fmt.Errorf("CHECKOUT_MAX_RETRIES must be at least 1")
	}
	if c.Checkout.StepTimeout <= 0 {
		return fmt.Errorf("CHECKOUT_STEP_TIMEOUT must be positive")
	}

	if c.IsProduction() && (c.Payment.KeyID == "" || c.Payment.KeySecret == "") {
		return fmt.Errorf("PAYMENT_KEY_ID and PAYMENT_KEY_SECRET are required in production")
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// Helper functions for environment variable parsing

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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// getEnvAsInt64Slice skips entries that do not parse
func getEnvAsInt64Slice(key string, defaultValue []int64) []int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []int64
	for _, part := range strings.Split(value, ",") {
		if n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}
