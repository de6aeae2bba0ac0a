// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	Security   SecurityConfig   `json:"security"`
	JWT        JWTConfig        `json:"jwt"`
	Email      EmailConfig      `json:"email"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Cache      CacheConfig      `json:"cache"`
	Deployment DeploymentConfig `json:"deployment"`
	Razorpay   RazorpayConfig   `json:"razorpay"`
	Donation   DonationConfig   `json:"donation"`
	Blob       BlobConfig       `json:"blob"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Admin      AdminConfig      `json:"admin"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
}

type ServerConfig struct {
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout"`
	BodyLimit         int           `json:"body_limit"`
	EnablePprof       bool          `json:"enable_pprof"` // served under /debug/pprof behind the admin IP whitelist
	EnableMetrics     bool          `json:"enable_metrics"`
	TrustedProxies    []string      `json:"trusted_proxies"`
	ProxyHeader       string        `json:"proxy_header"`
	EnableCompression bool          `json:"enable_compression"`
	CompressionLevel  int           `json:"compression_level"` // -1 disabled, 0 default, 1 best speed, 2 best compression
}

type SecurityConfig struct {
	// TLS/HTTPS
	TLSEnabled         bool   `json:"tls_enabled"`
	TLSCertFile        string `json:"tls_cert_file"`
	TLSKeyFile         string `json:"tls_key_file"`
	TLSMinVersion      string `json:"tls_min_version"` // 1.2 or 1.3
	HSTSMaxAge         int    `json:"hsts_max_age"`
	HSTSIncludeSubDoms bool   `json:"hsts_include_subdomains"`
	HSTSPreload        bool   `json:"hsts_preload"`

	// CORS
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	CORSMaxAge       int      `json:"cors_max_age"`

	// Rate Limiting
	AuthRateLimit   int           `json:"auth_rate_limit"`   // requests per minute
	GlobalRateLimit int           `json:"global_rate_limit"` // requests per minute
	RateLimitWindow time.Duration `json:"rate_limit_window"`

	// Content Security
	CSPPolicy           string `json:"csp_policy"`
	XFrameOptions       string `json:"x_frame_options"`
	XContentTypeOptions string `json:"x_content_type_options"`
	XSSProtection       string `json:"xss_protection"`
	ReferrerPolicy      string `json:"referrer_policy"`

	// API Security
	RequireAPIKey  bool     `json:"require_api_key"`
	APIKeyHeader   string   `json:"api_key_header"`
	AllowedAPIKeys []string `json:"allowed_api_keys"`
	IPWhitelist    []string `json:"ip_whitelist"` // admin and pprof routes; empty allows all
	IPBlacklist    []string `json:"ip_blacklist"`

	// Minimum bcrypt cost accepted for admin password hashes
	BcryptCost int `json:"bcrypt_cost"`
}

type JWTConfig struct {
	SecretKey       string        `json:"secret_key"`
	PrivateKey      string        `json:"private_key"`  // RSA private key in PEM format
	PublicKey       string        `json:"public_key"`   // RSA public key in PEM format
	UseRSAKeys      bool          `json:"use_rsa_keys"` // Whether to use RSA keys instead of secret key
	AccessTokenTTL  time.Duration `json:"access_token_ttl"`
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl"`
	Issuer          string        `json:"issuer"`
	Audience        string        `json:"audience"`
}

type EmailConfig struct {
	Enabled       bool   `json:"enabled"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	FromEmail     string `json:"from_email"`
	FromName      string `json:"from_name"`
	RetryAttempts int    `json:"retry_attempts"`
}

type LoggingConfig struct {
	Level            string `json:"level"`  // debug, info, warn, error
	Output           string `json:"output"` // stdout, file, both
	FilePath         string `json:"file_path"`
	MaxSize          int    `json:"max_size"` // MB
	MaxBackups       int    `json:"max_backups"`
	MaxAge           int    `json:"max_age"` // days
	Compress         bool   `json:"compress"`
	EnableCaller     bool   `json:"enable_caller"`
	EnableStacktrace bool   `json:"enable_stacktrace"`

	// Access Logs
	EnableAccessLog bool   `json:"enable_access_log"`
	AccessLogPath   string `json:"access_log_path"`   // empty writes to the application log
	AccessLogFormat string `json:"access_log_format"` // json, combined

	// Audit Logs
	EnableAuditLog bool   `json:"enable_audit_log"`
	AuditLogPath   string `json:"audit_log_path"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled         bool          `json:"enabled"`
	Provider        string        `json:"provider"` // redis, memory
	RedisURL        string        `json:"redis_url"`
	RedisPassword   string        `json:"-"`
	RedisDB         int           `json:"redis_db"`
	RedisPrefix     string        `json:"redis_prefix"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

// DeploymentConfig is build metadata reported by the health check
type DeploymentConfig struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
}

// RazorpayConfig holds the gateway credentials. KeySecret also signs checkout
// confirmations; WebhookSecret signs webhook bodies.
type RazorpayConfig struct {
	KeyID         string        `json:"key_id"`
	KeySecret     string        `json:"-"`
	WebhookSecret string        `json:"-"`
	BaseURL       string        `json:"base_url"`
	Timeout       time.Duration `json:"timeout"`
	UseMock       bool          `json:"use_mock"`
}

type DonationConfig struct {
	Currency     string          `json:"currency"`
	MinAmount    decimal.Decimal `json:"min_amount"`
	MaxAmount    decimal.Decimal `json:"max_amount"`
	OrderTimeout time.Duration   `json:"order_timeout"`
	LockTTL      time.Duration   `json:"lock_ttl"`
	LockWait     time.Duration   `json:"lock_wait"`
}

// BlobConfig points ledger exports at an S3 bucket; an empty bucket disables uploads
type BlobConfig struct {
	Bucket string `json:"bucket"`
	Region string `json:"region"`
	Prefix string `json:"prefix"`
}

type SchedulerConfig struct {
	LedgerAuditEnabled  bool          `json:"ledger_audit_enabled"`
	LedgerAuditInterval time.Duration `json:"ledger_audit_interval"`
}

// AdminConfig seeds the first operator account on startup when both fields are set
type AdminConfig struct {
	BootstrapUsername     string `json:"bootstrap_username"`
	BootstrapPasswordHash string `json:"-"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "postgres"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:    getEnvBool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
		},
		Server: ServerConfig{
			Host:              getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:              getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:       getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:      getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:       getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout:   getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:         getEnvInt("SERVER_BODY_LIMIT", 4*1024*1024), // 4MB
			EnablePprof:       getEnvBool("SERVER_ENABLE_PPROF", false),
			EnableMetrics:     getEnvBool("SERVER_ENABLE_METRICS", true),
			TrustedProxies:    getEnvStringSlice("SERVER_TRUSTED_PROXIES", []string{"127.0.0.1"}),
			ProxyHeader:       getEnvString("SERVER_PROXY_HEADER", "X-Real-IP"),
			EnableCompression: getEnvBool("SERVER_ENABLE_COMPRESSION", true),
			CompressionLevel:  getEnvInt("SERVER_COMPRESSION_LEVEL", 1),
		},
		Security: SecurityConfig{
			TLSEnabled:          getEnvBool("TLS_ENABLED", true),
			TLSCertFile:         getEnvString("TLS_CERT_FILE", "/etc/ssl/certs/donation-ledger.crt"),
			TLSKeyFile:          getEnvString("TLS_KEY_FILE", "/etc/ssl/private/donation-ledger.key"),
			TLSMinVersion:       getEnvString("TLS_MIN_VERSION", "1.3"),
			HSTSMaxAge:          getEnvInt("HSTS_MAX_AGE", 31536000), // 1 year
			HSTSIncludeSubDoms:  getEnvBool("HSTS_INCLUDE_SUBDOMAINS", true),
			HSTSPreload:         getEnvBool("HSTS_PRELOAD", true),
			AllowedOrigins:      getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"https://donate.example.org", "https://admin.donate.example.org"}),
			AllowedMethods:      getEnvStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:      getEnvStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", "X-API-Key", "X-Razorpay-Signature"}),
			AllowCredentials:    getEnvBool("CORS_ALLOW_CREDENTIALS", true),
			CORSMaxAge:          getEnvInt("CORS_MAX_AGE", 86400),
			AuthRateLimit:       getEnvInt("AUTH_RATE_LIMIT", 20),
			GlobalRateLimit:     getEnvInt("GLOBAL_RATE_LIMIT", 2000),
			RateLimitWindow:     getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
			CSPPolicy:           getEnvString("CSP_POLICY", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'"),
			XFrameOptions:       getEnvString("X_FRAME_OPTIONS", "DENY"),
			XContentTypeOptions: getEnvString("X_CONTENT_TYPE_OPTIONS", "nosniff"),
			XSSProtection:       getEnvString("XSS_PROTECTION", "1; mode=block"),
			ReferrerPolicy:      getEnvString("REFERRER_POLICY", "strict-origin-when-cross-origin"),
			RequireAPIKey:       getEnvBool("REQUIRE_API_KEY", false),
			APIKeyHeader:        getEnvString("API_KEY_HEADER", "X-API-Key"),
			AllowedAPIKeys:      getEnvStringSlice("ALLOWED_API_KEYS", []string{}),
			IPWhitelist:         getEnvStringSlice("IP_WHITELIST", []string{}),
			IPBlacklist:         getEnvStringSlice("IP_BLACKLIST", []string{}),
			BcryptCost:          getEnvInt("BCRYPT_COST", 12),
		},
		JWT: JWTConfig{
			SecretKey:       getEnvString("JWT_SECRET_KEY", ""),
			PrivateKey:      getEnvString("JWT_PRIVATE_KEY", ""),
			PublicKey:       getEnvString("JWT_PUBLIC_KEY", ""),
			UseRSAKeys:      getEnvBool("JWT_USE_RSA_KEYS", false),
			AccessTokenTTL:  getEnvDuration("JWT_ACCESS_TOKEN_TTL", 24*time.Hour),
			RefreshTokenTTL: getEnvDuration("JWT_REFRESH_TOKEN_TTL", 7*24*time.Hour),
			Issuer:          getEnvString("JWT_ISSUER", "donation-ledger"),
			Audience:        getEnvString("JWT_AUDIENCE", "donation-ledger-api"),
		},
		Email: EmailConfig{
			Enabled:       getEnvBool("EMAIL_ENABLED", false),
			Host:          getEnvString("EMAIL_HOST", "smtp.gmail.com"),
			Port:          getEnvInt("EMAIL_PORT", 587),
			Username:      getEnvString("EMAIL_USERNAME", ""),
			Password:      getEnvString("EMAIL_PASSWORD", ""),
			FromEmail:     getEnvString("EMAIL_FROM_EMAIL", "noreply@donate.example.org"),
			FromName:      getEnvString("EMAIL_FROM_NAME", "Donation Ledger"),
			RetryAttempts: getEnvInt("EMAIL_RETRY_ATTEMPTS", 3),
		},
		Logging: LoggingConfig{
			Level:            getEnvString("LOG_LEVEL", "info"),
			Output:           getEnvString("LOG_OUTPUT", "file"),
			FilePath:         getEnvString("LOG_FILE_PATH", "/var/log/donation-ledger/app.log"),
			MaxSize:          getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups:       getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:           getEnvInt("LOG_MAX_AGE", 30),
			Compress:         getEnvBool("LOG_COMPRESS", true),
			EnableCaller:     getEnvBool("LOG_ENABLE_CALLER", true),
			EnableStacktrace: getEnvBool("LOG_ENABLE_STACKTRACE", true),
			EnableAccessLog:  getEnvBool("LOG_ENABLE_ACCESS", true),
			AccessLogPath:    getEnvString("LOG_ACCESS_PATH", "/var/log/donation-ledger/access.log"),
			AccessLogFormat:  getEnvString("LOG_ACCESS_FORMAT", "json"),
			EnableAuditLog:   getEnvBool("LOG_ENABLE_AUDIT", true),
			AuditLogPath:     getEnvString("LOG_AUDIT_PATH", "/var/log/donation-ledger/audit.log"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:         getEnvBool("CACHE_ENABLED", true),
			Provider:        getEnvString("CACHE_PROVIDER", "redis"),
			RedisURL:        getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisPassword:   getEnvString("REDIS_PASSWORD", ""),
			RedisDB:         getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix:     getEnvString("CACHE_REDIS_PREFIX", "donation"),
			CleanupInterval: getEnvDuration("CACHE_CLEANUP_INTERVAL", 10*time.Minute),
		},
		Deployment: DeploymentConfig{
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
		},
		Razorpay: RazorpayConfig{
			KeyID:         getEnvString("RAZORPAY_KEY_ID", ""),
			KeySecret:     getEnvString("RAZORPAY_KEY_SECRET", ""),
			WebhookSecret: getEnvString("RAZORPAY_WEBHOOK_SECRET", ""),
			BaseURL:       getEnvString("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1"),
			Timeout:       getEnvDuration("RAZORPAY_TIMEOUT", 15*time.Second),
			UseMock:       getEnvBool("RAZORPAY_USE_MOCK", false),
		},
		Donation: DonationConfig{
			Currency:     getEnvString("DONATION_CURRENCY", "INR"),
			MinAmount:    getEnvDecimal("DONATION_MIN_AMOUNT", decimal.NewFromInt(1)),
			MaxAmount:    getEnvDecimal("DONATION_MAX_AMOUNT", decimal.NewFromInt(1000000)),
			OrderTimeout: getEnvDuration("DONATION_ORDER_TIMEOUT", 10*time.Second),
			LockTTL:      getEnvDuration("LEDGER_LOCK_TTL", 30*time.Second),
			LockWait:     getEnvDuration("LEDGER_LOCK_WAIT", 5*time.Second),
		},
		Blob: BlobConfig{
			Bucket: getEnvString("BLOB_S3_BUCKET", ""),
			Region: getEnvString("BLOB_S3_REGION", "ap-south-1"),
			Prefix: getEnvString("BLOB_S3_PREFIX", "donation-ledger"),
		},
		Scheduler: SchedulerConfig{
			LedgerAuditEnabled:  getEnvBool("LEDGER_AUDIT_ENABLED", true),
			LedgerAuditInterval: getEnvDuration("LEDGER_AUDIT_INTERVAL", 15*time.Minute),
		},
		Admin: AdminConfig{
			BootstrapUsername:     getEnvString("ADMIN_BOOTSTRAP_USERNAME", ""),
			BootstrapPasswordHash: getEnvString("ADMIN_BOOTSTRAP_PASSWORD_HASH", ""),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	// Check if .env file exists
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		// .env file doesn't exist, continue with environment variables
		return nil
	}

	// Open .env file
	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	// Read file line by line
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key=value pairs
		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				// Remove quotes if present
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				// Set environment variable if not already set
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if parsed, err := decimal.NewFromString(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		// Use standard library strings.Split and strings.TrimSpace
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}
	if cfg.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD is required")
	}

	// Validate JWT configuration
	if cfg.JWT.SecretKey == "" {
		errors = append(errors, "JWT_SECRET_KEY is required")
	}
	if len(cfg.JWT.SecretKey) < 32 {
		errors = append(errors, "JWT_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.JWT.AccessTokenTTL <= 0 {
		errors = append(errors, "JWT_ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.JWT.RefreshTokenTTL <= 0 {
		errors = append(errors, "JWT_REFRESH_TOKEN_TTL must be positive")
	}
	if cfg.JWT.Issuer == "" {
		errors = append(errors, "JWT_ISSUER is required")
	}
	if cfg.JWT.Audience == "" {
		errors = append(errors, "JWT_AUDIENCE is required")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}
	if cfg.Server.IdleTimeout <= 0 {
		errors = append(errors, "SERVER_IDLE_TIMEOUT must be positive")
	}

	if cfg.Server.CompressionLevel < -1 || cfg.Server.CompressionLevel > 2 {
		errors = append(errors, "SERVER_COMPRESSION_LEVEL must be between -1 and 2")
	}
	for _, proxy := range cfg.Server.TrustedProxies {
		if !validIPOrCIDR(proxy) {
			errors = append(errors, fmt.Sprintf("SERVER_TRUSTED_PROXIES entry %q is not an IP or CIDR", proxy))
		}
	}

	// Validate security configuration
	if cfg.Security.BcryptCost < 10 || cfg.Security.BcryptCost > 14 {
		errors = append(errors, "BCRYPT_COST must be between 10 and 14")
	}
	for _, ip := range cfg.Security.IPWhitelist {
		if !validIPOrCIDR(ip) {
			errors = append(errors, fmt.Sprintf("IP_WHITELIST entry %q is not an IP or CIDR", ip))
		}
	}
	if hash := cfg.Admin.BootstrapPasswordHash; hash != "" {
		cost, err := bcrypt.Cost([]byte(hash))
		switch {
		case err != nil:
			errors = append(errors, "ADMIN_BOOTSTRAP_PASSWORD_HASH is not a bcrypt hash")
		case cost < cfg.Security.BcryptCost:
			errors = append(errors, fmt.Sprintf("ADMIN_BOOTSTRAP_PASSWORD_HASH cost %d is below BCRYPT_COST %d", cost, cfg.Security.BcryptCost))
		}
	}

	// Validate gateway configuration
	if cfg.Razorpay.KeySecret == "" {
		errors = append(errors, "RAZORPAY_KEY_SECRET is required")
	}
	if cfg.Razorpay.WebhookSecret == "" {
		errors = append(errors, "RAZORPAY_WEBHOOK_SECRET is required")
	}
	if cfg.Razorpay.KeySecret != "" && cfg.Razorpay.KeySecret == cfg.Razorpay.WebhookSecret {
		errors = append(errors, "RAZORPAY_WEBHOOK_SECRET must differ from RAZORPAY_KEY_SECRET")
	}
	if !cfg.Razorpay.UseMock {
		if cfg.Razorpay.KeyID == "" {
			errors = append(errors, "RAZORPAY_KEY_ID is required")
		}
		if cfg.Razorpay.BaseURL == "" {
			errors = append(errors, "RAZORPAY_BASE_URL is required")
		}
	}

	// Validate donation limits
	if len(cfg.Donation.Currency) != 3 {
		errors = append(errors, "DONATION_CURRENCY must be a 3-letter code")
	}
	if !cfg.Donation.MinAmount.IsPositive() {
		errors = append(errors, "DONATION_MIN_AMOUNT must be positive")
	}
	if cfg.Donation.MaxAmount.IsPositive() && cfg.Donation.MaxAmount.LessThan(cfg.Donation.MinAmount) {
		errors = append(errors, "DONATION_MAX_AMOUNT must not be below DONATION_MIN_AMOUNT")
	}
	if cfg.Donation.LockTTL <= 0 {
		errors = append(errors, "LEDGER_LOCK_TTL must be positive")
	}

	if cfg.Scheduler.LedgerAuditEnabled && cfg.Scheduler.LedgerAuditInterval <= 0 {
		errors = append(errors, "LEDGER_AUDIT_INTERVAL must be positive when the ledger audit is enabled")
	}

	// Validate email configuration if enabled
	if cfg.Email.Enabled {
		if cfg.Email.Username == "" {
			errors = append(errors, "EMAIL_USERNAME is required for email configuration")
		}
		if cfg.Email.Password == "" {
			errors = append(errors, "EMAIL_PASSWORD is required for email configuration")
		}
		if cfg.Email.FromEmail == "" {
			errors = append(errors, "EMAIL_FROM_EMAIL is required for email configuration")
		}
	}

	// Validate TLS configuration if enabled
	if cfg.Security.TLSEnabled {
		if cfg.Security.TLSCertFile == "" {
			errors = append(errors, "TLS_CERT_FILE is required when TLS is enabled")
		}
		if cfg.Security.TLSKeyFile == "" {
			errors = append(errors, "TLS_KEY_FILE is required when TLS is enabled")
		}
		if _, err := ParseTLSVersion(cfg.Security.TLSMinVersion); err != nil {
			errors = append(errors, "TLS_MIN_VERSION must be 1.2 or 1.3")
		}
	}

	// Validate logging configuration
	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		valid := false
		for _, level := range validLevels {
			if cfg.Logging.Level == level {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}

	if cfg.Logging.EnableAccessLog {
		switch cfg.Logging.AccessLogFormat {
		case "json", "combined":
		default:
			errors = append(errors, "LOG_ACCESS_FORMAT must be json or combined")
		}
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled {
		if cfg.Cache.Provider == "redis" && cfg.Cache.RedisURL == "" {
			errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled with redis provider")
		}
	}

	// Return validation errors if any
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// ParseTLSVersion maps "1.2" and "1.3" to crypto/tls version constants
func ParseTLSVersion(v string) (uint16, error) {
	switch strings.TrimSpace(v) {
	case "1.2":
		return tls.VersionTLS12, nil
	case "1.3", "":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q", v)
	}
}

func validIPOrCIDR(s string) bool {
	if net.ParseIP(s) != nil {
		return true
	}
	_, _, err := net.ParseCIDR(s)
	return err == nil
}
