package config

import (
	"crypto/tls"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("JWT_SECRET_KEY", strings.Repeat("k", 40))
	t.Setenv("TLS_ENABLED", "false")
	t.Setenv("RAZORPAY_KEY_ID", "rzp_test_key")
	t.Setenv("RAZORPAY_KEY_SECRET", "checkout-secret")
	t.Setenv("RAZORPAY_WEBHOOK_SECRET", "webhook-secret")
}

func TestLoadProductionConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadProductionConfig()
	require.NoError(t, err)

	assert.Equal(t, "INR", cfg.Donation.Currency)
	assert.True(t, cfg.Donation.MinAmount.Equal(decimal.NewFromInt(1)))
	assert.True(t, cfg.Donation.MaxAmount.Equal(decimal.NewFromInt(1000000)))
	assert.Equal(t, 30*time.Second, cfg.Donation.LockTTL)
	assert.Equal(t, "https://api.razorpay.com/v1", cfg.Razorpay.BaseURL)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.LedgerAuditInterval)
	assert.Empty(t, cfg.Blob.Bucket)
	assert.Equal(t, 12, cfg.Security.BcryptCost)
	assert.Equal(t, []string{"127.0.0.1"}, cfg.Server.TrustedProxies)
	assert.Equal(t, "X-Real-IP", cfg.Server.ProxyHeader)
	assert.Equal(t, 1, cfg.Server.CompressionLevel)
	assert.Equal(t, "json", cfg.Logging.AccessLogFormat)
	assert.Equal(t, "production", cfg.Deployment.Environment)
}

func TestLoadProductionConfig_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DONATION_MIN_AMOUNT", "10.50")
	t.Setenv("DONATION_MAX_AMOUNT", "5000")
	t.Setenv("LEDGER_LOCK_WAIT", "2s")
	t.Setenv("BLOB_S3_BUCKET", "ledger-archive")
	t.Setenv("RAZORPAY_USE_MOCK", "true")

	cfg, err := LoadProductionConfig()
	require.NoError(t, err)

	assert.Equal(t, "10.5", cfg.Donation.MinAmount.String())
	assert.Equal(t, "5000", cfg.Donation.MaxAmount.String())
	assert.Equal(t, 2*time.Second, cfg.Donation.LockWait)
	assert.Equal(t, "ledger-archive", cfg.Blob.Bucket)
	assert.True(t, cfg.Razorpay.UseMock)
}

func TestLoadProductionConfig_OperationalOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REDIS_PASSWORD", "redis-pass")
	t.Setenv("IP_WHITELIST", "10.0.0.0/8, 203.0.113.7")
	t.Setenv("SERVER_TRUSTED_PROXIES", "10.1.0.0/16")
	t.Setenv("SERVER_PROXY_HEADER", "X-Forwarded-For")
	t.Setenv("DB_SLOW_QUERY_TIME", "250ms")
	t.Setenv("LOG_ACCESS_FORMAT", "combined")
	t.Setenv("BCRYPT_COST", "13")

	cfg, err := LoadProductionConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis-pass", cfg.Cache.RedisPassword)
	assert.Equal(t, []string{"10.0.0.0/8", "203.0.113.7"}, cfg.Security.IPWhitelist)
	assert.Equal(t, []string{"10.1.0.0/16"}, cfg.Server.TrustedProxies)
	assert.Equal(t, "X-Forwarded-For", cfg.Server.ProxyHeader)
	assert.Equal(t, 250*time.Millisecond, cfg.Database.SlowQueryTime)
	assert.Equal(t, "combined", cfg.Logging.AccessLogFormat)
	assert.Equal(t, 13, cfg.Security.BcryptCost)
}

func TestParseTLSVersion(t *testing.T) {
	v, err := ParseTLSVersion("1.2")
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), v)

	for _, in := range []string{"1.3", "", " 1.3 "} {
		v, err = ParseTLSVersion(in)
		require.NoError(t, err, in)
		assert.Equal(t, uint16(tls.VersionTLS13), v)
	}

	_, err = ParseTLSVersion("1.1")
	assert.Error(t, err)
}

func TestGetEnvDecimal_InvalidFallsBack(t *testing.T) {
	t.Setenv("SOME_AMOUNT", "not-a-number")
	assert.True(t, getEnvDecimal("SOME_AMOUNT", decimal.NewFromInt(7)).Equal(decimal.NewFromInt(7)))
}

func TestValidateProductionConfig(t *testing.T) {
	valid := func() *ProductionConfig {
		return &ProductionConfig{
			Database: DatabaseConfig{Host: "db", Port: 5432, Name: "ledger", User: "u", Password: "p"},
			Server:   ServerConfig{Port: 8080, ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second},
			Security: SecurityConfig{BcryptCost: 12},
			JWT: JWTConfig{
				SecretKey:       strings.Repeat("s", 32),
				AccessTokenTTL:  time.Hour,
				RefreshTokenTTL: 2 * time.Hour,
				Issuer:          "iss",
				Audience:        "aud",
			},
			Razorpay: RazorpayConfig{KeyID: "key", KeySecret: "a", WebhookSecret: "b", BaseURL: "https://api.razorpay.com/v1"},
			Donation: DonationConfig{Currency: "INR", MinAmount: decimal.NewFromInt(1), MaxAmount: decimal.NewFromInt(100), LockTTL: time.Second},
			Logging:  LoggingConfig{Level: "info"},
		}
	}

	weakHash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	strongHash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), 12)
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(*ProductionConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*ProductionConfig) {}},
		{
			name:    "missing webhook secret",
			mutate:  func(c *ProductionConfig) { c.Razorpay.WebhookSecret = "" },
			wantErr: "RAZORPAY_WEBHOOK_SECRET is required",
		},
		{
			name:    "identical secrets",
			mutate:  func(c *ProductionConfig) { c.Razorpay.WebhookSecret = c.Razorpay.KeySecret },
			wantErr: "must differ from RAZORPAY_KEY_SECRET",
		},
		{
			name:    "non-positive minimum",
			mutate:  func(c *ProductionConfig) { c.Donation.MinAmount = decimal.Zero },
			wantErr: "DONATION_MIN_AMOUNT must be positive",
		},
		{
			name:    "max below min",
			mutate:  func(c *ProductionConfig) { c.Donation.MaxAmount = decimal.NewFromFloat(0.5) },
			wantErr: "DONATION_MAX_AMOUNT must not be below DONATION_MIN_AMOUNT",
		},
		{
			name:    "mock gateway needs no key id",
			mutate:  func(c *ProductionConfig) { c.Razorpay.UseMock = true; c.Razorpay.KeyID = "" },
			wantErr: "",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *ProductionConfig) { c.JWT.SecretKey = "short" },
			wantErr: "JWT_SECRET_KEY must be at least 32 characters long",
		},
		{
			name:    "bcrypt cost out of range",
			mutate:  func(c *ProductionConfig) { c.Security.BcryptCost = 4 },
			wantErr: "BCRYPT_COST must be between 10 and 14",
		},
		{
			name:    "bootstrap hash weaker than bcrypt cost",
			mutate:  func(c *ProductionConfig) { c.Admin.BootstrapPasswordHash = string(weakHash) },
			wantErr: "ADMIN_BOOTSTRAP_PASSWORD_HASH cost 4 is below BCRYPT_COST 12",
		},
		{
			name:    "bootstrap hash at bcrypt cost",
			mutate:  func(c *ProductionConfig) { c.Admin.BootstrapPasswordHash = string(strongHash) },
			wantErr: "",
		},
		{
			name:    "bootstrap hash not bcrypt",
			mutate:  func(c *ProductionConfig) { c.Admin.BootstrapPasswordHash = "plaintext" },
			wantErr: "ADMIN_BOOTSTRAP_PASSWORD_HASH is not a bcrypt hash",
		},
		{
			name:    "whitelist entry not an ip",
			mutate:  func(c *ProductionConfig) { c.Security.IPWhitelist = []string{"10.0.0.0/8", "office"} },
			wantErr: `IP_WHITELIST entry "office" is not an IP or CIDR`,
		},
		{
			name:    "trusted proxy not an ip",
			mutate:  func(c *ProductionConfig) { c.Server.TrustedProxies = []string{"10.0.0.300"} },
			wantErr: `SERVER_TRUSTED_PROXIES entry "10.0.0.300" is not an IP or CIDR`,
		},
		{
			name:    "compression level out of range",
			mutate:  func(c *ProductionConfig) { c.Server.CompressionLevel = 9 },
			wantErr: "SERVER_COMPRESSION_LEVEL must be between -1 and 2",
		},
		{
			name: "tls with unsupported minimum version",
			mutate: func(c *ProductionConfig) {
				c.Security.TLSEnabled = true
				c.Security.TLSCertFile = "cert.pem"
				c.Security.TLSKeyFile = "key.pem"
				c.Security.TLSMinVersion = "1.0"
			},
			wantErr: "TLS_MIN_VERSION must be 1.2 or 1.3",
		},
		{
			name: "unknown access log format",
			mutate: func(c *ProductionConfig) {
				c.Logging.EnableAccessLog = true
				c.Logging.AccessLogFormat = "xml"
			},
			wantErr: "LOG_ACCESS_FORMAT must be json or combined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := ValidateProductionConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateProductionConfig_CollectsAllProblems(t *testing.T) {
	err := ValidateProductionConfig(&ProductionConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_HOST is required")
	assert.Contains(t, err.Error(), "RAZORPAY_KEY_SECRET is required")
	assert.Contains(t, err.Error(), "; ")
}
