package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/amirphl/donation-ledger/app/services"
	businessflow "github.com/amirphl/donation-ledger/business_flow"
	"github.com/amirphl/donation-ledger/repository"
	_ "github.com/lib/pq" // database/sql driver for migrations
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// cliConfig is the subset of the service configuration ledgerctl needs.
// Values come from the YAML file, overridden by the service's environment variables.
type cliConfig struct {
	Database struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Name     string `mapstructure:"name"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		SSLMode  string `mapstructure:"ssl_mode"`
	} `mapstructure:"database"`
	Blob struct {
		Bucket string `mapstructure:"bucket"`
		Region string `mapstructure:"region"`
		Prefix string `mapstructure:"prefix"`
	} `mapstructure:"blob"`
	Security struct {
		BcryptCost int `mapstructure:"bcrypt_cost"`
	} `mapstructure:"security"`
	Timeout time.Duration `mapstructure:"timeout"`
}

var envBindings = map[string]string{
	"database.host":        "DB_HOST",
	"database.port":        "DB_PORT",
	"database.name":        "DB_NAME",
	"database.user":        "DB_USER",
	"database.password":    "DB_PASSWORD",
	"database.ssl_mode":    "DB_SSL_MODE",
	"blob.bucket":          "BLOB_S3_BUCKET",
	"blob.region":          "BLOB_S3_REGION",
	"blob.prefix":          "BLOB_S3_PREFIX",
	"security.bcrypt_cost": "BCRYPT_COST",
}

func loadConfig(v *viper.Viper) (*cliConfig, error) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "postgres")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("blob.region", "ap-south-1")
	v.SetDefault("blob.prefix", "donation-ledger")
	v.SetDefault("security.bcrypt_cost", 12)
	v.SetDefault("timeout", 2*time.Minute)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("ledgerctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg cliConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Database.Host == "" || cfg.Database.Name == "" || cfg.Database.User == "" {
		return nil, errors.New("database host, name and user are required")
	}
	if cfg.Security.BcryptCost < 10 || cfg.Security.BcryptCost > 14 {
		return nil, fmt.Errorf("security.bcrypt_cost (BCRYPT_COST) must be between 10 and 14, got %d", cfg.Security.BcryptCost)
	}
	return &cfg, nil
}

func (c *cliConfig) dsn() string {
	parts := []string{
		"host=" + c.Database.Host,
		fmt.Sprintf("port=%d", c.Database.Port),
		"user=" + c.Database.User,
		"dbname=" + c.Database.Name,
		"sslmode=" + c.Database.SSLMode,
	}
	if c.Database.Password != "" {
		parts = append(parts, "password="+c.Database.Password)
	}
	return strings.Join(parts, " ")
}

func (c *cliConfig) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.Timeout)
}

func openSQL(cfg *cliConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func openGorm(cfg *cliConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.dsn()), &gorm.Config{
		TranslateError: true,
		Logger:         repository.NewGormLogger(log.New(os.Stderr, "", log.LstdFlags), "warn", time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func closeGorm(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// newReportFlow wires the ledger report flow on Postgres. uploads controls
// whether an S3 blob store is attached.
func newReportFlow(ctx context.Context, db *gorm.DB, cfg *cliConfig, uploads bool) (businessflow.LedgerReportFlow, error) {
	var blobStore services.BlobStore
	if uploads {
		if cfg.Blob.Bucket == "" {
			return nil, errors.New("blob.bucket (BLOB_S3_BUCKET) is required for --upload")
		}
		store, err := services.NewS3BlobStore(ctx, cfg.Blob.Region, cfg.Blob.Bucket, cfg.Blob.Prefix)
		if err != nil {
			return nil, err
		}
		blobStore = store
	}

	transactionRepo := repository.NewTransactionRepository(db)
	return businessflow.NewLedgerReportFlow(
		repository.NewCampaignRepository(db),
		repository.NewDonationRepository(db),
		transactionRepo,
		repository.NewAuditLogRepository(db),
		repository.NewTransactor(db),
		businessflow.NewTransactionLedger(transactionRepo),
		blobStore,
	), nil
}
