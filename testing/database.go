// Package testing provides test utilities: Postgres-backed test databases and an in-memory repository set
package testing

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/amirphl/donation-ledger/migrations"
	_ "github.com/lib/pq" // PostgreSQL driver for database/sql
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDBConfig holds configuration for test database connections
type TestDBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	SSLMode  string
}

// GetTestDBConfig loads test database configuration from environment variables
func GetTestDBConfig() *TestDBConfig {
	config := &TestDBConfig{
		Host:     getEnv("TEST_DB_HOST", "localhost"),
		Port:     getEnvAsInt("TEST_DB_PORT", 5432),
		User:     getEnv("TEST_DB_USER", "postgres"),
		Password: getEnv("TEST_DB_PASSWORD", "postgres"),
		SSLMode:  getEnv("TEST_DB_SSL_MODE", "disable"),
	}
	return config
}

// TestDB represents a test database instance
type TestDB struct {
	DB     *gorm.DB
	Name   string
	config *TestDBConfig
}

// SetupTestDB creates a new test database with a unique name and runs migrations
func SetupTestDB() (*TestDB, error) {
	config := GetTestDBConfig()

	// Generate unique database name using timestamp and random number
	dbName := fmt.Sprintf("ledger_test_%d_%d", time.Now().Unix(), rand.Intn(10000))

	// Connect to PostgreSQL server (without specific database)
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.SSLMode)

	adminDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// Create test database
	err = adminDB.Exec(fmt.Sprintf("CREATE DATABASE %s", dbName)).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create test database %s: %w", dbName, err)
	}

	// Close admin connection
	sqlDB, _ := adminDB.DB()
	sqlDB.Close()

	// Connect to the new test database
	testDSN := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, dbName, config.SSLMode)

	testDB, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database %s: %w", dbName, err)
	}

	// Run the embedded SQL migrations
	if err := runTestMigrations(testDSN, dbName); err != nil {
		// Clean up on migration failure
		testDB.Exec("DROP DATABASE IF EXISTS " + dbName)
		return nil, fmt.Errorf("failed to run migrations on test database %s: %w", dbName, err)
	}

	return &TestDB{
		DB:     testDB,
		Name:   dbName,
		config: config,
	}, nil
}

// TeardownTestDB drops the test database and closes connections
func (tdb *TestDB) TeardownTestDB() error {
	if tdb.DB == nil {
		return nil
	}

	// Close test database connection
	sqlDB, err := tdb.DB.DB()
	if err == nil {
		sqlDB.Close()
	}

	// Connect to PostgreSQL server to drop the test database
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s sslmode=%s",
		tdb.config.Host, tdb.config.Port, tdb.config.User, tdb.config.Password, tdb.config.SSLMode)

	adminDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Printf("Warning: failed to connect to PostgreSQL for cleanup: %v", err)
		return err
	}
	defer func() {
		sqlDB, _ := adminDB.DB()
		sqlDB.Close()
	}()

	// Force disconnect all connections to the test database
	err = adminDB.Exec(fmt.Sprintf(
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = '%s' AND pid <> pg_backend_pid()",
		tdb.Name)).Error
	if err != nil {
		log.Printf("Warning: failed to terminate connections to test database %s: %v", tdb.Name, err)
	}

	// Drop the test database
	err = adminDB.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s", tdb.Name)).Error
	if err != nil {
		log.Printf("Warning: failed to drop test database %s: %v", tdb.Name, err)
		return err
	}

	return nil
}

// ClearAllTables removes all data from tables while preserving structure
func (tdb *TestDB) ClearAllTables() error {
	tables := []string{
		"audit_log",
		"transactions",
		"donations",
		"campaigns",
		"admins",
	}

	for _, table := range tables {
		if err := tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)).Error; err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// runTestMigrations applies the embedded SQL migrations through database/sql
func runTestMigrations(databaseURL, dbName string) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	applied, err := migrations.Apply(context.Background(), db)
	if err != nil {
		return err
	}

	log.Printf("Successfully applied %d migrations to test database %s", len(applied), dbName)
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// DBAvailable reports whether a Postgres server was configured for tests
func DBAvailable() bool {
	return os.Getenv("TEST_DB_HOST") != ""
}

// TestWithDB is a helper function that sets up a test database, runs the test function, and cleans up
func TestWithDB(testFunc func(*TestDB) error) error {
	testDB, err := SetupTestDB()
	if err != nil {
		return fmt.Errorf("failed to setup test database: %w", err)
	}
	defer func() {
		if cleanupErr := testDB.TeardownTestDB(); cleanupErr != nil {
			log.Printf("Warning: failed to cleanup test database: %v", cleanupErr)
		}
	}()

	return testFunc(testDB)
}

// CreateTestContext creates a context for testing
func CreateTestContext() context.Context {
	return context.Background()
}
