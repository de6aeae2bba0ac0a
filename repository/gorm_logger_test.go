package repository_test

import (
	"bytes"
	"context"
	"log"
	"testing"
	"time"

	"github.com/amirphl/donation-ledger/repository"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"
)

func TestGormLogLevel(t *testing.T) {
	cases := map[string]logger.LogLevel{
		"debug": logger.Info,
		"info":  logger.Warn,
		"warn":  logger.Warn,
		"error": logger.Error,
		"":      logger.Warn,
	}
	for level, want := range cases {
		assert.Equal(t, want, repository.GormLogLevel(level), level)
	}
}

func TestGormLoggerReportsSlowQueries(t *testing.T) {
	var buf bytes.Buffer
	l := repository.NewGormLogger(log.New(&buf, "", 0), "info", 50*time.Millisecond)
	ctx := context.Background()

	l.Trace(ctx, time.Now().Add(-10*time.Millisecond), func() (string, int64) {
		return "SELECT 1", 1
	}, nil)
	assert.Empty(t, buf.String())

	l.Trace(ctx, time.Now().Add(-200*time.Millisecond), func() (string, int64) {
		return "SELECT * FROM campaigns", 3
	}, nil)
	assert.Contains(t, buf.String(), "SLOW SQL >= 50ms")
	assert.Contains(t, buf.String(), "SELECT * FROM campaigns")

	buf.Reset()
	quiet := repository.NewGormLogger(log.New(&buf, "", 0), "info", 0)
	quiet.Trace(ctx, time.Now().Add(-time.Second), func() (string, int64) {
		return "SELECT pg_sleep(1)", 1
	}, nil)
	assert.Empty(t, buf.String())
}
