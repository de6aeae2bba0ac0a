package repository

import (
	"log"
	"time"

	"gorm.io/gorm/logger"
)

// NewGormLogger maps the application log level onto gorm's and reports queries
// slower than slowThreshold. A zero threshold disables slow-query logging.
func NewGormLogger(out *log.Logger, level string, slowThreshold time.Duration) logger.Interface {
	return logger.New(out, logger.Config{
		SlowThreshold:             slowThreshold,
		LogLevel:                  GormLogLevel(level),
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
	})
}

// GormLogLevel translates debug, info, warn and error. SQL tracing is only
// enabled at debug; slow queries are logged at warn.
func GormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "error":
		return logger.Error
	default:
		return logger.Warn
	}
}
