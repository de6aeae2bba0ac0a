// Package scheduler runs periodic background jobs against the ledger
package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/amirphl/donation-ledger/app/dto"
	"github.com/amirphl/donation-ledger/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	ledgerMismatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_audit_mismatched_campaigns",
		Help: "Campaigns whose stored aggregates disagree with their ledger rows at the last audit",
	})

	ledgerAuditRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_audit_runs_total",
		Help: "Ledger audit runs by result",
	}, []string{"result"})

	ledgerAuditLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_audit_last_success_timestamp_seconds",
		Help: "Unix time of the last audit that completed",
	})
)

// Reconciler produces the ledger consistency report
type Reconciler interface {
	Reconcile(ctx context.Context) (*dto.ReconciliationReport, error)
}

// LedgerAuditScheduler periodically checks that every campaign's raised and
// disbursed aggregates match the donation and transaction rows behind them
type LedgerAuditScheduler struct {
	reconciler Reconciler
	logger     *log.Logger
	interval   time.Duration

	mu   sync.Mutex
	last *dto.ReconciliationReport
}

func NewLedgerAuditScheduler(reconciler Reconciler, logger *log.Logger, interval time.Duration) *LedgerAuditScheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	return &LedgerAuditScheduler{
		reconciler: reconciler,
		logger:     logger,
		interval:   interval,
	}
}

// NewFileLogger returns a logger writing to stdout and, when the audit log is
// enabled, to AuditLogPath rotated with the configured size, backup and age limits.
func NewFileLogger(cfg config.LoggingConfig, prefix string) *log.Logger {
	var w io.Writer = os.Stdout
	if file := auditLogFile(cfg); file != nil {
		w = io.MultiWriter(os.Stdout, file)
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

func auditLogFile(cfg config.LoggingConfig) *lumberjack.Logger {
	if !cfg.EnableAuditLog || cfg.AuditLogPath == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   cfg.AuditLogPath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
}

// Start launches the audit loop in a background goroutine and returns a stop function
func (s *LedgerAuditScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runAndLog(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runAndLog(ctx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (s *LedgerAuditScheduler) runAndLog(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Printf("ledger audit: run failed: %v", err)
	}
}

// RunOnce performs a single audit and updates the exported gauges
func (s *LedgerAuditScheduler) RunOnce(ctx context.Context) (*dto.ReconciliationReport, error) {
	report, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		ledgerAuditRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	ledgerMismatches.Set(float64(report.MismatchCount))
	ledgerAuditLastSuccess.Set(float64(report.GeneratedAt.Unix()))

	if report.MismatchCount == 0 {
		ledgerAuditRuns.WithLabelValues("consistent").Inc()
		s.logger.Printf("ledger audit: %d campaigns consistent", report.CampaignsCount)
	} else {
		ledgerAuditRuns.WithLabelValues("mismatch").Inc()
		for _, c := range report.Campaigns {
			if c.Consistent {
				continue
			}
			s.logger.Printf("ledger audit: campaign id=%d out of balance: %v", c.CampaignID, c.Issues)
		}
	}

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
	return report, nil
}

// LastReport returns the most recent successful audit, or nil before the first one
func (s *LedgerAuditScheduler) LastReport() *dto.ReconciliationReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
