package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/donation-ledger/app/dto"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

func sampleReport() *dto.ReconciliationReport {
	return &dto.ReconciliationReport{
		GeneratedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		CampaignsCount: 2,
		MismatchCount:  1,
		Campaigns: []dto.CampaignReconciliationDTO{
			{
				CampaignID:            1,
				Title:                 "Flood relief",
				RaisedAmount:          decimal.NewFromInt(5000),
				CompletedDonationsSum: decimal.NewFromInt(5000),
				DonationLedgerSum:     decimal.NewFromInt(5000),
				DisbursedAmount:       decimal.NewFromInt(2000),
				DisbursementLedgerSum: decimal.NewFromInt(2000),
				Consistent:            true,
			},
			{
				CampaignID:            2,
				Title:                 "School meals",
				RaisedAmount:          decimal.NewFromInt(900),
				CompletedDonationsSum: decimal.Zero,
				Issues:                []string{"raised 900.00 != completed donations 0.00"},
			},
		},
	}
}

func TestWriteReportTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, sampleReport(), formatTable))

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.True(t, strings.HasPrefix(lines[0], "CAMPAIGN"))
	assert.Contains(t, lines[1], "Flood relief")
	assert.Contains(t, lines[1], "5000.00")
	assert.True(t, strings.HasSuffix(lines[1], "ok"))
	assert.Contains(t, lines[2], "MISMATCH: raised 900.00 != completed donations 0.00")
	assert.Contains(t, out, "2 campaign(s), 1 out of balance, generated 2026-03-01T12:00:00Z")
}

func TestWriteReportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, sampleReport(), formatJSON))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, float64(1), decoded["mismatch_count"])
	campaigns := decoded["campaigns"].([]any)
	require.Len(t, campaigns, 2)
	assert.Equal(t, "5000", campaigns[0].(map[string]any)["raised_amount"])
}

func TestWriteReportYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, sampleReport(), formatYAML))

	var decoded struct {
		MismatchCount int `yaml:"mismatch_count"`
		Campaigns     []struct {
			CampaignID   uint     `yaml:"campaign_id"`
			RaisedAmount string   `yaml:"raised_amount"`
			Consistent   bool     `yaml:"consistent"`
			Issues       []string `yaml:"issues"`
		} `yaml:"campaigns"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 1, decoded.MismatchCount)
	require.Len(t, decoded.Campaigns, 2)
	assert.Equal(t, "900", decoded.Campaigns[1].RaisedAmount)
	assert.False(t, decoded.Campaigns[1].Consistent)
	assert.Len(t, decoded.Campaigns[1].Issues, 1)
	assert.NotContains(t, buf.String(), "\t")
}

func TestWriteReportUnknownFormat(t *testing.T) {
	assert.False(t, validFormat("csv"))
	assert.Error(t, writeReport(&bytes.Buffer{}, sampleReport(), "csv"))
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledgerctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  host: yaml-host
  name: ledger
  user: ops
  ssl_mode: disable
blob:
  bucket: ledger-archive
timeout: 30s
`), 0o600))

	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PASSWORD", "s3cret")

	v := viper.New()
	v.Set("config", path)
	cfg, err := loadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "ledger", cfg.Database.Name)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "ledger-archive", cfg.Blob.Bucket)
	assert.Equal(t, "ap-south-1", cfg.Blob.Region)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 12, cfg.Security.BcryptCost)
	assert.Equal(t, "host=db.internal port=5432 user=ops dbname=ledger sslmode=disable password=s3cret", cfg.dsn())
}

func TestLoadConfigBcryptCost(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledgerctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("security:\n  bcrypt_cost: 11\n"), 0o600))

	v := viper.New()
	v.Set("config", path)
	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 11, cfg.Security.BcryptCost)

	t.Setenv("BCRYPT_COST", "13")
	v = viper.New()
	v.Set("config", path)
	cfg, err = loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 13, cfg.Security.BcryptCost)

	t.Setenv("BCRYPT_COST", "4")
	v = viper.New()
	v.Set("config", path)
	_, err = loadConfig(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BCRYPT_COST")
}

func TestHashPasswordHonoursConfiguredCost(t *testing.T) {
	hash, err := hashPassword("correct-horse", 0, 10)
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 10, cost)

	hash, err = hashPassword("correct-horse", 11, 10)
	require.NoError(t, err)
	cost, err = bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 11, cost)

	_, err = hashPassword("correct-horse", 8, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below the configured minimum 10")
}

func TestLoadConfigMissingFile(t *testing.T) {
	v := viper.New()
	v.Set("config", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := loadConfig(v)
	assert.Error(t, err)
}

func TestReadPassword(t *testing.T) {
	pw, err := readPassword(strings.NewReader("correct-horse\nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "correct-horse", pw)

	pw, err = readPassword(strings.NewReader("no-newline-at-end"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline-at-end", pw)

	_, err = readPassword(strings.NewReader("short\n"))
	assert.Error(t, err)
}

func TestCommandsValidateFlagsBeforeConnecting(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"ReconcileBadFormat", []string{"reconcile", "--format", "csv"}, "unknown format"},
		{"ExportWithoutCampaign", []string{"export"}, "--campaign is required"},
		{"AdminWithoutUsername", []string{"admin", "create"}, "--username is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := newRootCmd(viper.New())
			cmd.SetArgs(tc.args)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
