package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/amirphl/donation-ledger/app/dto"
	businessflow "github.com/amirphl/donation-ledger/business_flow"
	"github.com/amirphl/donation-ledger/migrations"
	"github.com/amirphl/donation-ledger/repository"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

func migrateCmd(v *viper.Viper) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		Long: `Apply every embedded migration not yet recorded in schema_migrations.

Examples:
  ledgerctl migrate
  ledgerctl migrate --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			db, err := openSQL(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := cfg.commandContext()
			defer cancel()

			out := cmd.OutOrStdout()
			if dryRun {
				pending, err := migrations.Pending(ctx, db)
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Fprintln(out, "Schema is up to date")
					return nil
				}
				for _, name := range pending {
					fmt.Fprintf(out, "pending  %s\n", name)
				}
				return nil
			}

			applied, err := migrations.Apply(ctx, db)
			for _, name := range applied {
				fmt.Fprintf(out, "applied  %s\n", name)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(out, "Schema is up to date")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")
	return cmd
}

func reconcileCmd(v *viper.Viper) *cobra.Command {
	var (
		format         string
		failOnMismatch bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare campaign aggregates with donation and transaction rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !validFormat(format) {
				return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			db, err := openGorm(cfg)
			if err != nil {
				return err
			}
			defer closeGorm(db)

			ctx, cancel := cfg.commandContext()
			defer cancel()

			flow, err := newReportFlow(ctx, db, cfg, false)
			if err != nil {
				return err
			}
			report, err := flow.Reconcile(ctx)
			if err != nil {
				return err
			}
			if err := writeReport(cmd.OutOrStdout(), report, format); err != nil {
				return err
			}
			if failOnMismatch && report.MismatchCount > 0 {
				return fmt.Errorf("%d campaign(s) out of balance", report.MismatchCount)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format: table, json or yaml")
	cmd.Flags().BoolVar(&failOnMismatch, "fail-on-mismatch", false, "exit non-zero when any campaign is out of balance")
	return cmd
}

func exportCmd(v *viper.Viper) *cobra.Command {
	var (
		campaignID uint
		upload     bool
		outDir     string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a campaign ledger workbook, optionally archiving it to S3",
		Long: `Export the full transaction ledger of one campaign as XLSX.

Examples:
  ledgerctl export --campaign 42
  ledgerctl export --campaign 42 --upload --out /tmp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if campaignID == 0 {
				return errors.New("--campaign is required")
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			db, err := openGorm(cfg)
			if err != nil {
				return err
			}
			defer closeGorm(db)

			ctx, cancel := cfg.commandContext()
			defer cancel()

			flow, err := newReportFlow(ctx, db, cfg, upload)
			if err != nil {
				return err
			}
			result, err := flow.ExportCampaignLedger(ctx, &dto.ExportLedgerRequest{
				CampaignID: campaignID,
				Upload:     upload,
			}, businessflow.NewClientMetadata("", "ledgerctl"))
			if err != nil {
				return err
			}

			path := filepath.Join(outDir, result.FileName)
			if err := os.WriteFile(path, result.Content, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wrote %s (%d rows)\n", path, result.Rows)
			if result.ObjectURL != "" {
				fmt.Fprintf(out, "archived to %s\n", result.ObjectURL)
			}
			return nil
		},
	}

	cmd.Flags().UintVar(&campaignID, "campaign", 0, "campaign id")
	cmd.Flags().BoolVar(&upload, "upload", false, "also archive the workbook to the configured S3 bucket")
	cmd.Flags().StringVar(&outDir, "out", ".", "directory to write the workbook into")
	return cmd
}

func adminCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage operator accounts",
	}
	cmd.AddCommand(adminCreateCmd(v))
	return cmd
}

func adminCreateCmd(v *viper.Viper) *cobra.Command {
	var (
		username string
		cost     int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account; the password is read from stdin",
		Long: `Create an active admin. The password is the first line of stdin.

Examples:
  echo "$ADMIN_PASSWORD" | ledgerctl admin create --username treasurer`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(username) == "" {
				return errors.New("--username is required")
			}
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			hash, err := hashPassword(password, cost, cfg.Security.BcryptCost)
			if err != nil {
				return err
			}

			db, err := openGorm(cfg)
			if err != nil {
				return err
			}
			defer closeGorm(db)

			ctx, cancel := cfg.commandContext()
			defer cancel()

			// token issuance is not needed to create accounts
			flow := businessflow.NewAdminAuthFlow(repository.NewAdminRepository(db), repository.NewAuditLogRepository(db), nil)
			admin, created, err := flow.EnsureAdmin(ctx, username, hash)
			if err != nil {
				return err
			}
			if !created {
				return fmt.Errorf("admin %q already exists (id=%d)", admin.Username, admin.ID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %q (id=%d)\n", admin.Username, admin.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "admin username")
	cmd.Flags().IntVar(&cost, "bcrypt-cost", 0, "bcrypt cost; defaults to security.bcrypt_cost (BCRYPT_COST) and may not be lower")
	return cmd
}

// hashPassword hashes at cost, or at the configured minimum when cost is zero.
// A cost below the configured minimum is rejected so the service accepts the hash.
func hashPassword(password string, cost, minCost int) (string, error) {
	if cost == 0 {
		cost = minCost
	}
	if cost < minCost {
		return "", fmt.Errorf("--bcrypt-cost %d is below the configured minimum %d", cost, minCost)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// readPassword takes the first line of r. Passwords shorter than 8 characters are rejected.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	return password, nil
}
