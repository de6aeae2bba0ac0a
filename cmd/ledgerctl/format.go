package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/amirphl/donation-ledger/app/dto"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validFormat(format string) bool {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return true
	}
	return false
}

func writeReport(w io.Writer, report *dto.ReconciliationReport, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	case formatTable:
		return writeReportTable(w, report)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func writeReportTable(w io.Writer, report *dto.ReconciliationReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CAMPAIGN\tTITLE\tRAISED\tDONATIONS\tDISBURSED\tPAYOUTS\tSTATUS")
	for _, c := range report.Campaigns {
		status := "ok"
		if !c.Consistent {
			status = "MISMATCH: " + strings.Join(c.Issues, "; ")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.CampaignID,
			c.Title,
			c.RaisedAmount.StringFixed(2),
			c.CompletedDonationsSum.StringFixed(2),
			c.DisbursedAmount.StringFixed(2),
			c.DisbursementLedgerSum.StringFixed(2),
			status,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d campaign(s), %d out of balance, generated %s\n",
		report.CampaignsCount, report.MismatchCount, report.GeneratedAt.UTC().Format(time.RFC3339))
	return err
}
