package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/curtbushko/zoom-to-youtube/internal/config"
	"github.com/curtbushko/zoom-to-youtube/internal/ledger"
)

// createLedgerCommand creates the ledger subcommand
func createLedgerCommand() *cobra.Command {
	var pending bool

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "List processed recordings",
		Long:  "List the ledger records with their status, step timestamps, failure count and local artifact size",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadLenient(resolveConfigPath())
			if err != nil {
				return err
			}

			store, err := ledger.Open(cfg.Ledger)
			if err != nil {
				return fmt.Errorf("failed to open ledger: %w", err)
			}
			defer store.Close()

			records, err := store.List(context.Background())
			if err != nil {
				return fmt.Errorf("failed to read ledger: %w", err)
			}

			if pending {
				records = pendingRecords(records)
			}
			if len(records) == 0 {
				cmd.Printf("No records in %s\n", cfg.Ledger.Path)
				return nil
			}

			return writeRecords(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().BoolVar(&pending, "pending", false, "only show records that have not finished every step")
	return cmd
}

// pendingRecords keeps records that a later run could still advance
func pendingRecords(records []ledger.Record) []ledger.Record {
	var result []ledger.Record
	for _, r := range records {
		if !r.IsComplete() && r.Status != ledger.StatusSkipped {
			result = append(result, r)
		}
	}
	return result
}

func writeRecords(out io.Writer, records []ledger.Record) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTITLE\tDOWNLOADED\tUPLOADED\tNOTIFIED\tFAILURES\tSIZE\tURL\tERROR")

	for _, r := range records {
		status := string(r.Status)
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			shortItemID(r.ItemID),
			status,
			clip(r.Title, 40),
			since(r.DownloadedAt),
			since(r.UploadedAt),
			since(r.NotifiedAt),
			r.FailureCount,
			artifactSize(r.LocalPath),
			orDash(r.RemoteURL),
			orDash(clip(r.ErrorMessage, 60)),
		)
	}
	return w.Flush()
}

func shortItemID(id string) string {
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}

func since(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func artifactSize(path string) string {
	if path == "" {
		return "-"
	}
	info, err := os.Stat(path)
	if err != nil {
		return "deleted"
	}
	return humanize.Bytes(uint64(info.Size()))
}

func clip(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
