package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/uhyunpark/obmonitor/pkg/analyzer"
	"github.com/uhyunpark/obmonitor/pkg/journal"
)

func newRecentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recent events, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, err := resolveAccount(cmd)
			if err != nil {
				return err
			}
			n, _ := cmd.Flags().GetUint64("n")
			records, err := apiClient(cmd).Recent(cmd.Context(), addr, n)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No events recorded yet.")
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range records {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			return nil
		},
	}
	addAccountFlags(cmd)
	cmd.Flags().Uint64("n", 10, "Number of events")
	return cmd
}

// newStatsCommand analyzes the raw region locally so the report does not
// depend on the node's analyzer version.
func newStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print aggregate statistics for an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, err := resolveAccount(cmd)
			if err != nil {
				return err
			}
			c := apiClient(cmd)
			region, err := c.Raw(cmd.Context(), addr)
			if err != nil {
				return err
			}
			rep, err := analyzer.AnalyzeAccount(region)
			if err != nil {
				return err
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}

			n, _ := cmd.Flags().GetUint64("recent")
			recent, err := c.Recent(cmd.Context(), addr, n)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account: %s\n\n", addr.Hex())
			return analyzer.Render(cmd.OutOrStdout(), rep, recent)
		},
	}
	addAccountFlags(cmd)
	cmd.Flags().Bool("json", false, "Print the report as JSON")
	cmd.Flags().Uint64("recent", 5, "Number of recent events to list")
	return cmd
}

func newExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy an account's records into a SQLite database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, err := resolveAccount(cmd)
			if err != nil {
				return err
			}
			region, err := apiClient(cmd).Raw(cmd.Context(), addr)
			if err != nil {
				return err
			}

			path, _ := cmd.Flags().GetString("db")
			j, err := journal.NewSQLite(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer j.Close()

			n, err := j.ExportRegion(cmd.Context(), addr, region, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d new records from %s to %s\n", n, addr.Hex(), path)
			return nil
		},
	}
	addAccountFlags(cmd)
	cmd.Flags().String("db", "monitor.db", "SQLite database path")
	return cmd
}
