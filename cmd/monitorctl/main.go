package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/uhyunpark/obmonitor/pkg/client"
)

func main() {
	if err := newRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newRoot constructs the monitorctl command tree.
func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "monitorctl",
		Short:         "Record and inspect order-book events on a monitor node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("api", envOr("OBM_API", "http://localhost:8080"), "Node API base URL")

	root.AddCommand(
		newKeygenCommand(),
		newInitCommand(),
		newRecordCommand(),
		newAccountCommand(),
		newRecentCommand(),
		newStatsCommand(),
		newExportCommand(),
	)
	return root
}

func apiClient(cmd *cobra.Command) *client.Client {
	base, _ := cmd.Flags().GetString("api")
	return client.New(base)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
