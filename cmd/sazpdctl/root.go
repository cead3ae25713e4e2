package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	outputFmt string
	actorID   string
)

var rootCmd = &cobra.Command{
	Use:   "sazpdctl",
	Short: "CLI for the compliance console",
	Long: `sazpdctl drives the compliance console API.

It starts and inspects compliance test sessions, reads and tunes monitoring
snapshots, acts on alerts and reads or exports the audit trail.

Every mutating command is recorded in the audit trail under the actor given
by --actor (default: $SAZPD_ACTOR, then $USER).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOrDefault("SAZPD_SERVER", "http://localhost:8080"), "Console server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&actorID, "actor", envOrDefault("SAZPD_ACTOR", os.Getenv("USER")), "Actor recorded in the audit trail")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(newTestCmd())
	rootCmd.AddCommand(newMonitorCmd())
	rootCmd.AddCommand(newAlertsCmd())
	rootCmd.AddCommand(newAuditCmd())
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
