package main

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/spf13/cobra"
)

var requireReady bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health and readiness",
	Long: `Check server liveness and readiness.

With --require-ready the command fails unless the server reports ready, which
makes it usable as a container health probe.`,
	RunE: runHealth,
}

func init() {
	healthCmd.Flags().BoolVar(&requireReady, "require-ready", false, "Exit non-zero unless the server is ready")
}

// readyResponse mirrors the /readyz body.
type readyResponse struct {
	Status     string                    `json:"status"`
	Components map[string]map[string]any `json:"components"`
}

func runHealth(cmd *cobra.Command, args []string) error {
	client := newClient()
	out := cmd.OutOrStdout()

	var healthResp map[string]any
	if _, err := client.probe("/healthz", &healthResp); err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}

	var readyResp readyResponse
	code, err := client.probe("/readyz", &readyResp)
	if err != nil {
		readyResp = readyResponse{Status: "unknown"}
	}

	if structured() {
		if err := printOutput(out, map[string]any{
			"health":    healthResp,
			"readiness": readyResp,
		}); err != nil {
			return err
		}
	} else {
		status, _ := healthResp["status"].(string)
		uptime, _ := healthResp["uptime"].(string)

		rows := [][]string{
			{"Liveness", status},
			{"Uptime", uptime},
			{"Readiness", readyResp.Status},
		}
		names := make([]string, 0, len(readyResp.Components))
		for name := range readyResp.Components {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			s, _ := readyResp.Components[name]["status"].(string)
			if s == "" {
				s = "-"
			}
			rows = append(rows, []string{"  " + name, s})
		}
		printTable(out, []string{"Check", "Status"}, rows)
	}

	if requireReady && code != http.StatusOK {
		return fmt.Errorf("server not ready: %s", readyResp.Status)
	}
	return nil
}
