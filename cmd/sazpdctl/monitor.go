package main

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/privacyshield/sazpd-console/pkg/monitoring"
)

const monitoringPath = apiPrefix + "/monitoring"

// monitorConfig mirrors the monitoring configuration body.
type monitorConfig struct {
	RealTimeEnabled *bool                   `json:"realTimeEnabled,omitempty"`
	Intervals       map[monitoring.Kind]int `json:"intervals,omitempty"`
}

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Read monitoring snapshots and tune polling",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "snapshots [kind]",
		Short: "Show the latest snapshot of every kind, or one kind in full",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			if len(args) == 1 {
				var v monitoring.View
				if err := client.getJSON(monitoringPath+"/snapshots/"+url.PathEscape(args[0]), nil, &v); err != nil {
					return fmt.Errorf("failed to get %s snapshot: %w", args[0], err)
				}
				if structured() {
					return printOutput(cmd.OutOrStdout(), v)
				}
				printViews(cmd.OutOrStdout(), []monitoring.View{v})
				return printJSON(cmd.OutOrStdout(), v.Data)
			}

			var resp struct {
				RealTimeEnabled bool              `json:"realTimeEnabled"`
				Snapshots       []monitoring.View `json:"snapshots"`
			}
			if err := client.getJSON(monitoringPath+"/snapshots", nil, &resp); err != nil {
				return fmt.Errorf("failed to list snapshots: %w", err)
			}
			if structured() {
				return printOutput(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Real-time monitoring: %s\n\n", onOff(resp.RealTimeEnabled))
			printViews(cmd.OutOrStdout(), resp.Snapshots)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "refresh [kind]",
		Short: "Poll one kind, or every kind, immediately",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			if len(args) == 1 {
				var v monitoring.View
				if err := client.postJSON(monitoringPath+"/snapshots/"+url.PathEscape(args[0])+":refresh", nil, &v); err != nil {
					return fmt.Errorf("failed to refresh %s: %w", args[0], err)
				}
				if structured() {
					return printOutput(cmd.OutOrStdout(), v)
				}
				printViews(cmd.OutOrStdout(), []monitoring.View{v})
				return nil
			}

			var resp struct {
				Snapshots []monitoring.View `json:"snapshots"`
			}
			if err := client.postJSON(monitoringPath+"/refresh", nil, &resp); err != nil {
				return fmt.Errorf("failed to refresh: %w", err)
			}
			if structured() {
				return printOutput(cmd.OutOrStdout(), resp)
			}
			printViews(cmd.OutOrStdout(), resp.Snapshots)
			return nil
		},
	})

	cmd.AddCommand(newMonitorConfigCmd())
	return cmd
}

func newMonitorConfigCmd() *cobra.Command {
	var (
		enable    bool
		disable   bool
		intervals []string
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the monitoring configuration",
		Long: `Show the monitoring configuration, or change it with flags.

Intervals are given as kind=seconds and must be at least one second:

  sazpdctl monitor config --interval health=10 --interval alerts=5 --disable`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if enable && disable {
				return fmt.Errorf("--enable and --disable are mutually exclusive")
			}

			client := newClient()
			var cfg monitorConfig
			if !enable && !disable && len(intervals) == 0 {
				if err := client.getJSON(monitoringPath+"/config", nil, &cfg); err != nil {
					return fmt.Errorf("failed to get config: %w", err)
				}
				return printMonitorConfig(cmd.OutOrStdout(), cfg)
			}

			update, err := parseMonitorUpdate(enable, disable, intervals)
			if err != nil {
				return err
			}
			if err := client.putJSON(monitoringPath+"/config", update, &cfg); err != nil {
				return fmt.Errorf("failed to update config: %w", err)
			}
			return printMonitorConfig(cmd.OutOrStdout(), cfg)
		},
	}
	cmd.Flags().BoolVar(&enable, "enable", false, "Turn real-time monitoring on")
	cmd.Flags().BoolVar(&disable, "disable", false, "Turn real-time monitoring off")
	cmd.Flags().StringArrayVar(&intervals, "interval", nil, "Polling interval as kind=seconds (repeatable)")
	return cmd
}

// parseMonitorUpdate builds a config update from command flags.
func parseMonitorUpdate(enable, disable bool, intervals []string) (monitorConfig, error) {
	var update monitorConfig
	if enable || disable {
		on := enable
		update.RealTimeEnabled = &on
	}
	if len(intervals) > 0 {
		update.Intervals = make(map[monitoring.Kind]int, len(intervals))
	}
	for _, kv := range intervals {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return monitorConfig{}, fmt.Errorf("invalid interval %q (expected kind=seconds)", kv)
		}
		kind := monitoring.Kind(strings.TrimSpace(k))
		if !kind.Valid() {
			return monitorConfig{}, fmt.Errorf("unknown monitoring kind %q", kind)
		}
		secs, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || secs <= 0 {
			return monitorConfig{}, fmt.Errorf("invalid interval for %s: %q", kind, v)
		}
		update.Intervals[kind] = secs
	}
	return update, nil
}

func printMonitorConfig(w io.Writer, cfg monitorConfig) error {
	if structured() {
		return printOutput(w, cfg)
	}
	enabled := cfg.RealTimeEnabled != nil && *cfg.RealTimeEnabled
	fmt.Fprintf(w, "Real-time monitoring: %s\n\n", onOff(enabled))

	kinds := make([]string, 0, len(cfg.Intervals))
	for k := range cfg.Intervals {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	rows := make([][]string, 0, len(kinds))
	for _, k := range kinds {
		rows = append(rows, []string{k, strconv.Itoa(cfg.Intervals[monitoring.Kind(k)]) + "s"})
	}
	printTable(w, []string{"Kind", "Interval"}, rows)
	return nil
}

func printViews(w io.Writer, views []monitoring.View) {
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		fetched := "never"
		if v.FetchedAt != nil {
			fetched = formatTime(v.FetchedAt)
		}
		rows = append(rows, []string{
			string(v.Kind),
			fetched,
			yesNo(v.IsStale),
			strconv.Itoa(v.IntervalSeconds) + "s",
			strconv.Itoa(v.ConsecutiveFailures),
			truncate(v.LastError, 50),
		})
	}
	printTable(w, []string{"Kind", "Fetched", "Stale", "Interval", "Failures", "Last Error"}, rows)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
