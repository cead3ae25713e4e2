package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/privacyshield/sazpd-console/pkg/alerts"
)

const alertsPath = apiPrefix + "/alerts"

func newAlertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List and act on alerts",
	}

	var (
		severity        string
		includeResolved bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List alerts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if severity != "" {
				q.Set("severity", severity)
			}
			if includeResolved {
				q.Set("includeResolved", "true")
			}

			var resp alerts.ListResult
			if err := newClient().getJSON(alertsPath, q, &resp); err != nil {
				return fmt.Errorf("failed to list alerts: %w", err)
			}
			if structured() {
				return printOutput(cmd.OutOrStdout(), resp)
			}

			out := cmd.OutOrStdout()
			s := resp.Summary
			fmt.Fprintf(out, "Critical: %d  Warning: %d  Info: %d  Unacknowledged: %d\n\n",
				s.Critical, s.Warning, s.Info, s.Unacknowledged)

			rows := make([][]string, 0, len(resp.Alerts))
			for _, a := range resp.Alerts {
				rows = append(rows, []string{
					a.ID,
					string(a.Severity),
					string(a.Source),
					yesNo(a.Acknowledged),
					yesNo(a.Resolved),
					formatTime(&a.CreatedAt),
					truncate(a.Message, 60),
				})
			}
			printTable(out, []string{"ID", "Severity", "Source", "Acked", "Resolved", "Created", "Message"}, rows)
			return nil
		},
	}
	list.Flags().StringVar(&severity, "severity", "", "Only show one severity: critical, warning or info")
	list.Flags().BoolVar(&includeResolved, "include-resolved", false, "Include resolved alerts")
	cmd.AddCommand(list)

	for _, a := range []struct {
		use, short, verb string
		delete           bool
	}{
		{use: "ack", short: "Acknowledge an alert", verb: "acknowledge"},
		{use: "resolve", short: "Resolve an alert", verb: "resolve"},
		{use: "delete", short: "Delete an alert", verb: "delete", delete: true},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   a.use + " <alert-id>",
			Short: a.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client := newClient()
				id := url.PathEscape(args[0])

				var resp map[string]string
				var err error
				if a.delete {
					err = client.deleteJSON(alertsPath+"/"+id, &resp)
				} else {
					err = client.postJSON(alertsPath+"/"+id+":"+a.verb, nil, &resp)
				}
				if err != nil {
					return fmt.Errorf("failed to %s alert %s: %w", a.verb, args[0], err)
				}
				if structured() {
					return printOutput(cmd.OutOrStdout(), resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Alert %s %s\n", args[0], resp["status"])
				return nil
			},
		})
	}

	return cmd
}
