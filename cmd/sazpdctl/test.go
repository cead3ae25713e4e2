package main

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/privacyshield/sazpd-console/pkg/modules"
	"github.com/privacyshield/sazpd-console/pkg/testsession"
)

const testPath = apiPrefix + "/test"

func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run and inspect compliance test sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start a full session over every module",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp map[string]string
			if err := newClient().postJSON(testPath+"/start", nil, &resp); err != nil {
				return fmt.Errorf("failed to start session: %w", err)
			}
			if structured() {
				return printOutput(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s started\n", resp["sessionId"])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "step <module-id>",
		Short:     "Run a single module while the session is idle",
		Args:      cobra.ExactArgs(1),
		ValidArgs: moduleIDs(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().postJSON(testPath+"/step/"+url.PathEscape(args[0]), nil, nil); err != nil {
				return fmt.Errorf("failed to start module %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Module %s started\n", args[0])
			return nil
		},
	})

	for _, c := range []struct{ use, short, done string }{
		{"stop", "Cancel the running session", "stopped"},
		{"reset", "Return to a fresh idle session", "reset"},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   c.use,
			Short: c.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				var sess testsession.Session
				if err := newClient().postJSON(testPath+"/"+c.use, nil, &sess); err != nil {
					return fmt.Errorf("failed to %s session: %w", c.use, err)
				}
				if structured() {
					return printOutput(cmd.OutOrStdout(), sess)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s %s (status %s)\n", sess.ID, c.done, sess.Status)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var sess testsession.Session
			if err := newClient().getJSON(testPath+"/status", nil, &sess); err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			return printSession(cmd.OutOrStdout(), sess)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "results",
		Short: "Show the latest finished session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var sess testsession.Session
			if err := newClient().getJSON(testPath+"/results", nil, &sess); err != nil {
				return fmt.Errorf("failed to get results: %w", err)
			}
			return printSession(cmd.OutOrStdout(), sess)
		},
	})

	var page, limit int
	history := &cobra.Command{
		Use:   "history",
		Short: "List finished sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("page", strconv.Itoa(page))
			q.Set("limit", strconv.Itoa(limit))

			var resp struct {
				Sessions []testsession.Session `json:"sessions"`
				Total    int                   `json:"total"`
				Page     int                   `json:"page"`
			}
			if err := newClient().getJSON(testPath+"/history", q, &resp); err != nil {
				return fmt.Errorf("failed to list history: %w", err)
			}
			if structured() {
				return printOutput(cmd.OutOrStdout(), resp)
			}

			rows := make([][]string, 0, len(resp.Sessions))
			for _, s := range resp.Sessions {
				tests, passed := "-", "-"
				if s.Summary != nil {
					tests = strconv.Itoa(s.Summary.TotalTests)
					passed = strconv.Itoa(s.Summary.TotalPassed)
				}
				rows = append(rows, []string{s.ID, string(s.Status), formatTime(s.StartedAt), formatTime(s.CompletedAt), tests, passed})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "Status", "Started", "Completed", "Tests", "Passed"}, rows)
			fmt.Fprintf(cmd.OutOrStdout(), "\nPage %d, %d sessions total\n", resp.Page, resp.Total)
			return nil
		},
	}
	history.Flags().IntVar(&page, "page", 1, "Page number")
	history.Flags().IntVar(&limit, "limit", 20, "Sessions per page")
	cmd.AddCommand(history)

	cmd.AddCommand(&cobra.Command{
		Use:   "modules",
		Short: "List the testable modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Modules []modules.Module `json:"modules"`
			}
			if err := newClient().getJSON(testPath+"/modules", nil, &resp); err != nil {
				return fmt.Errorf("failed to list modules: %w", err)
			}
			if structured() {
				return printOutput(cmd.OutOrStdout(), resp)
			}
			rows := make([][]string, 0, len(resp.Modules))
			for _, m := range resp.Modules {
				rows = append(rows, []string{string(m.ID), m.Name, truncate(m.Description, 60)})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "Name", "Description"}, rows)
			return nil
		},
	})

	return cmd
}

func moduleIDs() []string {
	ids := modules.IDs()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func printSession(w io.Writer, s testsession.Session) error {
	if structured() {
		return printOutput(w, s)
	}

	fmt.Fprintf(w, "Session:  %s\n", s.ID)
	fmt.Fprintf(w, "Status:   %s\n", s.Status)
	fmt.Fprintf(w, "Progress: %d%%\n", s.Progress)
	if s.Summary != nil {
		fmt.Fprintf(w, "Summary:  %d tests, %d passed, %d failed in %s\n",
			s.Summary.TotalTests, s.Summary.TotalPassed, s.Summary.TotalFailed, s.Summary.TotalDuration.Round(time.Millisecond))
	}
	fmt.Fprintln(w)

	rows := make([][]string, 0, len(s.Modules))
	for _, m := range s.Modules {
		rows = append(rows, []string{
			string(m.ID),
			string(m.Status),
			strconv.Itoa(m.Progress) + "%",
			strconv.Itoa(m.Results.TestsRun),
			strconv.Itoa(m.Results.Passed),
			strconv.Itoa(m.Results.Failed),
			truncate(firstOf(m.Results.Errors), 50),
		})
	}
	printTable(w, []string{"Module", "Status", "Progress", "Tests", "Passed", "Failed", "Error"}, rows)
	return nil
}

func firstOf(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[0]
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
