package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/privacyshield/sazpd-console/pkg/audit"
)

const auditPath = apiPrefix + "/audit"

// filterFlags are the audit filter flags shared by list and export.
type filterFlags struct {
	actor, action, targetType, search string
	from, to                          string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.actor, "actor-id", "", "Only records by this actor")
	cmd.Flags().StringVar(&f.action, "action", "", "Action substring, case-insensitive")
	cmd.Flags().StringVar(&f.targetType, "target-type", "", "Only records on this target type")
	cmd.Flags().StringVar(&f.search, "search", "", "Free text over actor, action, target and IP")
	cmd.Flags().StringVar(&f.from, "from", "", "Earliest timestamp (RFC 3339)")
	cmd.Flags().StringVar(&f.to, "to", "", "Latest timestamp (RFC 3339)")
}

// filter validates the flags and returns the matching audit.Filter.
func (f *filterFlags) filter() (audit.Filter, error) {
	out := audit.Filter{
		ActorID:    f.actor,
		Action:     f.action,
		TargetType: f.targetType,
		Search:     f.search,
	}
	for _, p := range []struct {
		name, value string
		dst         **time.Time
	}{{"--from", f.from, &out.From}, {"--to", f.to, &out.To}} {
		if p.value == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, p.value)
		if err != nil {
			return audit.Filter{}, fmt.Errorf("%s must be an RFC 3339 timestamp: %w", p.name, err)
		}
		*p.dst = &t
	}
	return out, nil
}

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read and export the audit trail",
	}

	var (
		listFilter  filterFlags
		page, limit int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List audit records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := listFilter.filter()
			if err != nil {
				return err
			}
			f.Page, f.Limit = page, limit

			var resp audit.ListResult
			if err := newClient().getJSON(auditPath+"/logs", f.Query(), &resp); err != nil {
				return fmt.Errorf("failed to list audit records: %w", err)
			}
			if structured() {
				return printOutput(cmd.OutOrStdout(), resp)
			}

			rows := make([][]string, 0, len(resp.Records))
			for _, r := range resp.Records {
				target := r.TargetType
				if r.TargetID != nil {
					target += "/" + *r.TargetID
				}
				rows = append(rows, []string{
					r.ID,
					r.CreatedAt.Local().Format(time.DateTime),
					r.ActorID,
					r.Action,
					truncate(target, 40),
					string(r.Result),
					yesNo(r.Masked),
				})
			}
			out := cmd.OutOrStdout()
			printTable(out, []string{"ID", "Time", "Actor", "Action", "Target", "Result", "Masked"}, rows)
			fmt.Fprintf(out, "\nPage %d of %d, %d records total\n", resp.Page, resp.TotalPages, resp.Total)
			return nil
		},
	}
	listFilter.register(list)
	list.Flags().IntVar(&page, "page", 1, "Page number")
	list.Flags().IntVar(&limit, "limit", 50, "Records per page (max 500)")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "get <record-id>",
		Short: "Show one audit record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rec audit.MaskedRecord
			if err := newClient().getJSON(auditPath+"/logs/"+url.PathEscape(args[0]), nil, &rec); err != nil {
				return fmt.Errorf("failed to get audit record %s: %w", args[0], err)
			}
			if outputFmt == "yaml" {
				return printYAML(cmd.OutOrStdout(), rec)
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "diff <record-id>",
		Short: "Show the fields an audited action changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				ID      string              `json:"id"`
				Changes []audit.FieldChange `json:"changes"`
			}
			if err := newClient().getJSON(auditPath+"/logs/"+url.PathEscape(args[0])+"/diff", nil, &resp); err != nil {
				return fmt.Errorf("failed to diff audit record %s: %w", args[0], err)
			}
			if structured() {
				return printOutput(cmd.OutOrStdout(), resp)
			}
			rows := make([][]string, 0, len(resp.Changes))
			for _, c := range resp.Changes {
				rows = append(rows, []string{c.Field, truncate(fmt.Sprint(c.Before), 40), truncate(fmt.Sprint(c.After), 40)})
			}
			printTable(cmd.OutOrStdout(), []string{"Field", "Before", "After"}, rows)
			return nil
		},
	})

	var (
		exportFilter filterFlags
		file         string
	)
	export := &cobra.Command{
		Use:   "export",
		Short: "Export every matching record as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := exportFilter.filter()
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if file != "" && file != "-" {
				fh, err := os.Create(file)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", file, err)
				}
				defer fh.Close()
				w = fh
			}

			if err := newClient().download(auditPath+"/logs:export", f.Query(), w); err != nil {
				return fmt.Errorf("failed to export audit records: %w", err)
			}
			if file != "" && file != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", file)
			}
			return nil
		},
	}
	exportFilter.register(export)
	export.Flags().StringVarP(&file, "file", "f", "", "Write CSV to this file instead of stdout")
	cmd.AddCommand(export)

	return cmd
}
