package upstream

import (
	"context"
	"net/http"
	"net/url"
	"sort"

	"github.com/privacyshield/sazpd-console/pkg/audit"
)

// auditPage is the body of GET /audit-logs.
type auditPage struct {
	Items []audit.Record `json:"items"`
	Total int            `json:"total"`
}

// AuditSource reads the audit trail from the admin API. It implements
// audit.Source.
type AuditSource struct {
	c *Client
}

// Audit returns the audit trail source.
func (c *Client) Audit() *AuditSource {
	return &AuditSource{c: c}
}

var _ audit.Source = (*AuditSource)(nil)

// List calls GET /audit-logs with the filter as query parameters.
func (s *AuditSource) List(ctx context.Context, f audit.Filter) ([]audit.Record, int, error) {
	var page auditPage
	if err := s.c.do(ctx, GroupAudit, http.MethodGet, "/audit-logs", f.Query(), nil, &page); err != nil {
		return nil, 0, err
	}
	if page.Items == nil {
		page.Items = []audit.Record{}
	}
	return page.Items, page.Total, nil
}

// All pages through GET /audit-logs until every match has been read.
func (s *AuditSource) All(ctx context.Context, f audit.Filter) ([]audit.Record, error) {
	size := s.c.cfg.AuditPageSize
	if size <= 0 {
		size = 500
	}

	var out []audit.Record
	seen := make(map[string]struct{})
	for page := 1; ; page++ {
		f.Page, f.Limit = page, size
		items, total, err := s.List(ctx, f)
		if err != nil {
			return nil, err
		}
		for _, r := range items {
			// Records appended between pages shift later pages by one.
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			out = append(out, r)
		}
		if len(items) < size || page*size >= total {
			break
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Get calls GET /audit-logs/{id}.
func (s *AuditSource) Get(ctx context.Context, id string) (*audit.Record, error) {
	var rec audit.Record
	if err := s.c.do(ctx, GroupAudit, http.MethodGet, "/audit-logs/"+url.PathEscape(id), nil, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
