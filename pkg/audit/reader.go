package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"time"

	"github.com/privacyshield/sazpd-console/pkg/errs"
	"github.com/privacyshield/sazpd-console/pkg/metrics"
)

// ListResult is one page of masked records.
type ListResult struct {
	Records    []MaskedRecord `json:"records"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
}

// Reader serves masked audit records from a Source.
type Reader struct {
	source  Source
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewReader creates a Reader over source.
func NewReader(source Source, m *metrics.Metrics, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{source: source, metrics: m, logger: logger}
}

// List returns one masked page of records matching f.
func (r *Reader) List(ctx context.Context, f Filter) (ListResult, error) {
	f = f.normalize()
	records, total, err := r.source.List(ctx, f)
	if err != nil {
		return ListResult{}, err
	}

	res := ListResult{
		Records:    make([]MaskedRecord, len(records)),
		Total:      total,
		Page:       f.Page,
		Limit:      f.Limit,
		TotalPages: (total + f.Limit - 1) / f.Limit,
	}
	for i, rec := range records {
		res.Records[i] = Project(rec)
	}
	return res, nil
}

// Get returns one masked record.
func (r *Reader) Get(ctx context.Context, id string) (MaskedRecord, error) {
	rec, err := r.source.Get(ctx, id)
	if err != nil {
		return MaskedRecord{}, err
	}
	return Project(*rec), nil
}

// Diff returns the masked field changes of the record with the given id.
func (r *Reader) Diff(ctx context.Context, id string) ([]FieldChange, error) {
	rec, err := r.source.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Changes == nil {
		return []FieldChange{}, nil
	}
	return Diff(rec.Changes.Before, rec.Changes.After, rec.Sensitive()), nil
}

// FieldChange is one changed field between before and after.
type FieldChange struct {
	Field  string `json:"field"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

// Diff returns the fields whose values differ between before and after,
// sorted by field name. When sensitive is set each side is masked on its own.
func Diff(before, after map[string]any, sensitive bool) []FieldChange {
	fields := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		fields[k] = struct{}{}
	}
	for k := range after {
		fields[k] = struct{}{}
	}

	out := make([]FieldChange, 0, len(fields))
	for field := range fields {
		b, a := before[field], after[field]
		if reflect.DeepEqual(b, a) {
			continue
		}
		if sensitive {
			b, a = maskField(field, b), maskField(field, a)
		}
		out = append(out, FieldChange{Field: field, Before: b, After: a})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

var exportHeader = []string{
	"id", "createdAt", "actorId", "actorEmail", "action", "targetType",
	"targetId", "targetName", "result", "ipAddress", "userAgent", "changes",
}

// Export writes every record matching f as CSV with a header row. Nothing is
// written to w unless the whole export succeeded.
func (r *Reader) Export(ctx context.Context, f Filter, w io.Writer) (err error) {
	defer func() { r.metrics.ObserveExport(err) }()

	records, err := r.source.All(ctx, f)
	if err != nil {
		r.logger.Warn("audit export failed", errs.Attr(err))
		return err
	}
	sort.SliceStable(records, func(i, j int) bool { return newestFirst(records[i], records[j]) })

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, rec := range records {
		m := Project(rec)
		row, err := exportRow(m)
		if err != nil {
			return err
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return errs.Unavailable(err, "write audit export")
	}
	r.logger.Info("audit export completed", "records", len(records))
	return nil
}

func exportRow(m MaskedRecord) ([]string, error) {
	targetID := ""
	if m.TargetID != nil {
		targetID = *m.TargetID
	}
	changes := ""
	if m.Changes != nil {
		raw, err := json.Marshal(m.Changes)
		if err != nil {
			return nil, err
		}
		changes = string(raw)
	}
	return []string{
		m.ID,
		m.CreatedAt.UTC().Format(time.RFC3339Nano),
		m.ActorID,
		m.ActorEmail,
		m.Action,
		m.TargetType,
		targetID,
		m.TargetName,
		string(m.Result),
		m.IPAddress,
		m.UserAgent,
		changes,
	}, nil
}
