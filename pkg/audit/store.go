package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/privacyshield/sazpd-console/pkg/errs"
)

// Source is where audit records are read from.
type Source interface {
	// List returns one page of matching records, newest first, and the total
	// number of matches.
	List(ctx context.Context, f Filter) ([]Record, int, error)
	// All returns every matching record, newest first.
	All(ctx context.Context, f Filter) ([]Record, error)
	// Get returns one record or an ErrNotFound error.
	Get(ctx context.Context, id string) (*Record, error)
}

// GormStore keeps audit records in the console database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates or updates the audit_logs table.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Record{})
}

// Append creates a new immutable audit record.
func (s *GormStore) Append(rec *Record) error {
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

func (s *GormStore) filtered(ctx context.Context, f Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&Record{})
	if f.ActorID != "" {
		q = q.Where("actor_id = ?", f.ActorID)
	}
	if f.Action != "" {
		q = q.Where("LOWER(action) LIKE ?", likePattern(f.Action))
	}
	if f.TargetType != "" {
		q = q.Where("target_type = ?", f.TargetType)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}
	if f.Search != "" {
		p := likePattern(f.Search)
		q = q.Where(
			"LOWER(actor_id) LIKE ? OR LOWER(actor_email) LIKE ? OR LOWER(action) LIKE ? OR "+
				"LOWER(target_type) LIKE ? OR LOWER(target_name) LIKE ? OR LOWER(ip_address) LIKE ? OR "+
				"LOWER(COALESCE(target_id, '')) LIKE ?",
			p, p, p, p, p, p, p)
	}
	return q
}

func likePattern(s string) string {
	return "%" + strings.ToLower(s) + "%"
}

// List returns one page of matching records.
func (s *GormStore) List(ctx context.Context, f Filter) ([]Record, int, error) {
	f = f.normalize()

	var total int64
	if err := s.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, 0, errs.Unavailable(err, "count audit records")
	}

	var records []Record
	err := s.filtered(ctx, f).
		Order("created_at DESC").Order("id DESC").
		Offset((f.Page - 1) * f.Limit).
		Limit(f.Limit).
		Find(&records).Error
	if err != nil {
		return nil, 0, errs.Unavailable(err, "list audit records")
	}
	return records, int(total), nil
}

// All returns every matching record.
func (s *GormStore) All(ctx context.Context, f Filter) ([]Record, error) {
	var records []Record
	err := s.filtered(ctx, f).
		Order("created_at DESC").Order("id DESC").
		Find(&records).Error
	if err != nil {
		return nil, errs.Unavailable(err, "read audit records")
	}
	return records, nil
}

// Get returns the record with the given id.
func (s *GormStore) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("audit record %q not found", id)
		}
		return nil, errs.Unavailable(err, "get audit record")
	}
	return &rec, nil
}

// DeleteOlderThan deletes records created before the cutoff.
func (s *GormStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := s.db.Where("created_at < ?", cutoff).Delete(&Record{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old audit records: %w", result.Error)
	}
	return result.RowsAffected, nil
}
