package testsession

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// HistoryStore persists sessions that reached a terminal state.
type HistoryStore struct {
	db *gorm.DB
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// AutoMigrate creates or updates the test_sessions table.
func (s *HistoryStore) AutoMigrate() error {
	return s.db.AutoMigrate(&SessionRecord{})
}

// Save stores a finished session. Saving the same id twice overwrites it.
func (s *HistoryStore) Save(session Session) error {
	if !session.Status.IsTerminal() {
		return fmt.Errorf("save session %s: status %s is not terminal", session.ID, session.Status)
	}
	if err := s.db.Save(recordFromSession(session)).Error; err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID. Returns nil when it does not exist.
func (s *HistoryStore) Get(id string) (*Session, error) {
	var rec SessionRecord
	if err := s.db.First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess := rec.Session()
	return &sess, nil
}

// Latest returns the most recently finished session, or nil if none exists.
func (s *HistoryStore) Latest() (*Session, error) {
	var rec SessionRecord
	err := s.db.Order("completed_at DESC").Order("id DESC").First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest session: %w", err)
	}
	sess := rec.Session()
	return &sess, nil
}

// List returns one page of finished sessions, newest first, plus the total count.
func (s *HistoryStore) List(page, limit int) ([]Session, int, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	var total int64
	if err := s.db.Model(&SessionRecord{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	var records []SessionRecord
	err := s.db.Order("completed_at DESC").Order("id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]Session, len(records))
	for i := range records {
		sessions[i] = records[i].Session()
	}
	return sessions, int(total), nil
}

// DeleteOlderThan removes sessions that finished before the cutoff.
func (s *HistoryStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := s.db.Where("completed_at < ?", cutoff).Delete(&SessionRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}
