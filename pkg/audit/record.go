// Package audit reads administrative audit records and projects them through
// a masking policy before they leave the console. It also records the
// console's own mutating API calls as audit records.
package audit

import (
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// Result is the outcome of an audited action.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultWarning Result = "warning"
)

// Changes holds the before and after state of the target.
type Changes struct {
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
}

// Record is one immutable administrative action entry.
type Record struct {
	ID         string    `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	ActorID    string    `gorm:"column:actor_id;index:idx_audit_actor" json:"actorId"`
	ActorEmail string    `gorm:"column:actor_email" json:"actorEmail"`
	Action     string    `gorm:"column:action;not null" json:"action"`
	TargetType string    `gorm:"column:target_type;index:idx_audit_target_type" json:"targetType"`
	TargetID   *string   `gorm:"column:target_id" json:"targetId"`
	TargetName string    `gorm:"column:target_name" json:"targetName,omitempty"`
	Changes    *Changes  `gorm:"column:changes;serializer:json" json:"changes"`
	IPAddress  string    `gorm:"column:ip_address" json:"ipAddress"`
	UserAgent  string    `gorm:"column:user_agent" json:"userAgent"`
	Result     Result    `gorm:"column:result;not null" json:"result"`
	CreatedAt  time.Time `gorm:"column:created_at;index:idx_audit_created" json:"createdAt"`
}

// TableName returns the GORM table name.
func (Record) TableName() string { return "audit_logs" }

var sensitiveTargetTypes = mapset.NewSet("secrets", "user_data")

// Sensitive reports whether the record's fields must be masked on read.
// Sensitivity is derived, never stored.
func (r Record) Sensitive() bool {
	return sensitiveTargetTypes.Contains(strings.ToLower(r.TargetType)) ||
		strings.EqualFold(r.Action, "delete")
}

// Filter selects records for List and Export.
type Filter struct {
	ActorID    string
	Action     string // case-insensitive substring
	TargetType string
	Search     string // free text over actor, action, target and IP fields
	From       *time.Time
	To         *time.Time
	Page       int
	Limit      int
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// normalize applies paging defaults.
func (f Filter) normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	return f
}

// newestFirst orders records by createdAt descending, then id descending.
func newestFirst(a, b Record) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
