// Package alerts watches the alerts snapshot, fires a notification when new
// unacknowledged critical alerts appear, and applies operator actions.
package alerts

import (
	"encoding/json"
	"fmt"
	"time"
)

// Severity classifies an alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Origin tells where an alert came from.
type Origin string

const (
	// OriginUpstream alerts are owned by the external alert service.
	OriginUpstream Origin = "upstream"
	// OriginLocal alerts are synthesized by the console itself.
	OriginLocal Origin = "local"
)

// Alert is one alert as seen by operators. Resolved implies Acknowledged.
type Alert struct {
	ID           string    `json:"id"`
	Severity     Severity  `json:"severity"`
	Acknowledged bool      `json:"acknowledged"`
	Resolved     bool      `json:"resolved"`
	CreatedAt    time.Time `json:"createdAt"`
	Message      string    `json:"message"`
	Source       Origin    `json:"source,omitempty"`
}

// IsUnacknowledgedCritical reports whether a counts toward notifications.
func (a Alert) IsUnacknowledgedCritical() bool {
	return a.Severity == SeverityCritical && !a.Acknowledged
}

// Summary counts alerts per severity.
type Summary struct {
	Critical       int `json:"critical"`
	Warning        int `json:"warning"`
	Info           int `json:"info"`
	Unacknowledged int `json:"unacknowledged"`
}

// Summarize counts alerts per severity, ignoring resolved ones.
func Summarize(list []Alert) Summary {
	var s Summary
	for _, a := range list {
		if a.Resolved {
			continue
		}
		switch a.Severity {
		case SeverityCritical:
			s.Critical++
		case SeverityWarning:
			s.Warning++
		case SeverityInfo:
			s.Info++
		}
		if !a.Acknowledged {
			s.Unacknowledged++
		}
	}
	return s
}

// FromSnapshotData extracts alerts from an alerts snapshot payload. Upstream
// fetchers hand over []Alert directly; anything else is decoded through JSON,
// either as a bare list or as {"alerts": [...]}.
func FromSnapshotData(data any) ([]Alert, error) {
	var list []Alert
	switch v := data.(type) {
	case nil:
		return nil, nil
	case []Alert:
		list = append([]Alert(nil), v...)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode alerts snapshot: %w", err)
		}
		if err := json.Unmarshal(raw, &list); err != nil {
			var wrapped struct {
				Alerts []Alert `json:"alerts"`
			}
			if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
				return nil, fmt.Errorf("decode alerts snapshot: %w", err)
			}
			list = wrapped.Alerts
		}
	}

	for i := range list {
		if list[i].Source == "" {
			list[i].Source = OriginUpstream
		}
		if list[i].Resolved {
			list[i].Acknowledged = true
		}
	}
	return list, nil
}
