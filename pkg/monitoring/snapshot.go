package monitoring

import (
	"time"
)

// staleFactor is how many intervals may pass before a snapshot is stale.
const staleFactor = 2

// Snapshot is the last successfully fetched payload of one kind. It is
// replaced wholesale on every successful poll.
type Snapshot struct {
	Kind      Kind      `json:"kind"`
	Data      any       `json:"data"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// IsStale reports whether more than two intervals passed since the fetch.
func (s Snapshot) IsStale(now time.Time, interval time.Duration) bool {
	return now.Sub(s.FetchedAt) > staleFactor*interval
}

// View is the read model served to clients.
type View struct {
	Kind                Kind       `json:"kind"`
	Data                any        `json:"data"`
	FetchedAt           *time.Time `json:"fetchedAt,omitempty"`
	IsStale             bool       `json:"isStale"`
	IntervalSeconds     int        `json:"intervalSeconds"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastError           string     `json:"lastError,omitempty"`
}

// Update is pushed to subscribers after every successful poll.
type Update struct {
	Snapshot Snapshot
}
