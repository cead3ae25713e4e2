package upstream

import (
	"context"
	"net/http"
	"net/url"

	"github.com/privacyshield/sazpd-console/pkg/alerts"
	"github.com/privacyshield/sazpd-console/pkg/monitoring"
)

// snapshotPaths maps each monitoring kind to its admin API endpoint.
var snapshotPaths = map[monitoring.Kind]string{
	monitoring.KindHealth:        "/health",
	monitoring.KindMetrics:       "/metrics",
	monitoring.KindAlerts:        "/alerts",
	monitoring.KindLogs:          "/logs",
	monitoring.KindOperatorStats: "/operators/stats",
	monitoring.KindConfig:        "/config",
}

// Fetchers returns one fetcher per monitoring kind. logsQuery is sent with
// every logs poll and may be nil. Alert snapshots are normalized into
// []alerts.Alert; the other kinds are passed through as decoded JSON.
func (c *Client) Fetchers(logsQuery url.Values) monitoring.Fetchers {
	f := make(monitoring.Fetchers, len(snapshotPaths))
	for kind, path := range snapshotPaths {
		var query url.Values
		if kind == monitoring.KindLogs {
			query = logsQuery
		}
		group := MonitoringGroup(kind)
		f[kind] = func(ctx context.Context) (any, error) {
			var data any
			if err := c.do(ctx, group, http.MethodGet, path, query, nil, &data); err != nil {
				return nil, err
			}
			if kind == monitoring.KindAlerts {
				return alerts.FromSnapshotData(data)
			}
			return data, nil
		}
	}
	return f
}
