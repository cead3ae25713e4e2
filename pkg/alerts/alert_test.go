package alerts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSnapshotData(t *testing.T) {
	tests := []struct {
		name string
		data any
		want int
	}{
		{"nil", nil, 0},
		{"typed list", []Alert{{ID: "a", Severity: SeverityCritical}}, 1},
		{"decoded list", []any{
			map[string]any{"id": "a", "severity": "critical"},
			map[string]any{"id": "b", "severity": "info"},
		}, 2},
		{"wrapped", map[string]any{
			"alerts": []any{map[string]any{"id": "a", "severity": "warning"}},
		}, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FromSnapshotData(tc.data)
			require.NoError(t, err)
			assert.Len(t, got, tc.want)
			for _, a := range got {
				assert.Equal(t, OriginUpstream, a.Source)
			}
		})
	}
}

func TestFromSnapshotData_ResolvedImpliesAcknowledged(t *testing.T) {
	got, err := FromSnapshotData([]any{
		map[string]any{"id": "a", "severity": "critical", "resolved": true},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Acknowledged)
}

func TestFromSnapshotData_Garbage(t *testing.T) {
	_, err := FromSnapshotData("not alerts")
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Alert{
		{Severity: SeverityCritical},
		{Severity: SeverityCritical, Acknowledged: true},
		{Severity: SeverityWarning},
		{Severity: SeverityInfo, Acknowledged: true, Resolved: true},
	})
	assert.Equal(t, Summary{Critical: 2, Warning: 1, Unacknowledged: 2}, s)
}
