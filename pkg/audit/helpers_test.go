package audit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDescribeRequest(t *testing.T) {
	tests := []struct {
		method     string
		path       string
		action     string
		targetType string
		targetID   string
	}{
		{"POST", "/api/sazpd/v1/test/start", "test.start", "test_session", ""},
		{"POST", "/api/sazpd/v1/test/stop", "test.stop", "test_session", ""},
		{"POST", "/api/sazpd/v1/test/reset", "test.reset", "test_session", ""},
		{"POST", "/api/sazpd/v1/test/step/crypto", "test.step", "test_module", "crypto"},
		{"POST", "/api/sazpd/v1/monitoring/snapshots/health:refresh", "monitoring.refresh", "monitoring_kind", "health"},
		{"POST", "/api/sazpd/v1/monitoring/refresh", "monitoring.refresh_all", "monitoring", ""},
		{"PUT", "/api/sazpd/v1/monitoring/config", "monitoring.config.update", "monitoring_config", ""},
		{"POST", "/api/sazpd/v1/alerts/a-1:acknowledge", "alert.acknowledge", "alert", "a-1"},
		{"POST", "/api/sazpd/v1/alerts/a-1:resolve", "alert.resolve", "alert", "a-1"},
		{"DELETE", "/api/sazpd/v1/alerts/a-1", "delete", "alert", "a-1"},
		{"POST", "/api/sazpd/v1/other/thing", "post", "other", ""},
		{"POST", "/", "post", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			action, targetType, targetID := describeRequest(tt.method, tt.path)
			if action != tt.action {
				t.Errorf("action: expected %q, got %q", tt.action, action)
			}
			if targetType != tt.targetType {
				t.Errorf("targetType: expected %q, got %q", tt.targetType, targetType)
			}
			got := ""
			if targetID != nil {
				got = *targetID
			}
			if got != tt.targetID {
				t.Errorf("targetID: expected %q, got %q", tt.targetID, got)
			}
		})
	}
}

func TestIsCommand(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{"POST", "/api/sazpd/v1/test/start", true},
		{"PUT", "/api/sazpd/v1/monitoring/config", true},
		{"DELETE", "/api/sazpd/v1/alerts/a-1", true},
		{"GET", "/api/sazpd/v1/test/status", false},
		{"GET", "/api/sazpd/v1/audit/logs", false},
		{"POST", "/healthz", false},
		{"POST", "/readyz", false},
	}

	for _, tt := range tests {
		if got := isCommand(tt.method, tt.path); got != tt.want {
			t.Errorf("isCommand(%s, %s) = %v, want %v", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "203.0.113.42:51234"
	if got := clientIP(req); got != "203.0.113.42" {
		t.Errorf("expected 203.0.113.42, got %s", got)
	}

	req.RemoteAddr = "unix-socket"
	if got := clientIP(req); got != "unix-socket" {
		t.Errorf("expected raw remote addr, got %s", got)
	}
}

func TestResultFromStatus(t *testing.T) {
	tests := map[int]Result{
		200: ResultSuccess,
		202: ResultSuccess,
		409: ResultWarning,
		400: ResultFailure,
		404: ResultFailure,
		503: ResultFailure,
	}
	for code, want := range tests {
		if got := resultFromStatus(code); got != want {
			t.Errorf("resultFromStatus(%d) = %s, want %s", code, got, want)
		}
	}
}
