package audit

import (
	"net"
	"net/http"
	"strings"
)

// apiVersionSegment separates the API prefix from the resource path.
const apiVersionSegment = "v1"

// resourcePath returns the path segments after the API version.
// For /api/sazpd/v1/alerts/a-1:resolve it returns ["alerts", "a-1:resolve"].
func resourcePath(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if p == apiVersionSegment {
			return parts[i+1:]
		}
	}
	return parts
}

// splitAction splits "a-1:resolve" into "a-1" and "resolve".
func splitAction(segment string) (id, verb string) {
	if idx := strings.Index(segment, ":"); idx > 0 {
		return segment[:idx], segment[idx+1:]
	}
	return segment, ""
}

// describeRequest derives the audit action, target type and target id of a
// console command from its method and path.
func describeRequest(method, path string) (action, targetType string, targetID *string) {
	parts := resourcePath(path)
	if len(parts) == 0 || parts[0] == "" {
		return strings.ToLower(method), "", nil
	}

	switch parts[0] {
	case "test":
		if len(parts) < 2 {
			break
		}
		if parts[1] == "step" && len(parts) > 2 {
			id := parts[2]
			return "test.step", "test_module", &id
		}
		return "test." + parts[1], "test_session", nil

	case "monitoring":
		if len(parts) < 2 {
			break
		}
		switch parts[1] {
		case "snapshots":
			if len(parts) > 2 {
				kind, verb := splitAction(parts[2])
				if verb == "" {
					verb = strings.ToLower(method)
				}
				return "monitoring." + verb, "monitoring_kind", &kind
			}
		case "refresh":
			return "monitoring.refresh_all", "monitoring", nil
		case "config":
			return "monitoring.config.update", "monitoring_config", nil
		}

	case "alerts":
		if len(parts) < 2 {
			break
		}
		id, verb := splitAction(parts[1])
		if method == http.MethodDelete {
			return "delete", "alert", &id
		}
		if verb == "" {
			verb = strings.ToLower(method)
		}
		return "alert." + verb, "alert", &id
	}

	return strings.ToLower(method), parts[0], nil
}

// isCommand returns true if the request should be recorded. Only mutating
// requests are; reads and health probes are not.
func isCommand(method, path string) bool {
	if isHealthEndpoint(path) {
		return false
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// isHealthEndpoint returns true for health-check paths.
func isHealthEndpoint(path string) bool {
	switch path {
	case "/livez", "/readyz", "/healthz":
		return true
	}
	return false
}

// clientIP returns the host part of the request's remote address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
