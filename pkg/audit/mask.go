package audit

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Placeholder replaces secret values and secret target names.
const Placeholder = "********"

// secretFragments mark a field name as secret-like when contained in it.
var secretFragments = mapset.NewSet("password", "passwd", "token", "secret", "key", "hash", "credential")

type fieldRule int

const (
	ruleNone fieldRule = iota
	ruleSecret
	ruleEmail
	rulePhone
	ruleIP
)

// ruleFor classifies a field name. Secret-like names win over the others.
func ruleFor(field string) fieldRule {
	name := strings.ToLower(field)
	for _, frag := range secretFragments.ToSlice() {
		if strings.Contains(name, frag) {
			return ruleSecret
		}
	}
	switch {
	case strings.Contains(name, "email"):
		return ruleEmail
	case strings.Contains(name, "phone"):
		return rulePhone
	case name == "ip" || strings.Contains(name, "ipaddress") || strings.Contains(name, "ip_address"):
		return ruleIP
	}
	return ruleNone
}

// MaskedRecord is the read projection of a Record. Masked is set when the
// record was sensitive and the masking policy applied.
type MaskedRecord struct {
	Record
	Masked bool `json:"masked"`
}

// Project returns the masked view of r. Non-sensitive records pass through
// unchanged; r itself is never modified.
func Project(r Record) MaskedRecord {
	if !r.Sensitive() {
		return MaskedRecord{Record: r}
	}

	out := r
	out.ActorEmail = MaskEmail(r.ActorEmail)
	out.IPAddress = MaskIP(r.IPAddress)
	if strings.EqualFold(r.TargetType, "secrets") && r.TargetName != "" {
		out.TargetName = Placeholder
	}
	if r.Changes != nil {
		out.Changes = &Changes{
			Before: maskMap(r.Changes.Before),
			After:  maskMap(r.Changes.After),
		}
	}
	return MaskedRecord{Record: out, Masked: true}
}

func maskMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = maskField(k, v)
	}
	return out
}

// maskField masks v according to the rule of field. Nested objects are
// masked by their own keys.
func maskField(field string, v any) any {
	rule := ruleFor(field)
	if rule == ruleSecret && v != nil {
		return Placeholder
	}

	switch val := v.(type) {
	case map[string]any:
		return maskMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = maskField(field, item)
		}
		return out
	case nil:
		return nil
	}

	switch rule {
	case ruleEmail:
		return MaskEmail(scalarString(v))
	case rulePhone:
		return MaskPhone(scalarString(v))
	case ruleIP:
		return MaskIP(scalarString(v))
	}
	return v
}

// scalarString renders v without exponent notation; decoded JSON numbers
// arrive as float64.
func scalarString(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	}
	return fmt.Sprint(v)
}

// MaskEmail keeps the first two characters of the local part and the domain:
// "ivanov@example.com" becomes "iv***@example.com".
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return Placeholder
	}
	local, domain := email[:at], email[at+1:]
	keep := local
	if r := []rune(local); len(r) > 2 {
		keep = string(r[:2])
	}
	return keep + "***@" + domain
}

// MaskPhone replaces the last four digits with '*', keeping formatting.
func MaskPhone(phone string) string {
	r := []rune(phone)
	left := 4
	for i := len(r) - 1; i >= 0 && left > 0; i-- {
		if r[i] >= '0' && r[i] <= '9' {
			r[i] = '*'
			left--
		}
	}
	return string(r)
}

// MaskIP masks the last two octets of an IPv4 address, keeping their length:
// "203.0.113.42" becomes "203.0.***.**". IPv6 addresses keep their first
// four groups. Anything else is replaced entirely.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Placeholder
	}
	if parsed.To4() != nil && strings.Count(ip, ".") == 3 {
		parts := strings.Split(ip, ".")
		for i := 2; i < 4; i++ {
			parts[i] = strings.Repeat("*", len(parts[i]))
		}
		return strings.Join(parts, ".")
	}
	groups := strings.Split(parsed.String(), ":")
	for i := range groups {
		if i >= 4 && groups[i] != "" {
			groups[i] = strings.Repeat("*", len(groups[i]))
		}
	}
	return strings.Join(groups, ":")
}
