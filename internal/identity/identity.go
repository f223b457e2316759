// Package identity normalizes the loosely-shaped identity records handed
// out by the auth provider into a participant role judgment. It consumes
// identities only; credential issuance and validation live elsewhere.
package identity

import (
	"strings"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("identity")

// Role is the participant role derived from an identity record.
type Role string

const (
	Doctor  Role = "DOCTOR"
	Patient Role = "PATIENT"
	Other   Role = "OTHER"
)

// rolePrefix is the namespace prefix some backends prepend to role values
// ("ROLE_DOCTOR" vs plain "doctor").
const rolePrefix = "ROLE_"

// baselineRole is assumed when no role-bearing field carries a value.
// The consumer-facing site registers plain users as patients.
const baselineRole = "PATIENT"

// Record is an identity record as delivered by the auth provider. Different
// backends populate different fields; Resolve probes them in order.
type Record struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	UserRole    string   `json:"userRole"`
	Type        string   `json:"type"`
	Authorities []string `json:"authorities"`
}

// extractors probe the role-bearing fields in priority order. First
// non-empty value wins.
var extractors = []func(Record) string{
	func(r Record) string { return r.Role },
	func(r Record) string { return r.UserRole },
	func(r Record) string { return r.Type },
	func(r Record) string {
		if len(r.Authorities) > 0 {
			return r.Authorities[0]
		}
		return ""
	},
}

// Resolve derives the participant role from a record. Case- and
// prefix-invariant: "doctor", "DOCTOR" and "ROLE_DOCTOR" all resolve to
// Doctor. Unrecognized values map to Other and are logged rather than
// silently defaulted.
func Resolve(r Record) Role {
	raw := ""
	for _, ex := range extractors {
		if v := strings.TrimSpace(ex(r)); v != "" {
			raw = v
			break
		}
	}
	if raw == "" {
		log.Debugf("record %s has no role-bearing field, assuming %s", r.ID, baselineRole)
		raw = baselineRole
	}

	switch Normalize(raw) {
	case string(Doctor):
		return Doctor
	case string(Patient):
		return Patient
	default:
		log.Warnw("unrecognized role value", "id", r.ID, "value", raw)
		return Other
	}
}

// Normalize uppercases a raw role value and strips the namespace prefix.
func Normalize(raw string) string {
	v := strings.ToUpper(strings.TrimSpace(raw))
	return strings.TrimPrefix(v, rolePrefix)
}

// DisplayName returns the name to present to the conference and chat. Falls
// back to the email local part, then the record id.
func DisplayName(r Record) string {
	if n := strings.TrimSpace(r.Name); n != "" {
		return n
	}
	if r.Email != "" {
		if i := strings.IndexByte(r.Email, '@'); i > 0 {
			return r.Email[:i]
		}
		return r.Email
	}
	return r.ID
}
