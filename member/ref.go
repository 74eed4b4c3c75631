package member

import (
	"strings"
	"time"
)

// Ref identifies a utility member expected to respond on a ticket. The set of
// refs lives on the ticket row itself (jsonb column) so it is always read and
// written under the same lock as the ticket status.
type Ref struct {
	Code         string    `json:"code"`
	DisplayName  string    `json:"name"`
	RegisteredAt time.Time `json:"registered_at"`
}

// NormalizeCode produces the canonical form of a member code: trimmed and
// uppercased. All uniqueness comparisons run on normalized codes.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ContainsCode reports whether refs already tracks the given code. The code
// is normalized before comparison.
func ContainsCode(refs []Ref, code string) bool {
	normalized := NormalizeCode(code)
	for _, ref := range refs {
		if ref.Code == normalized {
			return true
		}
	}
	return false
}

// Dedupe normalizes every code and drops later duplicates, preserving
// insertion order. Used when seeding a ticket's expected member list.
func Dedupe(refs []Ref) []Ref {
	seen := make(map[string]struct{}, len(refs))
	out := make([]Ref, 0, len(refs))
	for _, ref := range refs {
		ref.Code = NormalizeCode(ref.Code)
		if ref.Code == "" {
			continue
		}
		if _, ok := seen[ref.Code]; ok {
			continue
		}
		seen[ref.Code] = struct{}{}
		out = append(out, ref)
	}
	return out
}

// Codes returns the normalized codes of refs in order.
func Codes(refs []Ref) []string {
	codes := make([]string, 0, len(refs))
	for _, ref := range refs {
		codes = append(codes, ref.Code)
	}
	return codes
}
