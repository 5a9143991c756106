package model

import (
	"strings"
	"unicode"
)

// Role is a coarse classification of statuses used for dependency
// satisfaction checks and role transition logging.
type Role string

const (
	RoleQueue    Role = "queue"
	RoleWork     Role = "work"
	RoleReview   Role = "review"
	RoleTerminal Role = "terminal"
	// RoleBlocked is incomparable in the role ordering; a blocking task
	// in this role never satisfies an unblock threshold.
	RoleBlocked Role = "blocked"
)

// ValidRoles returns all valid role values.
func ValidRoles() []Role {
	return []Role{RoleQueue, RoleWork, RoleReview, RoleTerminal, RoleBlocked}
}

// IsValidRole returns true if the role is a valid role value.
func IsValidRole(r Role) bool {
	switch r {
	case RoleQueue, RoleWork, RoleReview, RoleTerminal, RoleBlocked:
		return true
	default:
		return false
	}
}

// RoleOrder returns the position of a role in the progression
// queue < work < review < terminal, or -1 for blocked and unknown
// roles, which do not participate in the ordering.
func RoleOrder(r Role) int {
	switch r {
	case RoleQueue:
		return 0
	case RoleWork:
		return 1
	case RoleReview:
		return 2
	case RoleTerminal:
		return 3
	default:
		return -1
	}
}

// RoleSatisfies reports whether a task in role r satisfies an unblock
// threshold of at least required. Incomparable roles never satisfy.
func RoleSatisfies(r, required Role) bool {
	ro, req := RoleOrder(r), RoleOrder(required)
	if ro < 0 || req < 0 {
		return false
	}
	return ro >= req
}

// NormalizeStatus canonicalises a status string to lowercase hyphenated
// form: camelCase gets a hyphen at each case boundary, underscores
// become hyphens, and the result is lowercased and trimmed.
// "inProgress", "IN_PROGRESS", and "In-Progress" all normalise to
// "in-progress".
func NormalizeStatus(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				b.WriteRune('-')
			}
		}
		b.WriteRune(r)
	}
	out := strings.ToLower(b.String())
	out = strings.ReplaceAll(out, "_", "-")
	return out
}

// NormalizeTags lowercases and trims a tag list, dropping empties.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ParseTags splits a comma-separated tag string into a normalised list.
func ParseTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return NormalizeTags(strings.Split(s, ","))
}
