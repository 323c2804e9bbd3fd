// Package behavior owns the behavior-name micro-format and window context identity.
//
// Ownership boundary:
// - `#name` sentinel detection
// - `name@doc1@doc2` target parsing
// - stable context identity used by relay loop avoidance
package behavior

import "strings"

const (
	// SentinelPrefix marks a name that must only fire locally.
	SentinelPrefix = "#"
	// TargetSeparator splits a behavior name from its document selectors.
	TargetSeparator = "@"
)

// Reference is a parsed behavior reference.
type Reference struct {
	Name     string
	Targets  []string
	Sentinel bool
}

// ParseReference parses raw once at a boundary. Sentinel references are not split on '@'.
func ParseReference(raw string) Reference {
	if IsSentinel(raw) {
		return Reference{Name: strings.TrimPrefix(raw, SentinelPrefix), Sentinel: true}
	}
	parts := strings.Split(raw, TargetSeparator)
	ref := Reference{Name: parts[0]}
	if len(parts) > 1 {
		ref.Targets = parts[1:]
	}
	return ref
}

// IsSentinel reports whether raw is an already locally-scoped name.
func IsSentinel(raw string) bool {
	return strings.HasPrefix(raw, SentinelPrefix)
}

// Local returns the sentinel form of name.
func Local(name string) string {
	return SentinelPrefix + name
}

// Local returns the sentinel form used for purely local firing.
func (r Reference) Local() string {
	return Local(r.Name)
}

// Targeted reports whether the reference restricts local firing to explicit documents.
func (r Reference) Targeted() bool {
	return len(r.Targets) > 0
}

// String re-encodes the reference in its wire micro-format.
func (r Reference) String() string {
	if r.Sentinel {
		return Local(r.Name)
	}
	if len(r.Targets) == 0 {
		return r.Name
	}
	return r.Name + TargetSeparator + strings.Join(r.Targets, TargetSeparator)
}
