package types

import "fmt"

// ProviderKind represents the kind of external calendar source
type ProviderKind string

const (
	ProviderGoogleCalendar  ProviderKind = "google_calendar"
	ProviderOutlookCalendar ProviderKind = "outlook_calendar"
	ProviderICS             ProviderKind = "ics"
)

// AllProviderKinds returns all valid provider kinds
func AllProviderKinds() []ProviderKind {
	return []ProviderKind{
		ProviderGoogleCalendar,
		ProviderOutlookCalendar,
		ProviderICS,
	}
}

// IsValid checks if the provider kind is valid
func (k ProviderKind) IsValid() bool {
	switch k {
	case ProviderGoogleCalendar,
		ProviderOutlookCalendar,
		ProviderICS:
		return true
	default:
		return false
	}
}

// IsOAuth reports whether the provider requires an OAuth grant. ICS
// subscriptions need no external authorization.
func (k ProviderKind) IsOAuth() bool {
	switch k {
	case ProviderGoogleCalendar, ProviderOutlookCalendar:
		return true
	default:
		return false
	}
}

// String returns the string representation of the provider kind
func (k ProviderKind) String() string {
	return string(k)
}

// ParseProviderKind parses a string into a ProviderKind
func ParseProviderKind(s string) (ProviderKind, error) {
	kind := ProviderKind(s)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid provider kind: %s", s)
	}
	return kind, nil
}
