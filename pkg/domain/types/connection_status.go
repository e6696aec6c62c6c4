package types

import "fmt"

// ConnectionStatus represents the health state of a calendar connection
type ConnectionStatus string

const (
	ConnectionStatusPendingAuth  ConnectionStatus = "pending_auth"
	ConnectionStatusActive       ConnectionStatus = "active"
	ConnectionStatusPaused       ConnectionStatus = "paused"
	ConnectionStatusAuthError    ConnectionStatus = "auth_error"
	ConnectionStatusSyncError    ConnectionStatus = "sync_error"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
)

// AllConnectionStatuses returns all valid connection statuses
func AllConnectionStatuses() []ConnectionStatus {
	return []ConnectionStatus{
		ConnectionStatusPendingAuth,
		ConnectionStatusActive,
		ConnectionStatusPaused,
		ConnectionStatusAuthError,
		ConnectionStatusSyncError,
		ConnectionStatusDisconnected,
	}
}

// IsValid checks if the connection status is valid
func (s ConnectionStatus) IsValid() bool {
	switch s {
	case ConnectionStatusPendingAuth,
		ConnectionStatusActive,
		ConnectionStatusPaused,
		ConnectionStatusAuthError,
		ConnectionStatusSyncError,
		ConnectionStatusDisconnected:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are legal from this
// status. Disconnected records are retired, never revived in place.
func (s ConnectionStatus) IsTerminal() bool {
	return s == ConnectionStatusDisconnected
}

// IsSyncable reports whether a record in this status may be handed to a
// provider adapter. Paused and disconnected records must be rejected, not
// silently skipped.
func (s ConnectionStatus) IsSyncable() bool {
	switch s {
	case ConnectionStatusActive, ConnectionStatusAuthError, ConnectionStatusSyncError:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next is a legal
// lifecycle transition.
func (s ConnectionStatus) CanTransitionTo(next ConnectionStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == ConnectionStatusDisconnected {
		return true
	}

	switch s {
	case ConnectionStatusPendingAuth:
		return next == ConnectionStatusActive
	case ConnectionStatusActive:
		switch next {
		case ConnectionStatusActive,
			ConnectionStatusPaused,
			ConnectionStatusAuthError,
			ConnectionStatusSyncError:
			return true
		}
	case ConnectionStatusPaused:
		return next == ConnectionStatusActive
	case ConnectionStatusAuthError:
		return next == ConnectionStatusActive || next == ConnectionStatusAuthError
	case ConnectionStatusSyncError:
		switch next {
		case ConnectionStatusActive,
			ConnectionStatusAuthError,
			ConnectionStatusSyncError:
			return true
		}
	}
	return false
}

// String returns the string representation of the connection status
func (s ConnectionStatus) String() string {
	return string(s)
}

// ParseConnectionStatus parses a string into a ConnectionStatus
func ParseConnectionStatus(s string) (ConnectionStatus, error) {
	status := ConnectionStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid connection status: %s", s)
	}
	return status, nil
}
