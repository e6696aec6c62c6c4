package types

import "fmt"

// MessageKind tags a change message in the real-time fan-out channel
type MessageKind string

const (
	MessageEventCreated          MessageKind = "event_created"
	MessageEventUpdated          MessageKind = "event_updated"
	MessageEventDeleted          MessageKind = "event_deleted"
	MessageCalendarSyncCompleted MessageKind = "calendar_sync_completed"
	MessageMemberChanged         MessageKind = "member_changed"
	MessageFamilySettingsChanged MessageKind = "family_settings_changed"
	MessageDeviceChanged         MessageKind = "device_changed"
	MessageFullResyncRequired    MessageKind = "full_resync_required"
)

// AllMessageKinds returns all valid message kinds
func AllMessageKinds() []MessageKind {
	return []MessageKind{
		MessageEventCreated,
		MessageEventUpdated,
		MessageEventDeleted,
		MessageCalendarSyncCompleted,
		MessageMemberChanged,
		MessageFamilySettingsChanged,
		MessageDeviceChanged,
		MessageFullResyncRequired,
	}
}

// IsValid checks if the message kind is valid
func (k MessageKind) IsValid() bool {
	switch k {
	case MessageEventCreated,
		MessageEventUpdated,
		MessageEventDeleted,
		MessageCalendarSyncCompleted,
		MessageMemberChanged,
		MessageFamilySettingsChanged,
		MessageDeviceChanged,
		MessageFullResyncRequired:
		return true
	default:
		return false
	}
}

// String returns the string representation of the message kind
func (k MessageKind) String() string {
	return string(k)
}

// ParseMessageKind parses a string into a MessageKind
func ParseMessageKind(s string) (MessageKind, error) {
	kind := MessageKind(s)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid message kind: %s", s)
	}
	return kind, nil
}
