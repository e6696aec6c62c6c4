package types

import (
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// TenantID identifies a family/household. All connections, subscribers and
// change messages are isolated per tenant.
type TenantID string

// Validate checks that the tenant ID is non-empty
func (id TenantID) Validate() error {
	if id == "" {
		return goerr.New("tenant ID is empty")
	}
	return nil
}

// String returns the string representation of the tenant ID
func (id TenantID) String() string {
	return string(id)
}

// ConnectionID is a UUID-based identifier for a calendar connection
type ConnectionID string

// NewConnectionID generates a new UUID v4 ConnectionID
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.New().String())
}

// Validate checks that the connection ID is non-empty
func (id ConnectionID) Validate() error {
	if id == "" {
		return goerr.New("connection ID is empty")
	}
	return nil
}

// String returns the string representation of the connection ID
func (id ConnectionID) String() string {
	return string(id)
}

// MemberID identifies a family member a connection can be assigned to
type MemberID string

// String returns the string representation of the member ID
func (id MemberID) String() string {
	return string(id)
}
