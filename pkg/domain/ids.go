// Package domain holds primitive domain types shared across packages: typed
// identifiers and caller roles. Parsing happens at trust boundaries (HTTP
// params, token claims) so the rest of the code only sees valid values.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "schooladmin/pkg/domain-errors"
)

// UserID identifies an actor (staff member, teacher, parent, student).
type UserID uuid.UUID

// TenantID identifies a school.
type TenantID uuid.UUID

// AuditRecordID identifies a persisted audit record.
type AuditRecordID uuid.UUID

func parseUUID(kind, s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be nil")
	}
	return u, nil
}

// ParseUserID validates and converts a string to UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user id", s)
	return UserID(u), err
}

// ParseTenantID validates and converts a string to TenantID.
func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID("tenant id", s)
	return TenantID(u), err
}

// ParseAuditRecordID validates and converts a string to AuditRecordID.
func ParseAuditRecordID(s string) (AuditRecordID, error) {
	u, err := parseUUID("audit record id", s)
	return AuditRecordID(u), err
}

// NewAuditRecordID returns a fresh random record id.
func NewAuditRecordID() AuditRecordID { return AuditRecordID(uuid.New()) }

func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id TenantID) String() string      { return uuid.UUID(id).String() }
func (id AuditRecordID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id TenantID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id AuditRecordID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id TenantID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id AuditRecordID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *TenantID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *AuditRecordID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
