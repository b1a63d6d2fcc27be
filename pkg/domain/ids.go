package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
)

// Typed identifiers keep principals, profiles and ledger rows from being mixed up
// at compile time. All of them are UUIDs on the wire and in storage.
type (
	PrincipalID   uuid.UUID
	SessionID     uuid.UUID
	ProfileID     uuid.UUID
	JoinRequestID uuid.UUID
	VouchEdgeID   uuid.UUID
)

func (i PrincipalID) String() string   { return uuid.UUID(i).String() }
func (i SessionID) String() string     { return uuid.UUID(i).String() }
func (i ProfileID) String() string     { return uuid.UUID(i).String() }
func (i JoinRequestID) String() string { return uuid.UUID(i).String() }
func (i VouchEdgeID) String() string   { return uuid.UUID(i).String() }

func (i PrincipalID) IsNil() bool   { return uuid.UUID(i) == uuid.Nil }
func (i SessionID) IsNil() bool     { return uuid.UUID(i) == uuid.Nil }
func (i ProfileID) IsNil() bool     { return uuid.UUID(i) == uuid.Nil }
func (i JoinRequestID) IsNil() bool { return uuid.UUID(i) == uuid.Nil }
func (i VouchEdgeID) IsNil() bool   { return uuid.UUID(i) == uuid.Nil }

// Identifiers travel as canonical UUID strings in JSON.

func (i PrincipalID) MarshalText() ([]byte, error)   { return uuid.UUID(i).MarshalText() }
func (i SessionID) MarshalText() ([]byte, error)     { return uuid.UUID(i).MarshalText() }
func (i ProfileID) MarshalText() ([]byte, error)     { return uuid.UUID(i).MarshalText() }
func (i JoinRequestID) MarshalText() ([]byte, error) { return uuid.UUID(i).MarshalText() }
func (i VouchEdgeID) MarshalText() ([]byte, error)   { return uuid.UUID(i).MarshalText() }

func (i *PrincipalID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(i).UnmarshalText(b) }
func (i *SessionID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(i).UnmarshalText(b) }
func (i *ProfileID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(i).UnmarshalText(b) }
func (i *JoinRequestID) UnmarshalText(b []byte) error { return (*uuid.UUID)(i).UnmarshalText(b) }
func (i *VouchEdgeID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(i).UnmarshalText(b) }

// ParsePrincipalID parses an identity-store subject identifier.
func ParsePrincipalID(s string) (PrincipalID, error) {
	u, err := parseUUID(s, "principal")
	return PrincipalID(u), err
}

// ParseSessionID parses a session identifier.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session")
	return SessionID(u), err
}

// ParseProfileID parses a profile identifier.
func ParseProfileID(s string) (ProfileID, error) {
	u, err := parseUUID(s, "profile")
	return ProfileID(u), err
}

// ParseJoinRequestID parses a join request identifier.
func ParseJoinRequestID(s string) (JoinRequestID, error) {
	u, err := parseUUID(s, "join request")
	return JoinRequestID(u), err
}

// ParseVouchEdgeID parses a vouch edge identifier.
func ParseVouchEdgeID(s string) (VouchEdgeID, error) {
	u, err := parseUUID(s, "vouch edge")
	return VouchEdgeID(u), err
}

// parseUUID enforces "valid, non-empty, non-nil" at trust boundaries.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id cannot be nil")
	}
	return u, nil
}
