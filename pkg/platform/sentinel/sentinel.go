package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally wrapped)
// so services can translate them into domain errors:
//   - ErrNotFound: row does not exist
//   - ErrAlreadyUsed: unique key (email) already taken
//   - ErrInvalidState: compare-and-swap precondition no longer holds
//   - ErrUnavailable: storage temporarily unavailable, safe to retry
//   - ErrExpired: token or session past its expiry
var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrExpired      = errors.New("expired")
)
