package models

import (
	"time"

	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
)

// Notes recorded on edges created by the pipeline itself.
const (
	NoteJoinRequestApproval = "join request approval"
	NoteBulkProvision       = "bulk provisioning"
	NoteReconciled          = "reconciled from join request"
)

const maxNoteLength = 500

// VouchEdge records that Voucher vouched for Vouched. Edges are append-only and
// never edited; the first edge targeting a profile is the authorizing one.
type VouchEdge struct {
	ID        id.VouchEdgeID `json:"id"`
	VoucherID id.ProfileID   `json:"voucher_id"`
	VouchedID id.ProfileID   `json:"vouched_id"`
	Note      string         `json:"note"`
	CreatedAt time.Time      `json:"created_at"`
}

func NewVouchEdge(edgeID id.VouchEdgeID, voucher, vouched id.ProfileID, note string, now time.Time) (*VouchEdge, error) {
	if voucher == vouched {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "vouch edge cannot be a self-loop")
	}
	if len(note) > maxNoteLength {
		return nil, dErrors.New(dErrors.CodeValidation, "note must be 500 characters or less")
	}
	return &VouchEdge{
		ID:        edgeID,
		VoucherID: voucher,
		VouchedID: vouched,
		Note:      note,
		CreatedAt: now,
	}, nil
}

// VouchTrail lists the edges touching a profile.
type VouchTrail struct {
	Profile  *Profile     `json:"profile"`
	Incoming []*VouchEdge `json:"incoming"`
	Outgoing []*VouchEdge `json:"outgoing"`
}
