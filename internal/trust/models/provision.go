package models

import (
	"fmt"

	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
)

// ProvisionOutcome is the result of provisioning one vouched join request.
type ProvisionOutcome string

const (
	ProvisionCreated       ProvisionOutcome = "created"
	ProvisionAlreadyExists ProvisionOutcome = "already_exists"
	ProvisionError         ProvisionOutcome = "error"
)

// ProvisionItem is the per-request result. Error carries a message only for
// ProvisionError items so callers can retry just those.
type ProvisionItem struct {
	JoinRequestID string           `json:"join_request_id"`
	Email         string           `json:"email"`
	Outcome       ProvisionOutcome `json:"outcome"`
	ProfileID     string           `json:"profile_id,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// ProvisionSummary counts items by outcome.
type ProvisionSummary struct {
	Created       int `json:"created"`
	AlreadyExists int `json:"already_exists"`
	Errors        int `json:"errors"`
}

// ProvisionResult is the outcome of a bulk provisioning run. Items are in join
// request order.
type ProvisionResult struct {
	Items   []ProvisionItem  `json:"items"`
	Summary ProvisionSummary `json:"summary"`
}

// Tally recomputes the summary from items.
func (r *ProvisionResult) Tally() {
	r.Summary = ProvisionSummary{}
	for _, item := range r.Items {
		switch item.Outcome {
		case ProvisionCreated:
			r.Summary.Created++
		case ProvisionAlreadyExists:
			r.Summary.AlreadyExists++
		case ProvisionError:
			r.Summary.Errors++
		}
	}
}

// Err reports a partial batch failure when any item failed.
func (r *ProvisionResult) Err() error {
	if r.Summary.Errors == 0 {
		return nil
	}
	return dErrors.New(dErrors.CodePartialBatchFailure,
		fmt.Sprintf("%d of %d provisioning attempts failed", r.Summary.Errors, len(r.Items)))
}

// ReconcileReport summarizes a repair pass.
type ReconcileReport struct {
	Scanned  int      `json:"scanned"`
	Repaired int      `json:"repaired"`
	Failed   int      `json:"failed"`
	Repairs  []string `json:"repairs,omitempty"`
	Failures []string `json:"failures,omitempty"`
}
