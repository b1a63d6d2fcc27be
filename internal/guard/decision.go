package guard

import (
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
)

// Requirement is a capability level, ordered anonymous < authenticated < vouched < steward.
type Requirement string

const (
	RequireAnonymous     Requirement = "anonymous"
	RequireAuthenticated Requirement = "authenticated"
	RequireVouched       Requirement = "vouched"
	RequireSteward       Requirement = "steward"
)

// Requirements lists every level in ascending order.
var Requirements = []Requirement{RequireAnonymous, RequireAuthenticated, RequireVouched, RequireSteward}

// ParseRequirement validates a capability level name.
func ParseRequirement(s string) (Requirement, error) {
	switch r := Requirement(s); r {
	case RequireAnonymous, RequireAuthenticated, RequireVouched, RequireSteward:
		return r, nil
	}
	return "", dErrors.New(dErrors.CodeBadRequest, "unknown capability level: "+s)
}

// Outcome is the result of an authorization check.
type Outcome string

const (
	Allowed               Outcome = "allowed"
	DeniedUnauthenticated Outcome = "denied_unauthenticated"
	DeniedUnvouched       Outcome = "denied_unvouched"
	DeniedNotSteward      Outcome = "denied_not_steward"
)

var remediations = map[Outcome]string{
	DeniedUnauthenticated: "Sign in to continue.",
	DeniedUnvouched:       "Your membership is awaiting a vouch from a neighbor or a steward.",
	DeniedNotSteward:      "Steward access is required for this page.",
}

// Remediation is the user-facing next step for a denial. Each denial cause
// has its own message; Allowed has none.
func (o Outcome) Remediation() string {
	return remediations[o]
}

// Decision is an authorization result. Profile is the caller's profile
// snapshot when one was loaded.
type Decision struct {
	Requirement Requirement     `json:"requirement"`
	Outcome     Outcome         `json:"outcome"`
	Remediation string          `json:"remediation,omitempty"`
	Profile     *models.Profile `json:"-"`
}

func newDecision(req Requirement, outcome Outcome, profile *models.Profile) Decision {
	return Decision{Requirement: req, Outcome: outcome, Remediation: outcome.Remediation(), Profile: profile}
}

func (d Decision) Allowed() bool {
	return d.Outcome == Allowed
}

// Err converts a denial into a domain error carrying the remediation text.
func (d Decision) Err() error {
	switch d.Outcome {
	case Allowed:
		return nil
	case DeniedUnauthenticated:
		return dErrors.New(dErrors.CodeUnauthenticated, d.Remediation)
	default:
		return dErrors.New(dErrors.CodeInsufficientCapability, d.Remediation)
	}
}
