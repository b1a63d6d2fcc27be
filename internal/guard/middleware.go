package guard

import (
	"context"
	"net/http"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/httputil"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/middleware/request"
)

type profileKey struct{}

// ProfileFromContext returns the profile loaded by Require, if any.
func ProfileFromContext(ctx context.Context) *models.Profile {
	p, _ := ctx.Value(profileKey{}).(*models.Profile)
	return p
}

// Require rejects requests whose caller does not meet req. Denials are
// written with the remediation message as the error description.
func (g *Guard) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			decision := g.AuthorizeCurrent(ctx, req)
			if !decision.Allowed() {
				g.logger.InfoContext(ctx, "access denied",
					"request_id", request.GetRequestID(ctx),
					"requirement", string(req),
					"outcome", string(decision.Outcome),
				)
				httputil.WriteError(w, decision.Err())
				return
			}
			if decision.Profile != nil {
				ctx = context.WithValue(ctx, profileKey{}, decision.Profile)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
