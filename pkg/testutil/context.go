package testutil

import (
	"net/http"

	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/requestcontext"
)

// WithPrincipal adds principal and session IDs to the request context.
// This simulates what the auth middleware does for authenticated requests.
func WithPrincipal(req *http.Request, principalID id.PrincipalID, sessionID id.SessionID) *http.Request {
	return req.WithContext(requestcontext.WithSession(req.Context(), principalID, sessionID))
}
