package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/httputil"
	request "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/middleware/request"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/requestcontext"
)

// JWTValidator defines the interface for validating access tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// SessionChecker reports whether the session a token was issued for is still active.
// A signed-out session invalidates every token minted for it.
type SessionChecker interface {
	IsSessionActive(ctx context.Context, sessionID id.SessionID) (bool, error)
}

// JWTClaims represents the claims we expect from the JWT validator.
type JWTClaims struct {
	PrincipalID string
	SessionID   string
	JTI         string
}

// Authenticate resolves a bearer token into the request context when one is
// presented. Requests without a token continue anonymously so the access guard
// can decide; a presented but invalid token is rejected outright.
func Authenticate(validator JWTValidator, sessions SessionChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx, err := resolve(r.Context(), token, validator, sessions, logger)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth is Authenticate that also rejects anonymous requests.
func RequireAuth(validator JWTValidator, sessions SessionChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				ctx := r.Context()
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", request.GetRequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "Missing or invalid Authorization header"))
				return
			}
			ctx, err := resolve(r.Context(), token, validator, sessions, logger)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(after) == "" {
		return "", false
	}
	return strings.TrimSpace(after), true
}

func resolve(ctx context.Context, token string, validator JWTValidator, sessions SessionChecker, logger *slog.Logger) (context.Context, error) {
	requestID := request.GetRequestID(ctx)
	invalid := dErrors.New(dErrors.CodeUnauthenticated, "Invalid or expired token")

	claims, err := validator.ValidateToken(token)
	if err != nil {
		logger.WarnContext(ctx, "unauthorized access - invalid token",
			"error", err,
			"request_id", requestID,
		)
		return ctx, invalid
	}
	principalID, err := id.ParsePrincipalID(claims.PrincipalID)
	if err != nil {
		return ctx, invalid
	}
	sessionID, err := id.ParseSessionID(claims.SessionID)
	if err != nil {
		return ctx, invalid
	}

	active, err := sessions.IsSessionActive(ctx, sessionID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to check session state",
			"error", err,
			"request_id", requestID,
		)
		return ctx, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "failed to validate session")
	}
	if !active {
		logger.WarnContext(ctx, "unauthorized access - session ended",
			"session_id", sessionID.String(),
			"request_id", requestID,
		)
		return ctx, dErrors.New(dErrors.CodeUnauthenticated, "Session has ended")
	}
	return requestcontext.WithSession(ctx, principalID, sessionID), nil
}
