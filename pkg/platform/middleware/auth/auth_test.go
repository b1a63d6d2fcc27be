package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (v stubValidator) ValidateToken(string) (*JWTClaims, error) { return v.claims, v.err }

type stubSessions struct {
	active bool
	err    error
}

func (s stubSessions) IsSessionActive(context.Context, id.SessionID) (bool, error) {
	return s.active, s.err
}

type AuthMiddlewareSuite struct {
	suite.Suite
	logger      *slog.Logger
	principalID uuid.UUID
	sessionID   uuid.UUID
	claims      *JWTClaims
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareSuite))
}

func (s *AuthMiddlewareSuite) SetupTest() {
	s.logger = slog.New(slog.DiscardHandler)
	s.principalID = uuid.New()
	s.sessionID = uuid.New()
	s.claims = &JWTClaims{PrincipalID: s.principalID.String(), SessionID: s.sessionID.String(), JTI: "jti"}
}

func (s *AuthMiddlewareSuite) serve(mw func(http.Handler) http.Handler, header string) (*httptest.ResponseRecorder, id.PrincipalID, bool) {
	var (
		seen   id.PrincipalID
		called bool
	)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		seen = requestcontext.PrincipalID(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w, seen, called
}

func (s *AuthMiddlewareSuite) TestAuthenticate() {
	s.Run("anonymous request passes through", func() {
		mw := Authenticate(stubValidator{claims: s.claims}, stubSessions{active: true}, s.logger)
		_, seen, called := s.serve(mw, "")
		s.True(called)
		s.True(seen.IsNil())
	})

	s.Run("valid token sets principal", func() {
		mw := Authenticate(stubValidator{claims: s.claims}, stubSessions{active: true}, s.logger)
		_, seen, called := s.serve(mw, "Bearer tok")
		s.True(called)
		s.Equal(id.PrincipalID(s.principalID), seen)
	})

	s.Run("invalid token is rejected", func() {
		mw := Authenticate(stubValidator{err: errors.New("bad signature")}, stubSessions{active: true}, s.logger)
		w, _, called := s.serve(mw, "Bearer tok")
		s.False(called)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("ended session is rejected", func() {
		mw := Authenticate(stubValidator{claims: s.claims}, stubSessions{active: false}, s.logger)
		w, _, called := s.serve(mw, "Bearer tok")
		s.False(called)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("session store failure fails closed", func() {
		mw := Authenticate(stubValidator{claims: s.claims}, stubSessions{err: errors.New("redis down")}, s.logger)
		w, _, called := s.serve(mw, "Bearer tok")
		s.False(called)
		s.Equal(http.StatusServiceUnavailable, w.Code)
	})
}

func (s *AuthMiddlewareSuite) TestRequireAuth() {
	mw := RequireAuth(stubValidator{claims: s.claims}, stubSessions{active: true}, s.logger)

	w, _, called := s.serve(mw, "")
	s.False(called)
	s.Equal(http.StatusUnauthorized, w.Code)

	_, seen, called := s.serve(mw, "Bearer tok")
	s.True(called)
	assert.Equal(s.T(), id.PrincipalID(s.principalID), seen)
}
