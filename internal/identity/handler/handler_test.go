package handler

import (
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/handler/mocks"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/models"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/service"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	identity *mocks.MockService
	router   http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.identity = mocks.NewMockService(s.ctrl)
	r := chi.NewRouter()
	New(s.identity, slog.New(slog.DiscardHandler)).Register(r)
	s.router = r
}

func authResult() *service.AuthResult {
	return &service.AuthResult{
		AccessToken: "token",
		ExpiresIn:   15 * time.Minute,
		Session: &models.Session{
			ID:          id.SessionID(uuid.New()),
			PrincipalID: id.PrincipalID(uuid.New()),
			Status:      models.SessionStatusActive,
		},
	}
}

func (s *HandlerSuite) TestRegister() {
	s.Run("accepts the sign-up without a session", func() {
		result := &service.RegisterResult{PrincipalID: id.PrincipalID(uuid.New()), Email: "ana@example.com"}
		s.identity.EXPECT().Register(gomock.Any(), service.RegisterInput{
			Name: "Ana", Email: "ana@example.com", Password: "correct horse", Intro: "hi",
		}).Return(result, nil)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register", map[string]string{
			"name": " Ana ", "email": "ana@example.com", "password": "correct horse", "intro": "hi",
		}))
		s.Equal(http.StatusAccepted, rr.Code)
		resp := testutil.UnmarshalResponse[RegisterResponse](s.T(), rr)
		s.Equal(result.PrincipalID.String(), resp.PrincipalID)
		s.Equal("pending_activation", resp.Status)
		s.NotContains(rr.Body.String(), "access_token")
	})

	s.Run("missing password never reaches the service", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register", map[string]string{
			"name": "Ana", "email": "ana@example.com",
		}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("taken email", func() {
		s.identity.EXPECT().Register(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "email is already registered"))
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register", map[string]string{
			"name": "Ana", "email": "ana@example.com", "password": "correct horse",
		}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
	})
}

func (s *HandlerSuite) TestLogin() {
	s.identity.EXPECT().Login(gomock.Any(), "ana@example.com", "wrong").
		Return(nil, dErrors.New(dErrors.CodeUnauthenticated, "invalid email or password"))
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login", map[string]string{
		"email": "ana@example.com", "password": "wrong",
	}))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthenticated")

	s.identity.EXPECT().Login(gomock.Any(), "ana@example.com", "correct horse").Return(authResult(), nil)
	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login", map[string]string{
		"email": "ana@example.com", "password": "correct horse",
	}))
	s.Equal(http.StatusOK, rr.Code)
}

func (s *HandlerSuite) TestActivate() {
	result := authResult()
	s.identity.EXPECT().Activate(gomock.Any(), "dee@example.com", "abc", "correct horse").Return(result, nil)
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/activate", map[string]string{
		"email": "dee@example.com", "token": " abc ", "password": "correct horse",
	}))
	s.Equal(http.StatusOK, rr.Code)
	resp := testutil.UnmarshalResponse[AuthResponse](s.T(), rr)
	s.Equal("token", resp.AccessToken)
	s.Equal("Bearer", resp.TokenType)
	s.Equal(900, resp.ExpiresIn)
	s.Equal(result.Session.ID.String(), resp.SessionID)

	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/activate", map[string]string{
		"email": "dee@example.com", "password": "correct horse",
	}))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
}

func (s *HandlerSuite) TestLogout() {
	s.identity.EXPECT().Logout(gomock.Any()).Return(nil)
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/logout", nil))
	s.Equal(http.StatusNoContent, rr.Code)

	s.identity.EXPECT().Logout(gomock.Any()).Return(dErrors.New(dErrors.CodeUnauthenticated, "not signed in"))
	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/logout", nil))
	s.Equal(http.StatusUnauthorized, rr.Code)
}
