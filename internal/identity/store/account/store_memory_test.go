package account

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
)

type AccountStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func TestAccountStoreSuite(t *testing.T) {
	suite.Run(t, new(AccountStoreSuite))
}

func (s *AccountStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
}

func (s *AccountStoreSuite) TestCreateAndFind() {
	a, err := models.NewAccount(id.PrincipalID(uuid.New()), "ana@example.com", []byte("hash"), s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, a))

	found, err := s.store.FindByEmail(s.ctx, "ana@example.com")
	s.Require().NoError(err)
	s.Equal(a.ID, found.ID)

	found, err = s.store.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(models.AccountStatusActive, found.Status)

	dup, err := models.NewAccount(id.PrincipalID(uuid.New()), "ana@example.com", []byte("other"), s.now)
	s.Require().NoError(err)
	s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrAlreadyUsed)

	_, err = s.store.FindByEmail(s.ctx, "ben@example.com")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *AccountStoreSuite) TestActivateOnce() {
	a, err := models.NewProvisionedAccount(id.PrincipalID(uuid.New()), "ben@example.com", []byte("token-hash"), s.now.Add(time.Hour), s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, a))

	s.Require().NoError(s.store.Activate(s.ctx, a.ID, []byte("password-hash"), s.now))
	found, err := s.store.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(models.AccountStatusActive, found.Status)
	s.Equal([]byte("password-hash"), found.PasswordHash)
	s.Nil(found.ActivationHash)
	s.Nil(found.ActivationExpiresAt)

	s.ErrorIs(s.store.Activate(s.ctx, a.ID, []byte("again"), s.now), sentinel.ErrInvalidState)
	s.ErrorIs(s.store.Activate(s.ctx, id.PrincipalID(uuid.New()), []byte("x"), s.now), sentinel.ErrNotFound)
}

func (s *AccountStoreSuite) TestReissueActivation() {
	a, err := models.NewRegisteredAccount(id.PrincipalID(uuid.New()), "dov@example.com", "Dov", []byte("pw"), []byte("first"), s.now.Add(time.Hour), s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, a))

	later := s.now.Add(48 * time.Hour)
	a.ApplyReissue(nil, []byte("second"), later)
	s.Require().NoError(s.store.ReissueActivation(s.ctx, a))
	found, err := s.store.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal([]byte("second"), found.ActivationHash)
	s.Empty(found.PasswordHash)
	s.Equal("Dov", found.Name)
	s.Equal(later, *found.ActivationExpiresAt)
	s.Equal(models.AccountStatusPendingActivation, found.Status)

	s.Require().NoError(s.store.Activate(s.ctx, a.ID, []byte("pw"), s.now))
	s.ErrorIs(s.store.ReissueActivation(s.ctx, a), sentinel.ErrInvalidState)

	stranger, err := models.NewProvisionedAccount(id.PrincipalID(uuid.New()), "eli@example.com", []byte("x"), later, s.now)
	s.Require().NoError(err)
	s.ErrorIs(s.store.ReissueActivation(s.ctx, stranger), sentinel.ErrNotFound)
}

func (s *AccountStoreSuite) TestReturnsCopies() {
	a, err := models.NewProvisionedAccount(id.PrincipalID(uuid.New()), "cleo@example.com", []byte("token-hash"), s.now.Add(time.Hour), s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, a))

	found, err := s.store.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	found.Status = models.AccountStatusActive
	*found.ActivationExpiresAt = s.now

	again, err := s.store.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(models.AccountStatusPendingActivation, again.Status)
	s.Equal(s.now.Add(time.Hour), *again.ActivationExpiresAt)
}
