package handler

import (
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/service"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/store/joinrequest"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/store/profile"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/store/vouch"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/testutil"
)

func newRouter() http.Handler {
	profiles := profile.NewInMemory()
	requests := joinrequest.NewInMemory()
	vouches := vouch.NewInMemory()
	stores := service.Stores{Profiles: profiles, JoinRequests: requests, Vouches: vouches}
	svc := service.New(service.NewInMemoryTx(stores, 0, profiles, requests, vouches), stores)

	r := chi.NewRouter()
	New(svc, slog.New(slog.DiscardHandler)).Register(r)
	return r
}

func TestSubmitJoinRequest(t *testing.T) {
	router := newRouter()

	t.Run("creates a pending request", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/join-requests", map[string]string{
			"name":  "Ana",
			"email": "ana@example.com",
			"intro": "I live two doors down",
		})
		rr := testutil.DoRequest(router, req)

		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		resp := testutil.UnmarshalResponse[JoinRequestResponse](t, rr)
		assert.Equal(t, "pending", resp.Status)
		assert.NotEmpty(t, resp.ID)
	})

	t.Run("duplicate email", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/join-requests", map[string]string{
			"name":  "Ana",
			"email": "ANA@example.com",
		})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusConflict, "duplicate_request")
	})

	t.Run("missing name", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/join-requests", map[string]string{
			"email": "ben@example.com",
		})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/join-requests", map[string]string{
			"name":   "Cai",
			"email":  "cai@example.com",
			"status": "vouched",
		})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})
}
