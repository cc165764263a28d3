package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskkash/internal/docstore"
	"taskkash/internal/model"
	"taskkash/internal/repository"
	"taskkash/internal/service"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&service.ValidationError{Fields: map[string]string{"x": "bad"}}, http.StatusBadRequest},
		{fmt.Errorf("%w: empty body", ErrBadRequest), http.StatusBadRequest},
		{service.ErrInsufficientBalance, http.StatusBadRequest},
		{docstore.ErrInvalidID, http.StatusBadRequest},
		{service.ErrUnauthenticated, http.StatusUnauthorized},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{ErrForbidden, http.StatusForbidden},
		{service.ErrAccountSuspended, http.StatusForbidden},
		{service.ErrCannotModifySelf, http.StatusForbidden},
		{fmt.Errorf("lookup: %w", repository.ErrTaskNotFound), http.StatusNotFound},
		{repository.ErrWithdrawalNotFound, http.StatusNotFound},
		{service.ErrEmailTaken, http.StatusConflict},
		{service.ErrDailyBonusClaimed, http.StatusConflict},
		{service.ErrPendingSubmissionExists, http.StatusConflict},
		{service.ErrWithdrawalAlreadyProcessed, http.StatusConflict},
		{fmt.Errorf("%w (retry in 1m)", service.ErrRateLimited), http.StatusTooManyRequests},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestError_HidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: password authentication failed"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "internal server error", resp.Message)
}

func TestError_ValidationFields(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, httptest.NewRequest(http.MethodGet, "/", nil), &service.ValidationError{
		Fields: map[string]string{"title": "is required"},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation failed", resp.Message)
	assert.Equal(t, "is required", resp.Errors["title"])
}

func decodeBody(body string, dst any) error {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	return decodeJSON(httptest.NewRecorder(), req, dst)
}

func TestDecodeJSON(t *testing.T) {
	t.Run("empty body", func(t *testing.T) {
		var req loginRequest
		assert.ErrorIs(t, decodeBody("", &req), ErrBadRequest)
	})

	t.Run("unknown field", func(t *testing.T) {
		var req loginRequest
		assert.ErrorIs(t, decodeBody(`{"email":"a@b.co","password":"x","admin":true}`, &req), ErrBadRequest)
	})

	t.Run("field errors use json names", func(t *testing.T) {
		var req changePasswordRequest
		err := decodeBody(`{"currentPassword":"","newPassword":"short"}`, &req)
		var verr *service.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "is required", verr.Fields["currentPassword"])
		assert.Equal(t, "must be at least 8 characters", verr.Fields["newPassword"])
	})

	t.Run("withdrawal type case is left to the service", func(t *testing.T) {
		var req withdrawalRequest
		err := decodeBody(`{"amount":500,"withdrawalType":"Bank","bankName":"First Bank","accountName":"Ada","accountNumber":"0123"}`, &req)
		require.NoError(t, err)
		assert.Equal(t, "Bank", req.input().Type)

		var missing withdrawalRequest
		err = decodeBody(`{"amount":500}`, &missing)
		var verr *service.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "withdrawalType")
	})

	t.Run("adjustment must be non-zero", func(t *testing.T) {
		var req adjustPointsRequest
		err := decodeBody(`{"amount":0,"reason":"oops"}`, &req)
		var verr *service.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "amount")
	})

	t.Run("valid", func(t *testing.T) {
		var req submitProofRequest
		err := decodeBody(`{"taskId":7,"proofUrls":["https://img.example.com/a.png"],"notes":"done"}`, &req)
		require.NoError(t, err)
		in := req.input()
		assert.EqualValues(t, 7, in.TaskID)
		assert.Equal(t, []string{"https://img.example.com/a.png"}, in.Proof.URLs)
	})
}

func TestPathID(t *testing.T) {
	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "42"})
	id, err := pathID(req, "id")
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)

	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "0"})
	_, err = pathID(req, "id")
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestPage_Clamps(t *testing.T) {
	limit, offset := page(httptest.NewRequest(http.MethodGet, "/?limit=100000&offset=-5", nil))
	assert.Equal(t, repository.PageLimit(100000), limit)
	assert.Zero(t, offset)
}

type stubAuth map[string]*model.User

func (s stubAuth) Authenticate(_ context.Context, tok string) (*model.User, error) {
	u, ok := s[tok]
	if !ok {
		return nil, service.ErrUnauthenticated
	}
	return u, nil
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", bearerToken(req, "sid"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	req.AddCookie(&http.Cookie{Name: "sid", Value: "cookie-token"})
	assert.Empty(t, bearerToken(req, "sid"), "a non-bearer header must not fall back to the cookie")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "cookie-token"})
	assert.Equal(t, "cookie-token", bearerToken(req, "sid"))
	assert.Empty(t, bearerToken(req, ""))
}

func TestRequireAuthAndAdmin(t *testing.T) {
	auth := stubAuth{
		"user-token":  {ID: 1, Role: model.RoleUser},
		"admin-token": {ID: 2, Role: model.RoleAdmin},
	}
	var seen int64
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFrom(r.Context())
		require.True(t, ok)
		seen = u.ID
		OK(w, "", nil)
	})
	userOnly := RequireAuth(auth, "sid")(final)
	adminOnly := RequireAuth(auth, "sid")(RequireAdmin(final))

	serve := func(h http.Handler, tok string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(userOnly, ""))
	assert.Equal(t, http.StatusUnauthorized, serve(userOnly, "bogus"))
	assert.Equal(t, http.StatusOK, serve(userOnly, "user-token"))
	assert.EqualValues(t, 1, seen)

	assert.Equal(t, http.StatusForbidden, serve(adminOnly, "user-token"))
	assert.Equal(t, http.StatusOK, serve(adminOnly, "admin-token"))
	assert.EqualValues(t, 2, seen)
}
