package auth_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-fleet/internal/auth"
	"github.com/odyssey-erp/odyssey-fleet/internal/shared"
)

func principalProbe(got *shared.Principal, found *bool, bearer *bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*got, *found = shared.PrincipalFromContext(r.Context())
		*bearer = auth.ViaBearer(r.Context())
		w.WriteHeader(http.StatusOK)
	}
}

func TestPrincipalFromBearerToken(t *testing.T) {
	h := newHarness(t, &stubRepo{user: activeUser(t)})
	token, _, err := h.tokens.Issue(activeUser(t))
	require.NoError(t, err)

	var (
		got           shared.Principal
		found, bearer bool
	)
	mw := auth.PrincipalMiddleware(auth.NewService(&stubRepo{}), h.tokens, nil)
	req := httptest.NewRequest(http.MethodGet, "/parties", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	mw(principalProbe(&got, &found, &bearer)).ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	require.True(t, found)
	assert.True(t, bearer)
	assert.Equal(t, shared.Principal{ID: 7, Role: "Salesperson", SourceAddress: "10.1.2.3"}, got)
}

func TestPrincipalRejectsForgedToken(t *testing.T) {
	other := auth.NewTokenIssuer("another-secret", time.Hour)
	token, _, err := other.Issue(activeUser(t))
	require.NoError(t, err)

	h := newHarness(t, &stubRepo{})
	mw := auth.PrincipalMiddleware(auth.NewService(&stubRepo{}), h.tokens, nil)
	req := httptest.NewRequest(http.MethodGet, "/parties", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	called := false
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })).ServeHTTP(res, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestPrincipalFromSession(t *testing.T) {
	user := activeUser(t)
	h := newHarness(t, &stubRepo{user: user})
	mw := auth.PrincipalMiddleware(auth.NewService(&stubRepo{user: user}), h.tokens, nil)

	var (
		got           shared.Principal
		found, bearer bool
	)
	req := httptest.NewRequest(http.MethodGet, "/parties", nil)
	req.RemoteAddr = "192.168.0.9:40000"
	h.serve(t, req, func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		sess.SetUser(user.ID)
		mw(principalProbe(&got, &found, &bearer)).ServeHTTP(w, r)
	})

	require.True(t, found)
	assert.False(t, bearer)
	assert.Equal(t, "Salesperson", got.Role)
	assert.Equal(t, "192.168.0.9", got.SourceAddress)
}

func TestPrincipalDropsDeactivatedSessionUser(t *testing.T) {
	user := activeUser(t)
	user.IsActive = false
	h := newHarness(t, &stubRepo{user: user})
	mw := auth.PrincipalMiddleware(auth.NewService(&stubRepo{user: user}), h.tokens, nil)

	var (
		got           shared.Principal
		found, bearer bool
	)
	_, sess := h.serve(t, httptest.NewRequest(http.MethodGet, "/", nil), func(w http.ResponseWriter, r *http.Request) {
		shared.SessionFromContext(r.Context()).SetUser(user.ID)
		mw(principalProbe(&got, &found, &bearer)).ServeHTTP(w, r)
	})

	assert.False(t, found)
	_, ok := sess.UserID()
	assert.False(t, ok)
}

func TestPrincipalStoreOutageFailsClosed(t *testing.T) {
	repo := &stubRepo{user: activeUser(t), err: errors.New("connection refused")}
	h := newHarness(t, repo)
	mw := auth.PrincipalMiddleware(auth.NewService(repo), h.tokens, nil)

	called := false
	res, _ := h.serve(t, httptest.NewRequest(http.MethodGet, "/", nil), func(w http.ResponseWriter, r *http.Request) {
		shared.SessionFromContext(r.Context()).SetUser(7)
		mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })).ServeHTTP(w, r)
	})

	assert.False(t, called)
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
	assert.NotContains(t, res.Body.String(), "connection refused")
}

func TestTokenExpiry(t *testing.T) {
	issuer := auth.NewTokenIssuer("jwt-secret", time.Minute)
	token, _, err := issuer.Issue(activeUser(t))
	require.NoError(t, err)

	later := auth.NewTokenIssuer("jwt-secret", time.Minute)
	later.SetClock(func() time.Time { return time.Now().Add(2 * time.Minute) })
	_, _, err = later.Parse(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestDisabledIssuer(t *testing.T) {
	issuer := auth.NewTokenIssuer("", time.Minute)
	assert.False(t, issuer.Enabled())
	_, _, err := issuer.Parse("abc")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
