package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovr-admin/ovr-admin/internal/auth"
	"github.com/ovr-admin/ovr-admin/internal/shared"
	_ "github.com/ovr-admin/ovr-admin/testing"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := auth.NewVerifier("secret", "ovr-admin")
	token, err := v.Issue(shared.Actor{ID: "u-1", RoleName: "ADMIN"}, time.Minute)
	require.NoError(t, err)

	actor, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, &shared.Actor{ID: "u-1", RoleName: "ADMIN"}, actor)
}

func TestVerifyRejects(t *testing.T) {
	v := auth.NewVerifier("secret", "ovr-admin")

	expired, err := v.Issue(shared.Actor{ID: "u-1", RoleName: "ADMIN"}, -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	other, err := auth.NewVerifier("other", "ovr-admin").Issue(shared.Actor{ID: "u-1"}, time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(other)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	foreign, err := auth.NewVerifier("secret", "someone-else").Issue(shared.Actor{ID: "u-1"}, time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(foreign)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	noSubject, err := v.Issue(shared.Actor{RoleName: "ADMIN"}, time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(noSubject)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(none)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = v.Verify("")
	assert.ErrorIs(t, err, auth.ErrMissingToken)
}

func TestMiddlewareAttachesActor(t *testing.T) {
	v := auth.NewVerifier("secret", "")
	var seen *shared.Actor
	h := auth.NewMiddleware(v, nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.ActorFromContext(r.Context())
	}))

	token, err := v.Issue(shared.Actor{ID: "u-9", RoleName: "USER"}, time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "u-9", seen.ID)
	assert.Equal(t, "USER", seen.RoleName)
}

func TestMiddlewareRejectsMissingAndMalformed(t *testing.T) {
	h := auth.NewMiddleware(auth.NewVerifier("secret", ""), nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	for _, header := range []string{"", "Basic abc", "Bearer not.a.jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/roles", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, header)
		assert.Contains(t, rr.Header().Get("WWW-Authenticate"), "Bearer")
		assert.Contains(t, rr.Body.String(), "UNAUTHENTICATED")
	}
}
