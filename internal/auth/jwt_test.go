package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/tokmz/pawchat/pkg/errors"
)

func newJWT(t *testing.T) *JWT {
	t.Helper()
	j, err := New(Config{Secret: "test-secret", Issuer: "pawchat", Expiration: time.Hour})
	require.NoError(t, err)
	return j
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrInvalidSecret)
}

func TestIssueVerify(t *testing.T) {
	j := newJWT(t)
	user := uuid.New()
	token, err := j.Issue(user)
	require.NoError(t, err)

	got, err := j.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, user, got)
}

func TestVerifyRejects(t *testing.T) {
	j := newJWT(t)
	user := uuid.New()

	t.Run("expired", func(t *testing.T) {
		token, err := j.Issue(user)
		require.NoError(t, err)
		later := newJWT(t)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err = later.Verify(token)
		assert.Equal(t, "token expired", apperr.From(err, nil).Message)
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := New(Config{Secret: "other", Issuer: "pawchat"})
		require.NoError(t, err)
		token, err := other.Issue(user)
		require.NoError(t, err)
		_, err = j.Verify(token)
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("none algorithm", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
			UserID: user.String(),
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "pawchat",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = j.Verify(token)
		assert.Error(t, err)
	})

	t.Run("bad user id", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
			UserID: "rex",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "pawchat",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = j.Verify(token)
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})
}

func TestAuthenticate(t *testing.T) {
	user := uuid.New()
	j := newJWT(t)
	token, err := j.Issue(user)
	require.NoError(t, err)
	ctx := context.Background()

	r := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	got, err := j.Authenticate(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, user, got)

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	got, err = j.Authenticate(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, user, got)

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	_, err = j.Authenticate(ctx, r)
	assert.Equal(t, ErrMissingToken, err)

	r = httptest.NewRequest(http.MethodGet, "/ws/"+user.String()+"?token="+token, nil)
	_, err = j.Authenticate(WithExpectedUser(ctx, user.String()), r)
	assert.NoError(t, err)

	_, err = j.Authenticate(WithExpectedUser(ctx, uuid.NewString()), r)
	assert.Equal(t, ErrUserMismatch, err)

	_, err = j.Authenticate(WithExpectedUser(ctx, "not-a-uuid"), r)
	assert.Equal(t, ErrUserMismatch, err)
}
