package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVerifier_EmptySecret(t *testing.T) {
	assert.Nil(t, NewVerifier(""))
}

func TestIssueAndParse(t *testing.T) {
	v := NewVerifier("s3cret")
	token, err := v.Issue(Identity{UserID: "u1", DisplayName: "Ana"}, time.Hour)
	require.NoError(t, err)

	id, err := v.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u1", DisplayName: "Ana"}, id)
}

func TestParse_Rejects(t *testing.T) {
	v := NewVerifier("s3cret")
	other := NewVerifier("different")

	expired, err := v.Issue(Identity{UserID: "u1"}, -time.Minute)
	require.NoError(t, err)
	foreign, err := other.Issue(Identity{UserID: "u1"}, time.Hour)
	require.NoError(t, err)
	noSubject, err := v.Issue(Identity{DisplayName: "Ana"}, time.Hour)
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":    expired,
		"foreign":    foreign,
		"no subject": noSubject,
		"alg none":   unsigned,
		"garbage":    "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Parse(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestFromRequest(t *testing.T) {
	v := NewVerifier("s3cret")
	token, err := v.Issue(Identity{UserID: "u1", DisplayName: "Ana"}, time.Hour)
	require.NoError(t, err)

	header := httptest.NewRequest("GET", "/api/concerts/c1", nil)
	header.Header.Set("Authorization", "Bearer "+token)
	id, err := v.FromRequest(header)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)

	query := httptest.NewRequest("GET", "/api/concerts/c1/ws?token="+token, nil)
	id, err = v.FromRequest(query)
	require.NoError(t, err)
	assert.Equal(t, "Ana", id.DisplayName)

	_, err = v.FromRequest(httptest.NewRequest("GET", "/", nil))
	assert.ErrorIs(t, err, ErrNoToken)

	basic := httptest.NewRequest("GET", "/", nil)
	basic.Header.Set("Authorization", "Basic dTpw")
	_, err = v.FromRequest(basic)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
