package token

import (
	"strings"
	"testing"
	"time"

	"github.com/DukeRupert/tollgate/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newPair(t *testing.T) (*Verifier, *Issuer) {
	t.Helper()
	v, err := NewVerifier(testSecret, "")
	require.NoError(t, err)
	i, err := NewIssuer(testSecret, "", time.Hour)
	require.NoError(t, err)
	return v, i
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	_, err := NewVerifier(nil, "")
	assert.Error(t, err)

	_, err = NewVerifier([]byte("short"), "")
	assert.Error(t, err)
}

func TestVerify_RoundTrip(t *testing.T) {
	v, i := newPair(t)

	raw, exp, err := i.Issue(domain.Principal{Email: "owner@example.com", Role: domain.RoleUser})
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	p, err := v.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", p.Email)
	assert.Equal(t, domain.RoleUser, p.Role)
	assert.False(t, p.IsAdmin())
}

func TestVerify_AdministratorRole(t *testing.T) {
	v, i := newPair(t)

	raw, _, err := i.Issue(domain.Principal{Email: "ops@example.com", Role: domain.RoleAdmin})
	require.NoError(t, err)

	p, err := v.Verify(raw)
	require.NoError(t, err)
	assert.True(t, p.IsAdmin())
}

func TestVerify_Expired(t *testing.T) {
	v, i := newPair(t)
	i.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	raw, _, err := i.Issue(domain.Principal{Email: "late@example.com"})
	require.NoError(t, err)

	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestVerify_WrongSecret(t *testing.T) {
	v, _ := newPair(t)
	other, err := NewIssuer([]byte(strings.Repeat("x", 40)), "", time.Hour)
	require.NoError(t, err)

	raw, _, err := other.Issue(domain.Principal{Email: "a@example.com"})
	require.NoError(t, err)

	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestVerify_Malformed(t *testing.T) {
	v, _ := newPair(t)

	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		_, err := v.Verify(raw)
		assert.ErrorIs(t, err, domain.ErrInvalidToken, "token %q", raw)
	}
}

func TestVerify_MissingExpiry(t *testing.T) {
	v, _ := newPair(t)

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "forever@example.com",
	}).SignedString(testSecret)
	require.NoError(t, err)

	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestVerify_RejectsNoneAlgorithm(t *testing.T) {
	v, _ := newPair(t)

	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "mallory@example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestVerify_SubjectFallbackAndNormalization(t *testing.T) {
	v, _ := newPair(t)

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "  Mixed.Case@Example.com ",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)

	p, err := v.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "mixed.case@example.com", p.Email)
}

func TestVerify_Issuer(t *testing.T) {
	v, err := NewVerifier(testSecret, "tollgate")
	require.NoError(t, err)

	good, err := NewIssuer(testSecret, "tollgate", time.Hour)
	require.NoError(t, err)
	bad, err := NewIssuer(testSecret, "someone-else", time.Hour)
	require.NoError(t, err)

	raw, _, _ := good.Issue(domain.Principal{Email: "a@example.com"})
	_, err = v.Verify(raw)
	assert.NoError(t, err)

	raw, _, _ = bad.Issue(domain.Principal{Email: "a@example.com"})
	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}
