package session

import (
	"strings"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-session-secret-32-bytes-long!")

func TestNewService_EmptySecret(t *testing.T) {
	s, err := NewService(nil)
	assert.ErrorIs(t, err, ErrEmptySecret)
	assert.Nil(t, s)
}

func TestService_IssueVerify(t *testing.T) {
	svc, err := NewService(testSecret)
	require.NoError(t, err)

	id := Identity{AccountID: "acc-1", Email: "a@x.io"}
	token, expiresAt, err := svc.Issue(id)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(DefaultTTL), expiresAt, 2*time.Second)

	got, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, id.AccountID, got.AccountID)
	assert.Equal(t, id.Email, got.Email)
	assert.True(t, expiresAt.Equal(got.ExpiresAt))
}

func TestService_Expiry(t *testing.T) {
	issuedAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	issuer, err := NewService(testSecret, WithClock(func() time.Time { return issuedAt }))
	require.NoError(t, err)

	token, expiresAt, err := issuer.Issue(Identity{AccountID: "acc-1", Email: "a@x.io"})
	require.NoError(t, err)
	assert.Equal(t, issuedAt.Add(5*time.Minute), expiresAt)

	tests := []struct {
		name    string
		offset  time.Duration
		wantErr bool
	}{
		{name: "fresh", offset: 0},
		{name: "four minutes later", offset: 4 * time.Minute},
		{name: "six minutes later", offset: 6 * time.Minute, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := issuedAt.Add(tt.offset)
			verifier, err := NewService(testSecret, WithClock(func() time.Time { return at }))
			require.NoError(t, err)

			_, err = verifier.Verify(token)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOrExpiredSession)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestService_CustomTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewService(testSecret, WithTTL(time.Hour), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	_, expiresAt, err := svc.Issue(Identity{AccountID: "acc-1"})
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expiresAt)
	assert.Equal(t, time.Hour, svc.TTL())
}

func TestService_VerifyRejects(t *testing.T) {
	svc, err := NewService(testSecret)
	require.NoError(t, err)

	valid, _, err := svc.Issue(Identity{AccountID: "acc-1", Email: "a@x.io"})
	require.NoError(t, err)

	other, err := NewService([]byte("another-secret"))
	require.NoError(t, err)
	foreign, _, err := other.Issue(Identity{AccountID: "acc-1"})
	require.NoError(t, err)

	otherIssuer, err := NewService(testSecret, WithIssuer("someone-else"))
	require.NoError(t, err)
	wrongIss, _, err := otherIssuer.Issue(Identity{AccountID: "acc-1"})
	require.NoError(t, err)

	// Токен без подписи (alg=none)
	unsigned, err := gojwt.NewWithClaims(gojwt.SigningMethodNone, Claims{
		AccountID: "acc-1",
		RegisteredClaims: gojwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(gojwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not-a-token"},
		{name: "tampered payload", token: tampered},
		{name: "foreign secret", token: foreign},
		{name: "wrong issuer", token: wrongIss},
		{name: "alg none", token: unsigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidOrExpiredSession)
		})
	}
}
