package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedSigner(at time.Time) *Signer {
	s := NewSigner("secret")
	s.now = func() time.Time { return at }
	return s
}

func TestSignerGenerateAndParse(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	signer := fixedSigner(now)

	raw, expiresAt, err := signer.Generate(PurposePasswordReset, "user-1", "$2a$10$hash", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expiresAt)

	claims, err := signer.Parse(raw, PurposePasswordReset)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.True(t, claims.Matches("$2a$10$hash"))
	assert.False(t, claims.Matches("$2a$10$rotated"))
}

func TestSignerRejectsWrongPurpose(t *testing.T) {
	signer := fixedSigner(time.Now())
	raw, _, err := signer.Generate(PurposeInvite, "invite-1", "", time.Hour)
	require.NoError(t, err)

	_, err = signer.Parse(raw, PurposePasswordReset)
	assert.ErrorIs(t, err, ErrPurpose)
}

func TestSignerRejectsTamperedToken(t *testing.T) {
	signer := fixedSigner(time.Now())
	raw, _, err := signer.Generate(PurposeInvite, "invite-1", "", time.Hour)
	require.NoError(t, err)

	parts := strings.Split(raw, ".")
	parts[1] = encode("invite-2")
	_, err = signer.Parse(strings.Join(parts, "."), PurposeInvite)
	assert.ErrorIs(t, err, ErrSignature)

	_, err = signer.Parse("not-a-token", PurposeInvite)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSignerExpired(t *testing.T) {
	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	signer := fixedSigner(issued)
	raw, _, err := signer.Generate(PurposeInvite, "invite-1", "", time.Minute)
	require.NoError(t, err)

	signer.now = func() time.Time { return issued.Add(2 * time.Minute) }
	claims, err := signer.Parse(raw, PurposeInvite)
	assert.ErrorIs(t, err, ErrExpired)
	require.NotNil(t, claims)
	assert.Equal(t, "invite-1", claims.Subject)
}
