package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Purpose scopes a token so an invite token cannot be replayed as a reset token.
type Purpose string

const (
	PurposeInvite        Purpose = "invite"
	PurposePasswordReset Purpose = "reset"
)

var (
	ErrMalformed = errors.New("token: malformed")
	ErrSignature = errors.New("token: invalid signature")
	ErrExpired   = errors.New("token: expired")
	ErrPurpose   = errors.New("token: wrong purpose")
)

// Claims is the payload carried by a signed token.
type Claims struct {
	Purpose   Purpose
	Subject   string
	Binding   string
	ExpiresAt time.Time
}

// Signer issues and verifies HMAC-SHA256 tokens of the form
// purpose.subject.expiry.binding.signature with base64url encoded fields.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner constructs a Signer using the provided secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

// Generate signs subject for purpose. binding is an opaque value that must still
// match at verification time; callers use it to make tokens single use.
func (s *Signer) Generate(purpose Purpose, subject, binding string, ttl time.Duration) (string, time.Time, error) {
	if subject == "" || purpose == "" {
		return "", time.Time{}, fmt.Errorf("token: purpose and subject required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("token: signing secret missing")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	expiresAt := s.now().Add(ttl).UTC().Truncate(time.Second)
	fields := []string{
		encode(string(purpose)),
		encode(subject),
		strconv.FormatInt(expiresAt.Unix(), 10),
		encode(fingerprint(binding)),
	}
	payload := strings.Join(fields, ".")
	return payload + "." + s.sign(payload), expiresAt, nil
}

// Parse validates raw and returns its claims. The binding in the result is the
// fingerprint, compare it with Matches.
func (s *Signer) Parse(raw string, purpose Purpose) (*Claims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 5 {
		return nil, ErrMalformed
	}

	payload := strings.Join(parts[:4], ".")
	if !hmac.Equal([]byte(s.sign(payload)), []byte(parts[4])) {
		return nil, ErrSignature
	}

	gotPurpose, err := decode(parts[0])
	if err != nil {
		return nil, ErrMalformed
	}
	subject, err := decode(parts[1])
	if err != nil {
		return nil, ErrMalformed
	}
	expUnix, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, ErrMalformed
	}
	binding, err := decode(parts[3])
	if err != nil {
		return nil, ErrMalformed
	}

	if Purpose(gotPurpose) != purpose {
		return nil, ErrPurpose
	}
	claims := &Claims{
		Purpose:   Purpose(gotPurpose),
		Subject:   subject,
		Binding:   binding,
		ExpiresAt: time.Unix(expUnix, 0).UTC(),
	}
	if s.now().After(claims.ExpiresAt) {
		return claims, ErrExpired
	}
	return claims, nil
}

// Matches reports whether the token was bound to value.
func (c *Claims) Matches(value string) bool {
	return hmac.Equal([]byte(c.Binding), []byte(fingerprint(value)))
}

func (s *Signer) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func fingerprint(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:8])
}

func encode(v string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(v))
}

func decode(v string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
