package util

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrMissingSecret = errors.New("delete secret is not configured")
)

const (
	payloadLen = 12 // 8-byte expiry + 4 random bytes
	sigLen     = 16 // truncated HMAC-SHA256
)

// TokenSigner mints the compact tokens handed back when an anonymous link
// is created. The token is the only proof of creatorship for unowned links,
// letting the creator delete the link before the reaper does. Tokens are
// bound to a single code and carry their own expiry.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenSigner returns a signer whose tokens expire after ttl.
func NewTokenSigner(secret []byte, ttl time.Duration) *TokenSigner {
	return &TokenSigner{secret: secret, ttl: ttl}
}

// Issue mints a token for the given short code.
func (s *TokenSigner) Issue(code string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrMissingSecret
	}

	payload := make([]byte, payloadLen)
	binary.BigEndian.PutUint64(payload, uint64(time.Now().Add(s.ttl).Unix()))
	if _, err := rand.Read(payload[8:]); err != nil {
		return "", err
	}

	enc := base64.RawURLEncoding
	return enc.EncodeToString(payload) + "." + enc.EncodeToString(s.sign(code, payload)), nil
}

// Validate checks that token was issued for code and has not expired.
func (s *TokenSigner) Validate(code, token string) error {
	if len(s.secret) == 0 {
		return ErrMissingSecret
	}

	payloadPart, sigPart, ok := strings.Cut(token, ".")
	if !ok {
		return ErrInvalidToken
	}
	enc := base64.RawURLEncoding
	payload, err := enc.DecodeString(payloadPart)
	if err != nil || len(payload) != payloadLen {
		return ErrInvalidToken
	}
	sig, err := enc.DecodeString(sigPart)
	if err != nil || !hmac.Equal(sig, s.sign(code, payload)) {
		return ErrInvalidToken
	}

	expires := int64(binary.BigEndian.Uint64(payload))
	if time.Now().Unix() > expires {
		return ErrInvalidToken
	}
	return nil
}

func (s *TokenSigner) sign(code string, payload []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	mac.Write([]byte(code))
	return mac.Sum(nil)[:sigLen]
}
