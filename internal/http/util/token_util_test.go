package util

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTokenSigner_IssueAndValidate(t *testing.T) {
	signer := NewTokenSigner([]byte("test-secret"), time.Minute)

	token, err := signer.Issue("abc123")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if !strings.Contains(token, ".") {
		t.Fatalf("expected payload.signature shape, got %q", token)
	}

	if err := signer.Validate("abc123", token); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestTokenSigner_BoundToCode(t *testing.T) {
	signer := NewTokenSigner([]byte("test-secret"), time.Minute)

	token, err := signer.Issue("abc123")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	if err := signer.Validate("other99", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token for another code must be rejected, got %v", err)
	}
}

func TestTokenSigner_WrongSecret(t *testing.T) {
	issuer := NewTokenSigner([]byte("secret-a"), time.Minute)
	verifier := NewTokenSigner([]byte("secret-b"), time.Minute)

	token, err := issuer.Issue("abc123")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if err := verifier.Validate("abc123", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken across secrets, got %v", err)
	}
}

func TestTokenSigner_Expired(t *testing.T) {
	signer := NewTokenSigner([]byte("test-secret"), -time.Minute)

	token, err := signer.Issue("abc123")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if err := signer.Validate("abc123", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token rejection, got %v", err)
	}
}

func TestTokenSigner_Garbage(t *testing.T) {
	signer := NewTokenSigner([]byte("test-secret"), time.Minute)

	for _, token := range []string{
		"",
		"no-dot",
		"!!!.###",
		"dG9rZW4.c2ln",
		"a.b.c",
	} {
		if err := signer.Validate("abc123", token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestTokenSigner_MissingSecret(t *testing.T) {
	signer := NewTokenSigner(nil, time.Minute)

	if _, err := signer.Issue("abc123"); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret from Issue, got %v", err)
	}
	if err := signer.Validate("abc123", "x.y"); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret from Validate, got %v", err)
	}
}
