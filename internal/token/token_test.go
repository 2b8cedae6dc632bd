package token

import (
	"testing"
	"time"
)

func TestIssueAndValidate(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)

	tok, err := issuer.Issue("p1", "s1", "Alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := issuer.Validate(tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.ParticipantID != "p1" || claims.SessionID != "s1" || claims.Nickname != "Alice" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := NewIssuer("secret-a", time.Hour)
	other := NewIssuer("secret-b", time.Hour)

	tok, err := issuer.Issue("p1", "s1", "Alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := other.Validate(tok); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	issuer := NewIssuer("test-secret", -time.Minute)

	tok, err := issuer.Issue("p1", "s1", "Alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.Validate(tok); err != ErrInvalidToken {
		t.Fatalf("expected expired token rejection, got %v", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)
	if _, err := issuer.Validate("not-a-token"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
