package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewAccessToken(t *testing.T) {
	tok, err := NewAccessToken("secret", 123, time.Hour)
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}
	if time.Until(tok.Exp) < 59*time.Minute {
		t.Errorf("Exp = %v, want about an hour from now", tok.Exp)
	}

	parsed, err := jwt.ParseWithClaims(tok.Token, &jwt.RegisteredClaims{}, func(*jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("parse: %v", err)
	}
	if sub, _ := parsed.Claims.GetSubject(); sub != "123" {
		t.Errorf("sub = %q, want 123", sub)
	}
}
