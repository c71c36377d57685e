package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("unit-test-secret")

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestParseIdentity(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"user_id":      "u-1",
		"display_name": "Jane",
		"email":        "jane@example.com",
		"exp":          time.Now().Add(time.Hour).Unix(),
	})

	ident, err := ParseIdentity(token, testSecret)
	if err != nil {
		t.Fatalf("ParseIdentity: %v", err)
	}
	if ident.UserID != "u-1" || ident.DisplayName != "Jane" {
		t.Fatalf("identity = %+v", ident)
	}
}

func TestParseIdentityRejects(t *testing.T) {
	valid := signToken(t, jwt.MapClaims{"user_id": "u-1"})

	if _, err := ParseIdentity("", testSecret); err == nil {
		t.Fatalf("empty token should fail")
	}
	if _, err := ParseIdentity(valid, []byte("wrong-secret")); err == nil {
		t.Fatalf("wrong secret should fail")
	}

	expired := signToken(t, jwt.MapClaims{
		"user_id": "u-1",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	if _, err := ParseIdentity(expired, testSecret); err == nil {
		t.Fatalf("expired token should fail")
	}

	noUser := signToken(t, jwt.MapClaims{"display_name": "Jane"})
	if _, err := ParseIdentity(noUser, testSecret); err == nil {
		t.Fatalf("token without user_id should fail")
	}
}
