package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTManager_GenerateAndParse(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour)
	token, err := manager.GenerateToken("user-1", "user@example.com", "member", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims, err := manager.ParseToken(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "user@example.com" || claims.Role != "member" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if p := claims.Principal(); p.ID != "user-1" || p.Exempt {
		t.Fatalf("unexpected principal: %+v", p)
	}

	if _, err := manager.ParseToken(token + "tampered"); err == nil {
		t.Fatalf("expected parse error for tampered token")
	}
}

func TestClaims_PrincipalExemption(t *testing.T) {
	cases := map[string]struct {
		claims Claims
		exempt bool
	}{
		"admin role":     {claims: Claims{Role: "Admin"}, exempt: true},
		"unmetered flag": {claims: Claims{Role: "member", Unmetered: true}, exempt: true},
		"plain member":   {claims: Claims{Role: "member"}, exempt: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := tc.claims.Principal().Exempt; got != tc.exempt {
				t.Fatalf("expected exempt=%v, got %v", tc.exempt, got)
			}
		})
	}
}

func TestJWTManager_Rejections(t *testing.T) {
	manager := NewJWTManager("", time.Hour)
	if _, err := manager.GenerateToken("user", "user@example.com", "member", false); err == nil {
		t.Fatalf("expected error when secret is empty")
	}

	manager = NewJWTManager("secret", time.Hour)
	if _, err := manager.GenerateToken(" ", "", "", false); err == nil {
		t.Fatalf("expected error when subject is empty")
	}

	other := NewJWTManager("other-secret", time.Hour)
	token, err := other.GenerateToken("user", "", "member", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected signature mismatch")
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user"}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if _, err := manager.ParseToken(unsigned); err == nil {
		t.Fatalf("expected unsigned token to be rejected")
	}
}
