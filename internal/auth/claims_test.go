package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing"

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken(testSecret, "graynotify", "panel-1", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("GenerateToken() returned empty token")
	}

	claims, err := ParseToken(token, testSecret, "graynotify")
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "panel-1" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "panel-1")
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
	if exp := claims.ExpiresAt.Time; exp.Before(time.Now().Add(59*time.Minute)) || exp.After(time.Now().Add(61*time.Minute)) {
		t.Errorf("ExpiresAt = %v, want about an hour from now", exp)
	}
}

func TestGenerateToken_DefaultTTL(t *testing.T) {
	token, err := GenerateToken(testSecret, "", "script", 0)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	claims, err := ParseToken(token, testSecret, "")
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if exp := claims.ExpiresAt.Time; exp.Before(time.Now().Add(DefaultTTL - time.Minute)) {
		t.Errorf("ExpiresAt = %v, want about %v from now", exp, DefaultTTL)
	}
}

func TestGenerateToken_Errors(t *testing.T) {
	if _, err := GenerateToken("", "graynotify", "panel-1", time.Hour); !errors.Is(err, ErrSecretMissing) {
		t.Errorf("empty secret error = %v, want ErrSecretMissing", err)
	}
	if _, err := GenerateToken(testSecret, "graynotify", "", time.Hour); !errors.Is(err, ErrSubjectEmpty) {
		t.Errorf("empty subject error = %v, want ErrSubjectEmpty", err)
	}
}

func sign(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	return signed
}

func TestParseToken_Rejects(t *testing.T) {
	valid := func() jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Subject:   "panel-1",
			Issuer:    "graynotify",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
	}
	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noExpiry := valid()
	noExpiry.ExpiresAt = nil
	otherIssuer := valid()
	otherIssuer.Issuer = "someone-else"
	noSubject := valid()
	noSubject.Subject = ""

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", sign(t, "another-secret", jwt.SigningMethodHS256, valid())},
		{"wrong algorithm", sign(t, testSecret, jwt.SigningMethodHS512, valid())},
		{"expired", sign(t, testSecret, jwt.SigningMethodHS256, expired)},
		{"no expiry", sign(t, testSecret, jwt.SigningMethodHS256, noExpiry)},
		{"wrong issuer", sign(t, testSecret, jwt.SigningMethodHS256, otherIssuer)},
		{"no subject", sign(t, testSecret, jwt.SigningMethodHS256, noSubject)},
		{"garbage", "not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token, testSecret, "graynotify")
			if !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestParseToken_IssuerOptional(t *testing.T) {
	token := sign(t, testSecret, jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "panel-1",
		Issuer:    "anyone",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	if _, err := ParseToken(token, testSecret, ""); err != nil {
		t.Errorf("ParseToken() without issuer check error = %v", err)
	}
}
