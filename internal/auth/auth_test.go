package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)

	token, expiresAt, err := issuer.Issue(42, "alice")
	if err != nil {
		t.Fatalf("Issue() ошибка: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Error("expiresAt в прошлом")
	}

	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse() ошибка: %v", err)
	}
	id, _ := claims.UserID()
	if id != 42 || claims.Username != "alice" {
		t.Errorf("claims = %d/%s, ожидается 42/alice", id, claims.Username)
	}
}

func TestTokenIssuer_Errors(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)
	past := NewTokenIssuer(testSecret, time.Hour)
	past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := past.Issue(1, "bob")
	if err != nil {
		t.Fatalf("Issue() ошибка: %v", err)
	}

	other := NewTokenIssuer("ffffffffffffffffffffffffffffffff", time.Hour)
	foreign, _, _ := other.Issue(1, "bob")

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1"}).SignedString([]byte(testSecret))
	badSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "abc", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"истёкший токен", expired, ErrTokenExpired},
		{"чужая подпись", foreign, ErrTokenInvalid},
		{"мусор", "not-a-jwt", ErrTokenInvalid},
		{"без exp", noExp, ErrTokenInvalid},
		{"нечисловой subject", badSub, ErrTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Parse(tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse() ошибка = %v, ожидается %v", err, tt.want)
			}
		})
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("secret123", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword() ошибка: %v", err)
	}
	if ok, err := CheckPassword(hash, "secret123"); !ok || err != nil {
		t.Errorf("CheckPassword(верный) = %v, %v", ok, err)
	}
	if ok, err := CheckPassword(hash, "wrong"); ok || err != nil {
		t.Errorf("CheckPassword(неверный) = %v, %v", ok, err)
	}
	if _, err := CheckPassword("not-a-hash", "x"); err == nil {
		t.Error("CheckPassword(битый хэш) должен вернуть ошибку")
	}
}

func TestGenerateAPIKey(t *testing.T) {
	a, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey() ошибка: %v", err)
	}
	b, _ := GenerateAPIKey()
	if len(a) != 64 || strings.Trim(a, "0123456789abcdef") != "" {
		t.Errorf("ключ %q не 64 hex-символа", a)
	}
	if a == b {
		t.Error("два ключа совпали")
	}
}
