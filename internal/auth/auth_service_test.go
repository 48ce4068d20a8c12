package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"
)

// testKeys 生成一对临时 RSA 密钥（PEM）。
func testKeys(t *testing.T) (privatePEM, publicPEM []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privatePEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub})
	return privatePEM, publicPEM
}

func TestIssueAndValidate(t *testing.T) {
	priv, pub := testKeys(t)
	svc, err := NewAuthService(priv, pub, time.Minute)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	token, err := svc.IssueAccessToken(42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != 42 || claims.TokenType != TokenTypeAccess {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerifyOnlyService(t *testing.T) {
	priv, pub := testKeys(t)
	issuer, _ := NewAuthService(priv, pub, time.Minute)
	verifier, err := NewAuthService(nil, pub, time.Minute)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	if _, err := verifier.IssueAccessToken(1); !errors.Is(err, ErrSigningDisabled) {
		t.Fatalf("expected ErrSigningDisabled, got %v", err)
	}
	token, _ := issuer.IssueAccessToken(7)
	if _, err := verifier.ValidateToken(token); err != nil {
		t.Fatalf("verifier should accept issuer tokens: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	priv, pub := testKeys(t)
	otherPriv, otherPub := testKeys(t)
	svc, _ := NewAuthService(priv, pub, time.Minute)
	other, _ := NewAuthService(otherPriv, otherPub, time.Minute)
	expired, _ := NewAuthService(priv, pub, -time.Minute)

	foreign, _ := other.IssueAccessToken(1)
	stale, _ := expired.IssueAccessToken(1)
	for name, token := range map[string]string{"empty": "", "garbage": "not-a-jwt", "foreign key": foreign, "expired": stale} {
		if _, err := svc.ValidateToken(token); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
