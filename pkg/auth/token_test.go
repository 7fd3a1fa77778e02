package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Helper to generate fresh keys for each test
func generateTestKeys(t *testing.T) ([]byte, []byte) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}

	privBytes := x509.MarshalPKCS1PrivateKey(privateKey)
	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: privBytes,
	})

	pubBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		t.Fatalf("Failed to marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubBytes,
	})

	return privPEM, pubPEM
}

func TestTokenLifecycle(t *testing.T) {
	privPEM, pubPEM := generateTestKeys(t)
	signer, err := NewSigner(privPEM, pubPEM, "test-issuer")
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}

	userID := uuid.New()

	// 1. Generate
	token, err := signer.GenerateToken(userID, RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	// 2. Validate
	claims, err := signer.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}

	// 3. Verify Claims
	if claims.Subject != userID.String() {
		t.Errorf("got subject %s, want %s", claims.Subject, userID)
	}
	if claims.Role != RoleAdmin {
		t.Errorf("got role %s, want %s", claims.Role, RoleAdmin)
	}
}

func TestSecurityScenarios(t *testing.T) {
	privPEM, pubPEM := generateTestKeys(t)
	signer, _ := NewSigner(privPEM, pubPEM, "test-issuer")

	t.Run("expired token is rejected", func(t *testing.T) {
		token, err := signer.GenerateToken(uuid.New(), RoleUser, -time.Minute)
		if err != nil {
			t.Fatalf("GenerateToken failed: %v", err)
		}
		if _, err := signer.ValidateToken(token); err == nil {
			t.Error("expected expired token to fail validation")
		}
	})

	t.Run("token from a different key is rejected", func(t *testing.T) {
		otherPriv, otherPub := generateTestKeys(t)
		otherSigner, err := NewSigner(otherPriv, otherPub, "test-issuer")
		if err != nil {
			t.Fatalf("NewSigner failed: %v", err)
		}
		token, err := otherSigner.GenerateToken(uuid.New(), RoleUser, time.Hour)
		if err != nil {
			t.Fatalf("GenerateToken failed: %v", err)
		}
		if _, err := signer.ValidateToken(token); err == nil {
			t.Error("expected foreign signature to fail validation")
		}
	})

	t.Run("wrong issuer is rejected", func(t *testing.T) {
		otherSigner, err := NewSigner(privPEM, pubPEM, "someone-else")
		if err != nil {
			t.Fatalf("NewSigner failed: %v", err)
		}
		token, err := otherSigner.GenerateToken(uuid.New(), RoleUser, time.Hour)
		if err != nil {
			t.Fatalf("GenerateToken failed: %v", err)
		}
		if _, err := signer.ValidateToken(token); err == nil {
			t.Error("expected mismatched issuer to fail validation")
		}
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		if _, err := signer.ValidateToken("not.a.token"); err == nil {
			t.Error("expected malformed token to fail validation")
		}
	})

	t.Run("verify-only signer cannot mint tokens", func(t *testing.T) {
		verifier, err := NewSignerFromPublicKey(pubPEM, "test-issuer")
		if err != nil {
			t.Fatalf("NewSignerFromPublicKey failed: %v", err)
		}
		if _, err := verifier.GenerateToken(uuid.New(), RoleUser, time.Hour); err == nil {
			t.Error("expected token generation without a private key to fail")
		}
	})
}
