package webserver_test

import (
	"testing"
	"time"

	"github.com/netaamz/moveo-project/internal/webserver"
)

func TestIssueAndValidateAccessToken(t *testing.T) {
	secret := "test-secret"
	token, err := webserver.IssueAccessToken(secret, "account-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	accountID, err := webserver.ValidateAccessToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if accountID != "account-1" {
		t.Errorf("expected account-1, got %s", accountID)
	}
}

func TestValidateAccessToken_Expired(t *testing.T) {
	secret := "test-secret"
	token, _ := webserver.IssueAccessToken(secret, "account-1", -time.Second)
	if _, err := webserver.ValidateAccessToken(secret, token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestValidateAccessToken_WrongSecret(t *testing.T) {
	token, _ := webserver.IssueAccessToken("secret-a", "account-1", time.Hour)
	if _, err := webserver.ValidateAccessToken("secret-b", token); err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestValidateAccessToken_EmptySubject(t *testing.T) {
	token, _ := webserver.IssueAccessToken("secret", "", time.Hour)
	if _, err := webserver.ValidateAccessToken("secret", token); err == nil {
		t.Error("expected error for token without subject")
	}
}

func TestGenerateRefreshToken(t *testing.T) {
	tok1, err := webserver.GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	tok2, _ := webserver.GenerateRefreshToken()
	if tok1 == tok2 {
		t.Error("expected unique tokens")
	}
	if len(tok1) != 64 { // 32 bytes hex = 64 chars
		t.Errorf("expected 64 char token, got %d", len(tok1))
	}
}
