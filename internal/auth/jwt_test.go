package auth

import (
	"testing"
	"time"
)

func testJWTManager() *JWTManager {
	return NewJWTManager("test-secret-key", 15*time.Minute, 7*24*time.Hour)
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	m := testJWTManager()

	claims := UserClaims{
		UserID:           "user-1",
		Email:            "trader@example.com",
		SubscriptionTier: "pro",
		IsAdmin:          false,
	}

	token, err := m.GenerateAccessToken(claims)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	got, err := m.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}

	if got.UserID != claims.UserID || got.Email != claims.Email {
		t.Errorf("claims round-trip mismatch: %+v", got)
	}
	if got.SubscriptionTier != "pro" {
		t.Errorf("SubscriptionTier = %q, want pro", got.SubscriptionTier)
	}
	if got.IsAdmin {
		t.Error("IsAdmin should be false")
	}
}

// TestAdminClaimSurvivesRoundTrip admin access rides on the explicit claim,
// so it must survive the token round-trip intact
func TestAdminClaimSurvivesRoundTrip(t *testing.T) {
	m := testJWTManager()

	token, err := m.GenerateAccessToken(UserClaims{UserID: "admin-1", IsAdmin: true})
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	got, err := m.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}
	if !got.IsAdmin {
		t.Error("IsAdmin claim lost in round-trip")
	}
}

func TestValidateAccessTokenWrongSecret(t *testing.T) {
	m := testJWTManager()
	other := NewJWTManager("different-secret", 15*time.Minute, 7*24*time.Hour)

	token, err := m.GenerateAccessToken(UserClaims{UserID: "user-1"})
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := other.ValidateAccessToken(token); err == nil {
		t.Error("token signed with a different secret validated")
	}
}

func TestValidateAccessTokenExpired(t *testing.T) {
	m := NewJWTManager("test-secret-key", -time.Minute, time.Hour)

	token, err := m.GenerateAccessToken(UserClaims{UserID: "user-1"})
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := m.ValidateAccessToken(token); err == nil {
		t.Error("expired token validated")
	}
}

func TestValidateAccessTokenGarbage(t *testing.T) {
	m := testJWTManager()

	for _, bad := range []string{"", "not.a.jwt", "aaa.bbb.ccc"} {
		if _, err := m.ValidateAccessToken(bad); err == nil {
			t.Errorf("garbage token %q validated", bad)
		}
	}
}

func TestGenerateRefreshTokenUnique(t *testing.T) {
	m := testJWTManager()

	a, err := m.GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken failed: %v", err)
	}
	b, err := m.GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken failed: %v", err)
	}
	if a == b {
		t.Error("two refresh tokens are identical")
	}
}

func TestGenerateTokenPair(t *testing.T) {
	m := testJWTManager()

	pair, err := m.GenerateTokenPair(UserClaims{UserID: "user-1"})
	if err != nil {
		t.Fatalf("GenerateTokenPair failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Error("token pair has empty tokens")
	}
	if pair.TokenType != "Bearer" {
		t.Errorf("TokenType = %q, want Bearer", pair.TokenType)
	}
	if pair.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Errorf("ExpiresIn = %d", pair.ExpiresIn)
	}
}
