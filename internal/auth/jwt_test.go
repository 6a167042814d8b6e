package auth

import (
	"testing"
	"time"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "absengo-kiosk"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("1001", RoleStudent, "Budi", testIssuer, testKey, 15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := Parse(pair.AccessToken, testKey, testIssuer)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "1001" || claims.Role != RoleStudent || claims.Name != "Budi" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	pair, _ := Issue("1001", RoleStudent, "", testIssuer, testKey, time.Minute, time.Hour)
	if _, err := Parse(pair.AccessToken, "other-key", testIssuer); err == nil {
		t.Fatal("expected error for wrong signing key")
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	pair, _ := Issue("1001", RoleTeacher, "", "someone-else", testKey, time.Minute, time.Hour)
	if _, err := Parse(pair.AccessToken, testKey, testIssuer); err == nil {
		t.Fatal("expected issuer mismatch error")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	pair, _ := Issue("1001", RoleStudent, "", testIssuer, testKey, -time.Minute, time.Hour)
	if _, err := Parse(pair.AccessToken, testKey, testIssuer); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("rahasia123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "rahasia123") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "salah") {
		t.Error("wrong password accepted")
	}
}
