package utils

import (
	"testing"

	"doable/internal/models"
)

func TestJWTRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	user := models.User{
		Base:        models.Base{ID: "u1"},
		Email:       "person@example.com",
		DisplayName: "Person",
	}

	token, err := GenerateJWT(user)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := ParseJWT(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != "u1" || claims.Email != "person@example.com" || claims.DisplayName != "Person" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	token, err := GenerateJWT(models.User{Base: models.Base{ID: "u1"}})
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv("JWT_SECRET", "another-secret")
	if _, err := ParseJWT(token); err == nil {
		t.Fatal("token accepted with the wrong secret")
	}
}

func TestJWTRejectsGarbage(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	if _, err := ParseJWT("not-a-token"); err == nil {
		t.Fatal("garbage token accepted")
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := GenerateRefreshToken(models.User{Base: models.Base{ID: "u1"}})
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ParseRefreshToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != "u1" {
		t.Fatalf("claims = %+v", claims)
	}
}
