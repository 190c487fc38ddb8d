package auth

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/HostingCuenca/lexconnect-sub001/pkg/models"
)

func Test_IssueAndParseToken_Roundtrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	u := &models.User{
		ID:        uuid.New(),
		Email:     "ana@example.com",
		Role:      models.RoleLawyer,
		FirstName: "Ana",
		LastName:  "Pérez",
	}
	tok, err := IssueToken(u)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := ParseToken(tok)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Sub != u.ID.String() {
		t.Fatalf("sub: want %s, got %s", u.ID, claims.Sub)
	}
	if claims.Role != string(models.RoleLawyer) {
		t.Fatalf("role: want abogado, got %s", claims.Role)
	}
	if claims.Email != u.Email || claims.FirstName != "Ana" {
		t.Fatalf("claims not carried: %#v", claims)
	}
}

func Test_ParseToken_RejectsTamperedSignature(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	u := &models.User{ID: uuid.New(), Email: "x@x.com", Role: models.RoleClient}
	tok, err := IssueToken(u)
	if err != nil {
		t.Fatal(err)
	}

	parts := strings.Split(tok, ".")
	tampered := parts[0] + "." + parts[1] + "." + "AAAA" + parts[2][4:]
	if _, err := ParseToken(tampered); err == nil {
		t.Fatal("tampered token should not parse")
	}
}

func Test_ParseToken_RejectsWrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret-one")
	u := &models.User{ID: uuid.New(), Email: "x@x.com", Role: models.RoleClient}
	tok, err := IssueToken(u)
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv("JWT_SECRET", "secret-two")
	if _, err := ParseToken(tok); err == nil {
		t.Fatal("token signed with another secret should not parse")
	}
}
