package admin

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/HostingCuenca/lexconnect-sub001/internal/auth"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/audit"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/models"
)

/* ============================================================================
   Helpers
   ============================================================================ */

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	_ = godotenv.Load()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is empty")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.LawyerProfile{}, &models.Consultation{},
		&models.Message{}, &models.Payment{}, &models.ActivityLog{}, &models.Notification{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		sql := `
TRUNCATE TABLE
	notifications,
	activity_logs,
	payments,
	messages,
	consultations,
	lawyer_profiles,
	users
RESTART IDENTITY CASCADE`
		if err := db.Exec(sql).Error; err != nil {
			t.Logf("truncate failed (ignored): %v", err)
		}
	})

	return db
}

func withTx(t *testing.T, db *gorm.DB, fn func(tx *gorm.DB)) {
	t.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		t.Fatalf("begin tx: %v", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	fn(tx)
	if err := tx.Commit().Error; err != nil {
		t.Fatalf("commit tx: %v", err)
	}
}

func injectAuth(userID uuid.UUID, role models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("userID", userID.String())
		c.Locals("email", "admin@x.com")
		c.Locals("role", string(role))
		c.Locals("firstName", "Admin")
		c.Locals("lastName", "User")
		return c.Next()
	}
}

func newTestApp(h *Handler, adminID uuid.UUID) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Use(injectAuth(adminID, models.RoleAdmin))

	app.Get("/api/admin/lawyers/pending", h.PendingLawyers)
	app.Post("/api/admin/lawyers/pending", h.BatchVerify)
	app.Post("/api/admin/lawyers/:id/verify", h.VerifyLawyer)
	app.Get("/api/admin/lawyers/:id/verify", h.VerificationDetail)
	app.Patch("/api/admin/users/:id/active", h.SetUserActive)
	app.Delete("/api/admin/users/:id", h.DeleteUser)

	return app
}

func testHandler(tx *gorm.DB) *Handler {
	return NewHandler(tx, audit.NewRecorder(tx, zap.NewNop()))
}

func seedUser(t *testing.T, tx *gorm.DB, role models.Role) uuid.UUID {
	t.Helper()
	id := uuid.New()
	u := models.User{
		ID:           id,
		Email:        "u_" + id.String()[:8] + "@x.com",
		PasswordHash: "x",
		Role:         role,
		FirstName:    "Test",
		Active:       true,
	}
	if err := tx.Create(&u).Error; err != nil {
		t.Fatal(err)
	}
	return id
}

func seedLawyer(t *testing.T, tx *gorm.DB) (userID, profileID uuid.UUID) {
	t.Helper()
	userID = seedUser(t, tx, models.RoleLawyer)
	p := models.LawyerProfile{ID: uuid.New(), UserID: userID, LicenseNumber: "LIC-" + userID.String()[:6]}
	if err := tx.Create(&p).Error; err != nil {
		t.Fatal(err)
	}
	return userID, p.ID
}

/* ============================================================================
   Tests — single verification
   ============================================================================ */

// Approving flips the flag, records history and notifies the lawyer.
func Test_Verify_Approve_NotifiesAndLogs(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		lawyerUser, profileID := seedLawyer(t, tx)
		adminID := seedUser(t, tx, models.RoleAdmin)
		app := newTestApp(testHandler(tx), adminID)

		body := strings.NewReader(`{"action": "approve"}`)
		req := httptest.NewRequest("POST", "/api/admin/lawyers/"+profileID.String()+"/verify", body)
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)
		if resp.StatusCode != 200 {
			t.Fatalf("want 200, got %d", resp.StatusCode)
		}

		var p models.LawyerProfile
		_ = tx.First(&p, "id = ?", profileID).Error
		if !p.Verified {
			t.Fatal("profile should be verified")
		}

		var n models.Notification
		if err := tx.First(&n, "user_id = ?", lawyerUser).Error; err != nil {
			t.Fatalf("lawyer should be notified: %v", err)
		}
		if n.Title != "Cuenta verificada" {
			t.Fatalf("notification title: %q", n.Title)
		}

		var logs int64
		_ = tx.Model(&models.ActivityLog{}).
			Where("resource_type = ? AND resource_id = ?", "lawyer_profile", profileID).
			Count(&logs).Error
		if logs != 1 {
			t.Fatalf("want 1 activity log, got %d", logs)
		}
	})
}

// Rejection includes the reviewer notes in the notification.
func Test_Verify_Reject_IncludesNotes(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		lawyerUser, profileID := seedLawyer(t, tx)
		adminID := seedUser(t, tx, models.RoleAdmin)
		app := newTestApp(testHandler(tx), adminID)

		body := strings.NewReader(`{"action": "reject", "notes": "licencia ilegible"}`)
		req := httptest.NewRequest("POST", "/api/admin/lawyers/"+profileID.String()+"/verify", body)
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)
		if resp.StatusCode != 200 {
			t.Fatalf("want 200, got %d", resp.StatusCode)
		}

		var n models.Notification
		if err := tx.First(&n, "user_id = ?", lawyerUser).Error; err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(n.Message, "Motivo: licencia ilegible") {
			t.Fatalf("rejection notes missing from notification: %q", n.Message)
		}
	})
}

// The GET side is read-only and returns the recorded history.
func Test_VerificationDetail_ReturnsHistory(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		_, profileID := seedLawyer(t, tx)
		adminID := seedUser(t, tx, models.RoleAdmin)
		app := newTestApp(testHandler(tx), adminID)

		post := httptest.NewRequest("POST", "/api/admin/lawyers/"+profileID.String()+"/verify",
			strings.NewReader(`{"action": "approve"}`))
		post.Header.Set("Content-Type", "application/json")
		if resp, _ := app.Test(post); resp.StatusCode != 200 {
			t.Fatalf("verify failed: %d", resp.StatusCode)
		}

		req := httptest.NewRequest("GET", "/api/admin/lawyers/"+profileID.String()+"/verify", nil)
		resp, _ := app.Test(req)
		if resp.StatusCode != 200 {
			t.Fatalf("want 200, got %d", resp.StatusCode)
		}

		var out struct {
			Data struct {
				History []struct {
					Action string `json:"Action"`
				} `json:"verification_history"`
			} `json:"data"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		if len(out.Data.History) != 1 {
			t.Fatalf("want 1 history entry, got %d", len(out.Data.History))
		}
	})
}

/* ============================================================================
   Tests — batch verification
   ============================================================================ */

// Two good ids and one unknown: both good ones are verified, the bad one is
// reported per-item, and the response stays 200.
func Test_BatchVerify_PartialFailure(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		_, p1 := seedLawyer(t, tx)
		_, p2 := seedLawyer(t, tx)
		missing := uuid.NewString()

		adminID := seedUser(t, tx, models.RoleAdmin)
		app := newTestApp(testHandler(tx), adminID)

		body := strings.NewReader(`{
			"lawyer_ids": ["` + p1.String() + `", "` + missing + `", "` + p2.String() + `"],
			"action": "approve"
		}`)
		req := httptest.NewRequest("POST", "/api/admin/lawyers/pending", body)
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)
		if resp.StatusCode != 200 {
			t.Fatalf("want 200, got %d", resp.StatusCode)
		}

		var out struct {
			Data struct {
				Results []BatchResult `json:"results"`
			} `json:"data"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		if len(out.Data.Results) != 3 {
			t.Fatalf("want 3 results, got %d", len(out.Data.Results))
		}

		ok, failed := 0, 0
		for _, r := range out.Data.Results {
			if r.Success {
				ok++
			} else {
				failed++
				if r.LawyerID != missing {
					t.Fatalf("unexpected failure for %s: %s", r.LawyerID, r.Error)
				}
			}
		}
		if ok != 2 || failed != 1 {
			t.Fatalf("want 2 ok / 1 failed, got %d / %d", ok, failed)
		}

		var verified int64
		_ = tx.Model(&models.LawyerProfile{}).Where("verified = ?", true).Count(&verified).Error
		if verified != 2 {
			t.Fatalf("want 2 verified profiles, got %d", verified)
		}
	})
}

// Pending listing only shows unverified profiles.
func Test_PendingLawyers_ExcludesVerified(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		_, p1 := seedLawyer(t, tx)
		_, _ = seedLawyer(t, tx)
		if err := tx.Model(&models.LawyerProfile{}).Where("id = ?", p1).Update("verified", true).Error; err != nil {
			t.Fatal(err)
		}

		adminID := seedUser(t, tx, models.RoleAdmin)
		app := newTestApp(testHandler(tx), adminID)

		req := httptest.NewRequest("GET", "/api/admin/lawyers/pending?page=1&pageSize=10", nil)
		resp, _ := app.Test(req)
		if resp.StatusCode != 200 {
			t.Fatalf("want 200, got %d", resp.StatusCode)
		}

		var out struct {
			Data struct {
				Total int64 `json:"total"`
			} `json:"data"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		if out.Data.Total != 1 {
			t.Fatalf("want 1 pending, got %d", out.Data.Total)
		}
	})
}

/* ============================================================================
   Tests — user management
   ============================================================================ */

func Test_SetUserActive_Deactivates(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		target := seedUser(t, tx, models.RoleClient)
		adminID := seedUser(t, tx, models.RoleAdmin)
		app := newTestApp(testHandler(tx), adminID)

		body := strings.NewReader(`{"active": false}`)
		req := httptest.NewRequest("PATCH", "/api/admin/users/"+target.String()+"/active", body)
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)
		if resp.StatusCode != 200 {
			t.Fatalf("want 200, got %d", resp.StatusCode)
		}

		var u models.User
		_ = tx.First(&u, "id = ?", target).Error
		if u.Active {
			t.Fatal("user should be inactive")
		}
	})
}

// Deleting a user with consultations is refused and the message names the
// blocking records.
func Test_DeleteUser_BlockedByDependencies(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		clientID := seedUser(t, tx, models.RoleClient)
		cs := models.Consultation{ID: uuid.New(), ClientID: &clientID, Title: "Consulta", Status: models.ConsultationPending}
		if err := tx.Create(&cs).Error; err != nil {
			t.Fatal(err)
		}

		adminID := seedUser(t, tx, models.RoleAdmin)
		app := newTestApp(testHandler(tx), adminID)

		req := httptest.NewRequest("DELETE", "/api/admin/users/"+clientID.String(), nil)
		resp, _ := app.Test(req)
		if resp.StatusCode != 409 {
			t.Fatalf("want 409, got %d", resp.StatusCode)
		}

		var out struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		if !strings.Contains(out.Message, "consultation") {
			t.Fatalf("message should name the blocking records, got %q", out.Message)
		}

		var still models.User
		if err := tx.First(&still, "id = ?", clientID).Error; err != nil {
			t.Fatal("user should still exist")
		}
	})
}

func Test_DeleteUser_CleanUser_OK(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		target := seedUser(t, tx, models.RoleClient)
		adminID := seedUser(t, tx, models.RoleAdmin)
		app := newTestApp(testHandler(tx), adminID)

		req := httptest.NewRequest("DELETE", "/api/admin/users/"+target.String(), nil)
		resp, _ := app.Test(req)
		if resp.StatusCode != 200 {
			t.Fatalf("want 200, got %d", resp.StatusCode)
		}

		var gone models.User
		err := tx.First(&gone, "id = ?", target).Error
		if err == nil {
			t.Fatal("user should be deleted")
		}
	})
}
