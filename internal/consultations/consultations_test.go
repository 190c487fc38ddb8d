package consultations

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

	"github.com/HostingCuenca/lexconnect-sub001/pkg/audit"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/models"
)

/* ============================================================================
   Helpers
   ============================================================================ */

// openTestDB loads TEST_DATABASE_URL, opens a real Postgres connection,
// runs migrations, and registers a cleanup that truncates test tables after run.
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
		&models.User{}, &models.LawyerProfile{}, &models.LegalSpecialty{},
		&models.LawyerService{}, &models.LawyerDocument{},
		&models.Consultation{}, &models.Message{}, &models.Payment{},
		&models.ActivityLog{}, &models.Notification{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// Truncate AFTER each test (data survives within a single test).
	t.Cleanup(func() {
		sql := `
TRUNCATE TABLE
	notifications,
	activity_logs,
	payments,
	messages,
	consultations,
	lawyer_documents,
	lawyer_services,
	lawyer_specialties,
	legal_specialties,
	lawyer_profiles,
	users
RESTART IDENTITY CASCADE`
		if err := db.Exec(sql).Error; err != nil {
			t.Logf("truncate failed (ignored): %v", err)
		}
	})

	return db
}

// withTx wraps a function in a DB transaction and commits it at the end.
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

// injectAuth sets the locals RequireAuth would set, without a real JWT.
func injectAuth(userID uuid.UUID, role models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("userID", userID.String())
		c.Locals("email", "test@x.com")
		c.Locals("role", string(role))
		c.Locals("firstName", "Test")
		c.Locals("lastName", "User")
		return c.Next()
	}
}

func newTestApp(h *Handler, userID uuid.UUID, role models.Role) *fiber.App {
	app := fiber.New()
	app.Use(injectAuth(userID, role))

	app.Get("/api/consultations", h.List)
	app.Get("/api/consultations/:id", h.Get)
	app.Post("/api/consultations/:id/accept", h.Accept)
	app.Put("/api/consultations/:id/status", h.UpdateStatus)
	app.Get("/api/consultations/:id/messages", h.ListMessages)
	app.Post("/api/consultations/:id/messages", h.PostMessage)

	return app
}

func testHandler(tx *gorm.DB) *Handler {
	return NewHandler(tx, audit.NewRecorder(tx, zap.NewNop()))
}

type seedResult struct {
	ClientID     uuid.UUID // user
	LawyerUserID uuid.UUID // user
	ProfileID    uuid.UUID // lawyer profile
	ConsID       uuid.UUID
}

func seedUser(t *testing.T, tx *gorm.DB, role models.Role) uuid.UUID {
	t.Helper()
	id := uuid.New()
	u := models.User{
		ID:           id,
		Email:        strings.ToLower(string(role)[:2]) + "_" + id.String()[:8] + "@x.com",
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

// seedConsultation inserts a client, a lawyer with profile, and one
// consultation with the given status assigned to that profile.
func seedConsultation(t *testing.T, tx *gorm.DB, status models.ConsultationStatus) seedResult {
	t.Helper()
	clientID := seedUser(t, tx, models.RoleClient)
	lawyerUserID := seedUser(t, tx, models.RoleLawyer)

	profile := models.LawyerProfile{ID: uuid.New(), UserID: lawyerUserID}
	if err := tx.Create(&profile).Error; err != nil {
		t.Fatal(err)
	}

	cs := models.Consultation{
		ID:       uuid.New(),
		ClientID: &clientID,
		LawyerID: &profile.ID,
		Title:    "Consulta de prueba",
		Status:   status,
	}
	if err := tx.Create(&cs).Error; err != nil {
		t.Fatal(err)
	}

	return seedResult{ClientID: clientID, LawyerUserID: lawyerUserID, ProfileID: profile.ID, ConsID: cs.ID}
}

/* ============================================================================
   Tests — accept semantics
   ============================================================================ */

// The assigned lawyer accepts a pending consultation; price and notes stick.
func Test_Accept_Pending_OK(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		s := seedConsultation(t, tx, models.ConsultationPending)
		app := newTestApp(testHandler(tx), s.LawyerUserID, models.RoleLawyer)

		body := strings.NewReader(`{"estimated_price": 150.5, "lawyer_notes": "revisar contrato"}`)
		req := httptest.NewRequest("POST", "/api/consultations/"+s.ConsID.String()+"/accept", body)
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)
		if resp.StatusCode != 200 {
			t.Fatalf("want 200, got %d", resp.StatusCode)
		}

		var cs models.Consultation
		if err := tx.First(&cs, "id = ?", s.ConsID).Error; err != nil {
			t.Fatal(err)
		}
		if cs.Status != models.ConsultationAccepted {
			t.Fatalf("status: want aceptada, got %s", cs.Status)
		}
		if cs.EstimatedPrice == nil || *cs.EstimatedPrice != 150.5 {
			t.Fatalf("estimated price not stored: %v", cs.EstimatedPrice)
		}
		if cs.LawyerNotes != "revisar contrato" {
			t.Fatalf("lawyer notes not stored: %q", cs.LawyerNotes)
		}

		var logs int64
		_ = tx.Model(&models.ActivityLog{}).
			Where("action = ? AND resource_id = ?", "consultation_accept", s.ConsID).
			Count(&logs).Error
		if logs != 1 {
			t.Fatalf("want 1 accept log entry, got %d", logs)
		}

		var n models.Notification
		if err := tx.First(&n, "user_id = ? AND type = ?", s.ClientID, "consultation_accepted").Error; err != nil {
			t.Fatalf("client should be notified: %v", err)
		}
		if n.RelatedID == nil || *n.RelatedID != s.ConsID {
			t.Fatalf("notification should reference the consultation, got %v", n.RelatedID)
		}
	})
}

// A second accept finds the row no longer pending and reports 404.
func Test_Accept_AlreadyAccepted_404(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		s := seedConsultation(t, tx, models.ConsultationAccepted)
		app := newTestApp(testHandler(tx), s.LawyerUserID, models.RoleLawyer)

		req := httptest.NewRequest("POST", "/api/consultations/"+s.ConsID.String()+"/accept", nil)
		resp, _ := app.Test(req)
		if resp.StatusCode != 404 {
			t.Fatalf("want 404, got %d", resp.StatusCode)
		}
	})
}

// A lawyer who is not assigned cannot accept, and the response does not
// reveal whether the consultation exists.
func Test_Accept_OtherLawyer_404(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		s := seedConsultation(t, tx, models.ConsultationPending)

		otherUser := seedUser(t, tx, models.RoleLawyer)
		other := models.LawyerProfile{ID: uuid.New(), UserID: otherUser}
		if err := tx.Create(&other).Error; err != nil {
			t.Fatal(err)
		}

		app := newTestApp(testHandler(tx), otherUser, models.RoleLawyer)
		req := httptest.NewRequest("POST", "/api/consultations/"+s.ConsID.String()+"/accept", nil)
		resp, _ := app.Test(req)
		if resp.StatusCode != 404 {
			t.Fatalf("want 404, got %d", resp.StatusCode)
		}

		var cs models.Consultation
		_ = tx.First(&cs, "id = ?", s.ConsID).Error
		if cs.Status != models.ConsultationPending {
			t.Fatalf("status should stay pendiente, got %s", cs.Status)
		}
	})
}

/* ============================================================================
   Tests — status transitions
   ============================================================================ */

// Completed consultations are frozen for the parties.
func Test_UpdateStatus_CompletedIsImmutable_ForClient(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		s := seedConsultation(t, tx, models.ConsultationCompleted)
		app := newTestApp(testHandler(tx), s.ClientID, models.RoleClient)

		body := strings.NewReader(`{"status": "cancelada"}`)
		req := httptest.NewRequest("PUT", "/api/consultations/"+s.ConsID.String()+"/status", body)
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)
		if resp.StatusCode != 409 {
			t.Fatalf("want 409, got %d", resp.StatusCode)
		}
	})
}

// Admins can still correct a completed consultation.
func Test_UpdateStatus_Completed_AdminOverrides(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		s := seedConsultation(t, tx, models.ConsultationCompleted)
		adminID := seedUser(t, tx, models.RoleAdmin)
		app := newTestApp(testHandler(tx), adminID, models.RoleAdmin)

		body := strings.NewReader(`{"status": "en_proceso"}`)
		req := httptest.NewRequest("PUT", "/api/consultations/"+s.ConsID.String()+"/status", body)
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)
		if resp.StatusCode != 200 {
			t.Fatalf("want 200, got %d", resp.StatusCode)
		}

		var cs models.Consultation
		_ = tx.First(&cs, "id = ?", s.ConsID).Error
		if cs.Status != models.ConsultationInProgress {
			t.Fatalf("status: want en_proceso, got %s", cs.Status)
		}
	})
}

// A stranger client gets 403 on detail.
func Test_Get_StrangerForbidden(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		s := seedConsultation(t, tx, models.ConsultationPending)
		stranger := seedUser(t, tx, models.RoleClient)

		app := newTestApp(testHandler(tx), stranger, models.RoleClient)
		req := httptest.NewRequest("GET", "/api/consultations/"+s.ConsID.String(), nil)
		resp, _ := app.Test(req)
		if resp.StatusCode != 403 {
			t.Fatalf("want 403, got %d", resp.StatusCode)
		}
	})
}

/* ============================================================================
   Tests — messaging
   ============================================================================ */

// Listing messages marks everything addressed to the caller as read.
func Test_ListMessages_MarksUnreadAsRead(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		s := seedConsultation(t, tx, models.ConsultationAccepted)

		for i := 0; i < 2; i++ {
			m := models.Message{
				ConsultationID: s.ConsID,
				SenderID:       s.LawyerUserID,
				RecipientID:    s.ClientID,
				Content:        "hola",
			}
			if err := tx.Create(&m).Error; err != nil {
				t.Fatal(err)
			}
		}

		app := newTestApp(testHandler(tx), s.ClientID, models.RoleClient)
		req := httptest.NewRequest("GET", "/api/consultations/"+s.ConsID.String()+"/messages", nil)
		resp, _ := app.Test(req)
		if resp.StatusCode != 200 {
			t.Fatalf("want 200, got %d", resp.StatusCode)
		}

		var out struct {
			Data []models.Message `json:"data"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		if len(out.Data) != 2 {
			t.Fatalf("want 2 messages, got %d", len(out.Data))
		}

		var unread int64
		_ = tx.Model(&models.Message{}).
			Where("consultation_id = ? AND recipient_id = ? AND read = ?", s.ConsID, s.ClientID, false).
			Count(&unread).Error
		if unread != 0 {
			t.Fatalf("want 0 unread after listing, got %d", unread)
		}
	})
}

// The recipient is derived server-side: a client's message lands with the
// lawyer's user account.
func Test_PostMessage_RecipientIsOtherParty(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		s := seedConsultation(t, tx, models.ConsultationAccepted)
		app := newTestApp(testHandler(tx), s.ClientID, models.RoleClient)

		body := strings.NewReader(`{"content": "buenos días"}`)
		req := httptest.NewRequest("POST", "/api/consultations/"+s.ConsID.String()+"/messages", body)
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)
		if resp.StatusCode != 201 {
			t.Fatalf("want 201, got %d", resp.StatusCode)
		}

		var msg models.Message
		if err := tx.First(&msg, "consultation_id = ?", s.ConsID).Error; err != nil {
			t.Fatal(err)
		}
		if msg.RecipientID != s.LawyerUserID {
			t.Fatalf("recipient: want lawyer user %s, got %s", s.LawyerUserID, msg.RecipientID)
		}
	})
}

// Public inquiries have no client account, so the lawyer cannot message back.
func Test_PostMessage_PublicInquiry_NoRecipient_409(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		lawyerUser := seedUser(t, tx, models.RoleLawyer)
		profile := models.LawyerProfile{ID: uuid.New(), UserID: lawyerUser}
		if err := tx.Create(&profile).Error; err != nil {
			t.Fatal(err)
		}
		cs := models.Consultation{
			ID:          uuid.New(),
			LawyerID:    &profile.ID,
			Title:       "Consulta pública",
			Status:      models.ConsultationPending,
			ClientNotes: `{"contact_email":"visitor@x.com"}`,
		}
		if err := tx.Create(&cs).Error; err != nil {
			t.Fatal(err)
		}

		app := newTestApp(testHandler(tx), lawyerUser, models.RoleLawyer)
		body := strings.NewReader(`{"content": "hola"}`)
		req := httptest.NewRequest("POST", "/api/consultations/"+cs.ID.String()+"/messages", body)
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)
		if resp.StatusCode != 409 {
			t.Fatalf("want 409, got %d", resp.StatusCode)
		}
	})
}

// Admins can read any conversation but cannot take part in it.
func Test_PostMessage_AdminForbidden(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		s := seedConsultation(t, tx, models.ConsultationAccepted)
		adminID := seedUser(t, tx, models.RoleAdmin)

		app := newTestApp(testHandler(tx), adminID, models.RoleAdmin)
		body := strings.NewReader(`{"content": "hola"}`)
		req := httptest.NewRequest("POST", "/api/consultations/"+s.ConsID.String()+"/messages", body)
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)
		if resp.StatusCode != 403 {
			t.Fatalf("want 403, got %d", resp.StatusCode)
		}
	})
}

/* ============================================================================
   Tests — list scoping
   ============================================================================ */

// Each lawyer only sees consultations assigned to their own profile.
func Test_List_ScopedToLawyerProfile(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		a := seedConsultation(t, tx, models.ConsultationPending)
		_ = seedConsultation(t, tx, models.ConsultationPending) // someone else's

		app := newTestApp(testHandler(tx), a.LawyerUserID, models.RoleLawyer)
		req := httptest.NewRequest("GET", "/api/consultations?page=1&pageSize=10", nil)
		resp, _ := app.Test(req)
		if resp.StatusCode != 200 {
			t.Fatalf("want 200, got %d", resp.StatusCode)
		}

		var out struct {
			Data struct {
				Total int64 `json:"total"`
				Items []struct {
					ID string `json:"id"`
				} `json:"items"`
			} `json:"data"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		if out.Data.Total != 1 || len(out.Data.Items) != 1 {
			t.Fatalf("want exactly 1 consultation, got total=%d items=%d", out.Data.Total, len(out.Data.Items))
		}
		if out.Data.Items[0].ID != a.ConsID.String() {
			t.Fatalf("wrong consultation listed: %s", out.Data.Items[0].ID)
		}
	})
}
