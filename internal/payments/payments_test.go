package payments

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
		&models.User{}, &models.LawyerProfile{}, &models.Consultation{}, &models.Payment{},
		&models.ActivityLog{}, &models.Notification{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		sql := `
TRUNCATE TABLE
	notifications,
	activity_logs,
	payments,
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

	app.Get("/api/payments/stats", h.Stats)
	app.Get("/api/payments", h.List)
	app.Post("/api/payments", h.Register)
	app.Put("/api/payments/:id/status", h.UpdateStatus)

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

type seedResult struct {
	ClientID     uuid.UUID
	LawyerUserID uuid.UUID
	ProfileID    uuid.UUID
	ConsID       uuid.UUID
}

func seedConsultation(t *testing.T, tx *gorm.DB) seedResult {
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
		Title:    "Consulta",
		Status:   models.ConsultationAccepted,
	}
	if err := tx.Create(&cs).Error; err != nil {
		t.Fatal(err)
	}
	return seedResult{ClientID: clientID, LawyerUserID: lawyerUserID, ProfileID: profile.ID, ConsID: cs.ID}
}

/* ============================================================================
   Tests — register
   ============================================================================ */

// A completed payment of 1000 splits into 100 / 29 / 871 and gets paid_at.
func Test_Register_SplitsFeesAndSetsPaidAt(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		s := seedConsultation(t, tx)
		adminID := seedUser(t, tx, models.RoleAdmin)
		app := newTestApp(testHandler(tx), adminID, models.RoleAdmin)

		body := strings.NewReader(`{
			"consultation_id": "` + s.ConsID.String() + `",
			"amount": 1000,
			"payment_method": "transferencia",
			"status": "completado"
		}`)
		req := httptest.NewRequest("POST", "/api/payments", body)
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)
		if resp.StatusCode != 201 {
			t.Fatalf("want 201, got %d", resp.StatusCode)
		}

		var pay models.Payment
		if err := tx.First(&pay, "consultation_id = ?", s.ConsID).Error; err != nil {
			t.Fatal(err)
		}
		if pay.PlatformFee != 100 || pay.ProcessingFee != 29 || pay.LawyerEarnings != 871 {
			t.Fatalf("fee split wrong: %f / %f / %f", pay.PlatformFee, pay.ProcessingFee, pay.LawyerEarnings)
		}
		if pay.Status != models.PaymentCompleted || pay.PaidAt == nil {
			t.Fatalf("completed payment should have paid_at, got status=%s paid_at=%v", pay.Status, pay.PaidAt)
		}
	})
}

// The unique index allows at most one payment per consultation.
func Test_Register_DuplicateConsultation_409(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		s := seedConsultation(t, tx)
		adminID := seedUser(t, tx, models.RoleAdmin)
		app := newTestApp(testHandler(tx), adminID, models.RoleAdmin)

		payload := `{"consultation_id": "` + s.ConsID.String() + `", "amount": 500, "payment_method": "tarjeta"}`

		req1 := httptest.NewRequest("POST", "/api/payments", strings.NewReader(payload))
		req1.Header.Set("Content-Type", "application/json")
		resp1, _ := app.Test(req1)
		if resp1.StatusCode != 201 {
			t.Fatalf("first payment want 201, got %d", resp1.StatusCode)
		}

		req2 := httptest.NewRequest("POST", "/api/payments", strings.NewReader(payload))
		req2.Header.Set("Content-Type", "application/json")
		resp2, _ := app.Test(req2)
		if resp2.StatusCode != 409 {
			t.Fatalf("duplicate want 409, got %d", resp2.StatusCode)
		}
	})
}

func Test_Register_UnknownConsultation_404(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		adminID := seedUser(t, tx, models.RoleAdmin)
		app := newTestApp(testHandler(tx), adminID, models.RoleAdmin)

		body := strings.NewReader(`{"consultation_id": "` + uuid.NewString() + `", "amount": 10, "payment_method": "tarjeta"}`)
		req := httptest.NewRequest("POST", "/api/payments", body)
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)
		if resp.StatusCode != 404 {
			t.Fatalf("want 404, got %d", resp.StatusCode)
		}
	})
}

/* ============================================================================
   Tests — status update
   ============================================================================ */

// paid_at is stamped on the first transition into completado and kept after.
func Test_UpdateStatus_PaidAtOnFirstCompletion(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		s := seedConsultation(t, tx)
		pay := models.Payment{
			ConsultationID: s.ConsID,
			Amount:         200, PlatformFee: 20, ProcessingFee: 5.8, LawyerEarnings: 174.2,
			Status: models.PaymentPending, PaymentMethod: "tarjeta",
		}
		if err := tx.Create(&pay).Error; err != nil {
			t.Fatal(err)
		}

		adminID := seedUser(t, tx, models.RoleAdmin)
		app := newTestApp(testHandler(tx), adminID, models.RoleAdmin)

		put := func(status string) int {
			body := strings.NewReader(`{"status": "` + status + `"}`)
			req := httptest.NewRequest("PUT", "/api/payments/"+pay.ID.String()+"/status", body)
			req.Header.Set("Content-Type", "application/json")
			resp, _ := app.Test(req)
			return resp.StatusCode
		}

		if code := put("completado"); code != 200 {
			t.Fatalf("want 200, got %d", code)
		}
		var after models.Payment
		_ = tx.First(&after, "id = ?", pay.ID).Error
		if after.PaidAt == nil {
			t.Fatal("paid_at should be set after completion")
		}
		firstPaidAt := *after.PaidAt

		// refund then re-complete: the original timestamp stays
		if code := put("reembolsado"); code != 200 {
			t.Fatalf("want 200, got %d", code)
		}
		if code := put("completado"); code != 200 {
			t.Fatalf("want 200, got %d", code)
		}
		_ = tx.First(&after, "id = ?", pay.ID).Error
		if after.PaidAt == nil || !after.PaidAt.Equal(firstPaidAt) {
			t.Fatalf("paid_at should keep first completion time, got %v", after.PaidAt)
		}
	})
}

/* ============================================================================
   Tests — scoping
   ============================================================================ */

// Lawyers only see payments on consultations assigned to their profile;
// admins see everything.
func Test_List_ScopedByRole(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		a := seedConsultation(t, tx)
		b := seedConsultation(t, tx)

		for _, cons := range []uuid.UUID{a.ConsID, b.ConsID} {
			pf, pr, le := SplitFees(100)
			p := models.Payment{
				ConsultationID: cons, Amount: 100,
				PlatformFee: pf, ProcessingFee: pr, LawyerEarnings: le,
				Status: models.PaymentCompleted, PaymentMethod: "tarjeta",
			}
			if err := tx.Create(&p).Error; err != nil {
				t.Fatal(err)
			}
		}

		fetch := func(userID uuid.UUID, role models.Role) int {
			app := newTestApp(testHandler(tx), userID, role)
			req := httptest.NewRequest("GET", "/api/payments?page=1&pageSize=10", nil)
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
			return int(out.Data.Total)
		}

		if n := fetch(a.LawyerUserID, models.RoleLawyer); n != 1 {
			t.Fatalf("lawyer A: want 1 payment, got %d", n)
		}
		if n := fetch(b.ClientID, models.RoleClient); n != 1 {
			t.Fatalf("client B: want 1 payment, got %d", n)
		}
		adminID := seedUser(t, tx, models.RoleAdmin)
		if n := fetch(adminID, models.RoleAdmin); n != 2 {
			t.Fatalf("admin: want 2 payments, got %d", n)
		}
	})
}

// The list accepts an optional status filter and rejects unknown values.
func Test_List_StatusFilter(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		a := seedConsultation(t, tx)
		b := seedConsultation(t, tx)

		statuses := map[uuid.UUID]models.PaymentStatus{
			a.ConsID: models.PaymentCompleted,
			b.ConsID: models.PaymentPending,
		}
		for cons, st := range statuses {
			pf, pr, le := SplitFees(100)
			p := models.Payment{
				ConsultationID: cons, Amount: 100,
				PlatformFee: pf, ProcessingFee: pr, LawyerEarnings: le,
				Status: st, PaymentMethod: "tarjeta",
			}
			if err := tx.Create(&p).Error; err != nil {
				t.Fatal(err)
			}
		}

		adminID := seedUser(t, tx, models.RoleAdmin)
		app := newTestApp(testHandler(tx), adminID, models.RoleAdmin)

		req := httptest.NewRequest("GET", "/api/payments?status=completado", nil)
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
			t.Fatalf("want 1 completed payment, got %d", out.Data.Total)
		}

		req = httptest.NewRequest("GET", "/api/payments?status=pagado", nil)
		resp, _ = app.Test(req)
		if resp.StatusCode != 400 {
			t.Fatalf("unknown status want 400, got %d", resp.StatusCode)
		}
	})
}

// Stats aggregates only what the caller is allowed to see.
func Test_Stats_ScopedTotals(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		a := seedConsultation(t, tx)
		b := seedConsultation(t, tx)

		amounts := map[uuid.UUID]float64{a.ConsID: 1000, b.ConsID: 500}
		for cons, amount := range amounts {
			pf, pr, le := SplitFees(amount)
			p := models.Payment{
				ConsultationID: cons, Amount: amount,
				PlatformFee: pf, ProcessingFee: pr, LawyerEarnings: le,
				Status: models.PaymentCompleted, PaymentMethod: "tarjeta",
			}
			if err := tx.Create(&p).Error; err != nil {
				t.Fatal(err)
			}
		}

		app := newTestApp(testHandler(tx), a.LawyerUserID, models.RoleLawyer)
		req := httptest.NewRequest("GET", "/api/payments/stats", nil)
		resp, _ := app.Test(req)
		if resp.StatusCode != 200 {
			t.Fatalf("want 200, got %d", resp.StatusCode)
		}

		var out struct {
			Data struct {
				Totals struct {
					Count       int64   `json:"count"`
					TotalAmount float64 `json:"total_amount"`
				} `json:"totals"`
			} `json:"data"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		if out.Data.Totals.Count != 1 || out.Data.Totals.TotalAmount != 1000 {
			t.Fatalf("lawyer A stats: want count=1 amount=1000, got %+v", out.Data.Totals)
		}
	})
}
