// @title           LexConnect API
// @version         1.0
// @description     Legal services marketplace: clients request consultations from verified lawyers, exchange messages, and payments are tracked in a ledger.
// @contact.name    LexConnect
// @contact.email   soporte@lexconnect.ec
// @BasePath        /api
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Format: Bearer <token>
package main

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	fiberSwagger "github.com/gofiber/swagger"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "github.com/HostingCuenca/lexconnect-sub001/docs"
	"github.com/HostingCuenca/lexconnect-sub001/internal/admin"
	"github.com/HostingCuenca/lexconnect-sub001/internal/auth"
	"github.com/HostingCuenca/lexconnect-sub001/internal/consultations"
	"github.com/HostingCuenca/lexconnect-sub001/internal/lawyers"
	"github.com/HostingCuenca/lexconnect-sub001/internal/payments"
	"github.com/HostingCuenca/lexconnect-sub001/internal/storage"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/audit"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/config"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/database"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/models"
)

var defaultSpecialties = []string{
	"Derecho Civil",
	"Derecho Penal",
	"Derecho Laboral",
	"Derecho Mercantil",
	"Derecho de Familia",
	"Derecho Tributario",
	"Derecho Administrativo",
	"Propiedad Intelectual",
	"Derecho Migratorio",
	"Derecho Ambiental",
}

func seedSpecialties(db *gorm.DB, logger *zap.Logger) {
	var n int64
	if err := db.Model(&models.LegalSpecialty{}).Count(&n).Error; err != nil || n > 0 {
		return
	}
	for _, name := range defaultSpecialties {
		if err := db.Create(&models.LegalSpecialty{Name: name}).Error; err != nil {
			logger.Warn("specialty seed failed", zap.String("name", name), zap.Error(err))
		}
	}
}

func newLogger() *zap.Logger {
	if config.IsProduction() {
		l, err := zap.NewProduction()
		if err != nil {
			log.Fatal("logger init failed:", err)
		}
		return l
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal("logger init failed:", err)
	}
	return l
}

func newLimiter(logger *zap.Logger) auth.Limiter {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		logger.Info("rate limiter: in-memory")
		return auth.NewMemoryLimiter()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       config.GetIntEnv("REDIS_DB", 0),
	})
	logger.Info("rate limiter: redis", zap.String("addr", addr))
	return auth.NewRedisLimiter(client)
}

func main() {
	_ = godotenv.Load()

	logger := newLogger()
	defer logger.Sync()

	db := database.Init()
	if err := db.AutoMigrate(
		&models.User{}, &models.LawyerProfile{}, &models.LegalSpecialty{},
		&models.LawyerService{}, &models.LawyerDocument{},
		&models.Consultation{}, &models.Message{}, &models.Payment{},
		&models.ActivityLog{}, &models.Notification{},
	); err != nil {
		log.Fatal("migration failed:", err)
	}
	seedSpecialties(db, logger)

	limiter := newLimiter(logger)
	rec := audit.NewRecorder(db, logger)

	app := fiber.New(fiber.Config{
		ErrorHandler: auth.ErrorHandler,
	})

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	app.Get("/swagger/*", fiberSwagger.HandlerDefault)

	api := app.Group("/api")

	// Auth
	authH := auth.NewHandler(db, limiter, rec, logger)
	api.Post("/auth/register", authH.Register)
	api.Post("/auth/login", authH.Login)
	api.Get("/auth/me", auth.RequireAuth(), authH.Me)
	api.Post("/auth/password", auth.RequireAuth(), authH.ChangePassword)

	// Storage helper, uses SUPABASE_URL / SUPABASE_SERVICE_KEY / SUPABASE_BUCKET
	sb := storage.NewSupabase()

	// Lawyer directory
	lawyerH := lawyers.NewHandler(db, sb, rec)
	api.Get("/lawyers", lawyerH.List)
	api.Get("/specialties", lawyerH.ListSpecialties)
	api.Put("/lawyers/me", auth.RequireAuth(), auth.RequireRole(models.RoleLawyer), lawyerH.UpdateMe)
	api.Put("/lawyers/me/specialties", auth.RequireAuth(), auth.RequireRole(models.RoleLawyer), lawyerH.SetSpecialties)
	api.Post("/lawyers/me/services", auth.RequireAuth(), auth.RequireRole(models.RoleLawyer), lawyerH.CreateService)
	// Owner or admin, checked in the handler.
	api.Put("/lawyers/me/services/:id", auth.RequireAuth(), lawyerH.UpdateService)
	api.Delete("/lawyers/me/services/:id", auth.RequireAuth(), lawyerH.DeleteService)
	api.Post("/lawyers/me/documents", auth.RequireAuth(), auth.RequireRole(models.RoleLawyer), lawyerH.UploadDocuments)
	api.Delete("/lawyers/me/documents/:id", auth.RequireAuth(), auth.RequireRole(models.RoleLawyer), lawyerH.DeleteDocument)
	api.Get("/lawyers/:id", lawyerH.Get)

	// Consultations
	consH := consultations.NewHandler(db, rec)
	api.Post("/public/consultations", consH.PublicCreate)
	api.Post("/consultations", auth.RequireAuth(), auth.RequireRole(models.RoleClient), consH.Create)
	api.Get("/consultations", auth.RequireAuth(), consH.List)
	api.Get("/consultations/:id", auth.RequireAuth(), consH.Get)
	api.Post("/consultations/:id/accept", auth.RequireAuth(), auth.RequireRole(models.RoleLawyer), consH.Accept)
	api.Put("/consultations/:id/status", auth.RequireAuth(), consH.UpdateStatus)
	api.Get("/consultations/:id/messages", auth.RequireAuth(), consH.ListMessages)
	api.Post("/consultations/:id/messages", auth.RequireAuth(), consH.PostMessage)

	// Payments
	payH := payments.NewHandler(db, rec)
	api.Post("/payments", auth.RequireAuth(), auth.RequireRole(models.RoleAdmin), payH.Register)
	api.Put("/payments/:id/status", auth.RequireAuth(), auth.RequireRole(models.RoleAdmin), payH.UpdateStatus)
	api.Get("/payments", auth.RequireAuth(), payH.List)
	api.Get("/payments/stats", auth.RequireAuth(), payH.Stats)

	// Admin
	adminH := admin.NewHandler(db, rec)
	adminGroup := api.Group("/admin", auth.RequireAuth(), auth.RequireRole(models.RoleAdmin))
	adminGroup.Post("/lawyers/:id/verify", adminH.VerifyLawyer)
	adminGroup.Get("/lawyers/:id/verify", adminH.VerificationDetail)
	adminGroup.Get("/lawyers/pending", adminH.PendingLawyers)
	adminGroup.Post("/lawyers/pending", adminH.BatchVerify)
	adminGroup.Patch("/users/:id/active", adminH.SetUserActive)
	adminGroup.Delete("/users/:id", adminH.DeleteUser)
	adminGroup.Get("/documents/:id/signed-url", lawyerH.SignedDocumentURL)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	logger.Info("server listening", zap.String("port", port))
	log.Fatal(app.Listen(":" + port))
}
