package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"fitness-competition-service/handlers"
	"fitness-competition-service/middleware"
	"fitness-competition-service/models"
	"fitness-competition-service/services"
	"fitness-competition-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐 GLOBAL: only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, X-User-ID, X-User-Roles, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Competition{},
		&models.Participant{},
		&models.ActivityEntry{},
		&models.CalculationResult{},
		&models.Team{},
		&models.TeamMember{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	calculationService := services.NewCalculationService(db, logger)
	competitionService := services.NewCompetitionService(db, calculationService)
	activityService := services.NewActivityService(db, calculationService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Device activity sync (optional: only when a sync service is configured) ---
	syncServiceURL := os.Getenv("SYNC_SERVICE_URL")
	if syncServiceURL != "" {
		serviceToken := os.Getenv("FITNESS_SERVICE_TOKEN")
		syncWorker := workers.NewActivitySyncWorker(db, syncServiceURL, "/api/v1/public/activities", serviceToken)
		syncWorker.OnEntriesSynced = func(ctx context.Context, entries []models.ActivityEntry) {
			for _, entry := range entries {
				activityService.TriggerRecalculationsForEntry(ctx, entry)
			}
		}
		syncWorker.Start(ctx)
	} else {
		log.Println("⚠️  SYNC_SERVICE_URL not set — device activity sync disabled")
	}

	competitionService.StartStatusScheduler()

	handlers.SetupCompetitionRoutes(app, competitionService)
	handlers.SetupActivityRoutes(app, activityService)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Println("✅ Competition status scheduler running (every 1m)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
