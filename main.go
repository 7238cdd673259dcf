package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"play-tracking-system/handlers"
	"play-tracking-system/middleware"
	"play-tracking-system/models"
	"play-tracking-system/services"
	"play-tracking-system/workers"

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

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
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
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Game{},
		&models.Group{},
		&models.GroupMember{},
		&models.GroupUser{},
		&models.Play{},
		&models.PlayParticipant{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	dedupService := services.NewDedupService(db)
	playService := services.NewPlayService(db, dedupService)
	gameService := services.NewGameService(db)
	groupService := services.NewGroupService(db)
	statsService := services.NewStatsService(db)

	// --- CONFIGURE Profile Sync Service details ---
	syncServiceURL := os.Getenv("SYNC_SERVICE_URL")
	if syncServiceURL == "" {
		log.Fatal("SYNC_SERVICE_URL environment variable not set")
	}
	playServiceToken := os.Getenv("PLAY_SERVICE_TOKEN")
	if playServiceToken == "" {
		log.Fatal("PLAY_SERVICE_TOKEN environment variable not set")
	}
	// --- END CONFIG ---

	userSyncWorker := workers.NewGroupUserSyncWorker(db, syncServiceURL, "/api/v1/public/profiles", playServiceToken)

	bggClient := workers.NewBGGSyncClient(db, dedupService)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go workers.PollBGGPlays(ctx, bggClient, 15*time.Minute)

	go func() {
		log.Println("Starting Group User Sync Worker...")
		userSyncWorker.Start(ctx)
	}()

	dedupService.StartMaintenanceScheduler()

	// ✅ Setup routes — enforced Gateway auth on everything
	handlers.SetupGameRoutes(app, gameService)
	handlers.SetupPlayRoutes(app, playService, groupService)
	handlers.SetupStatsRoutes(app, statsService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Group User Sync Worker running")
	log.Println("✅ BGG play import running (every 15m)")
	log.Println("✅ Dedup maintenance sweep scheduled (every 6h)")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
