package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pool-challenge-system/handlers"
	"pool-challenge-system/middleware"
	"pool-challenge-system/models"
	"pool-challenge-system/services"
	"pool-challenge-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
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

	// Load allowed origins from environment variable
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
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token, X-User-ID, X-User-Roles",
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
		&models.PoolEntry{},
		&models.PoolChallenge{},
		&models.PoolParticipant{},
		&models.PoolMessage{},
		&models.PoolUser{},
		&models.UserProgress{},
		&models.RewardGrant{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// Redis is the event feed other features subscribe to; the engine runs
	// fine without it (publishing becomes a no-op).
	var redisClient *redis.Client
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisAddr})
	} else {
		log.Println("⚠️  REDIS_ADDR not set — pool events will not be published")
	}

	events := services.NewEventPublisher(redisClient)
	profileService := services.NewProfileService(db)
	progressionService := services.NewProgressionService(db)
	matcherService := services.NewMatcherService(db, profileService, progressionService, events)
	judgeService := services.NewJudgeService(db, progressionService, events)
	entryService := services.NewEntryService(db, matcherService, events)
	challengeService := services.NewChallengeService(db, judgeService)

	// --- Profile snapshot sync (gender/birth year for the matcher) ---
	profileSyncURL := os.Getenv("PROFILE_SYNC_URL")
	if profileSyncURL == "" {
		log.Fatal("PROFILE_SYNC_URL environment variable not set")
	}
	poolServiceToken := os.Getenv("POOL_SERVICE_TOKEN")
	if poolServiceToken == "" {
		log.Fatal("POOL_SERVICE_TOKEN environment variable not set")
	}

	syncWorker := workers.NewProfileSyncWorker(db, profileSyncURL, "/api/v1/public/profiles", poolServiceToken)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Println("Starting Profile Sync Worker...")
		syncWorker.Start(ctx)
	}()

	go workers.PollPendingGrants(ctx, judgeService, 5*time.Minute)

	scheduler := services.NewPoolScheduler(matcherService, judgeService, entryService)
	scheduler.Start(ctx)

	// ✅ Setup routes — enforced Gateway auth + consistent /s/ prefix
	handlers.SetupPoolRoutes(app, entryService, challengeService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Profile Sync Worker running")
	log.Println("✅ Reward grant reconciler running (every 5m)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
