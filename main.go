package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"event-gamification-system/handlers"
	"event-gamification-system/middleware"
	"event-gamification-system/models"
	"event-gamification-system/services"
	"event-gamification-system/stores"
	"event-gamification-system/workers"

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

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOrigins = "http://localhost:3000"
	}
	origins := strings.Split(allowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(origins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Email",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Content database: the code definitions the content team manages.
	dsn := os.Getenv("CONTENT_DATABASE_URL")
	if dsn == "" {
		log.Fatal("CONTENT_DATABASE_URL environment variable not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to content database:", err)
	}
	if err := db.AutoMigrate(&models.CodeDefinition{}); err != nil {
		log.Fatal("failed to migrate content database:", err)
	}

	// Record stores: DynamoDB in production, in-memory for local work.
	var accStore stores.AccomplishmentStore
	var userStore stores.UserStore
	switch backend := os.Getenv("STORE_BACKEND"); backend {
	case "", "dynamo":
		client, err := stores.NewDynamoClient(context.Background())
		if err != nil {
			log.Fatal("failed to initialize DynamoDB client:", err)
		}
		accTable := os.Getenv("ACCOMPLISHMENTS_TABLE")
		userTable := os.Getenv("USERS_TABLE")
		if accTable == "" || userTable == "" {
			log.Fatal("ACCOMPLISHMENTS_TABLE and USERS_TABLE environment variables not set")
		}
		accStore = stores.NewDynamoAccomplishmentStore(client, accTable)
		userStore = stores.NewDynamoUserStore(client, userTable)
	case "memory":
		log.Println("⚠️  STORE_BACKEND=memory — records will not survive a restart")
		mem := stores.NewMemoryStore()
		accStore = mem
		userStore = mem
	default:
		log.Fatalf("unknown STORE_BACKEND %q", backend)
	}

	codeCacheTTL := 30 * time.Second
	if raw := os.Getenv("CODE_CACHE_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("invalid CODE_CACHE_TTL %q: %v", raw, err)
		}
		codeCacheTTL = ttl
	}
	codeProvider := services.NewCachedCodeProvider(&services.GormCodeProvider{DB: db}, codeCacheTTL)

	claimService := services.NewClaimService(accStore, userStore, codeProvider, services.NewTOTPValidator())
	contentService := services.NewContentService(db)
	leaderboardService := services.NewLeaderboardService(accStore, time.Minute)

	claimService.StartQuotaResetScheduler()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go workers.PollLeaderboard(ctx, leaderboardService, time.Minute)

	handlers.SetupClaimRoutes(app, claimService, leaderboardService)
	handlers.SetupContentRoutes(app, contentService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Daily connect-allotment reset scheduled")
	log.Println("✅ Leaderboard refresh worker running (every 60s)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", strings.Join(origins, ","))

	<-ctx.Done()
	log.Println("Shutting down server...")
}
