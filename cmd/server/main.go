package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flashdeck-backend/internal/config"
	"flashdeck-backend/internal/database"
	"flashdeck-backend/internal/events"
	"flashdeck-backend/internal/handlers"
	"flashdeck-backend/internal/middleware"
	"flashdeck-backend/internal/reminders"
	"flashdeck-backend/internal/repository"
	"flashdeck-backend/internal/router"
	"flashdeck-backend/internal/sessionstore"
	"flashdeck-backend/internal/srs"
	"flashdeck-backend/internal/study"
	"flashdeck-backend/internal/websocket"
	"flashdeck-backend/migrations"
)

func main() {
	log.Println("🚀 Starting Flashdeck Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL, int32(cfg.DatabaseMaxConns))
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(context.Background(), pool, migrations.FS); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	flashcardRepo := repository.NewFlashcardRepo(pool)
	reviewRepo := repository.NewReviewRepo(pool)
	studySessionRepo := repository.NewStudySessionRepo(pool)
	store := repository.NewStore(pool)

	// ──── Step 5: Initialize Scheduler ────
	ease, err := srs.EaseFuncByName(cfg.EaseFactorFormula)
	if err != nil {
		log.Fatalf("✗ Scheduler configuration failed: %v", err)
	}
	seed := cfg.JitterSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	scheduler := srs.NewScheduler(srs.NewRandomSource(seed), ease)
	controller := study.NewController(store, scheduler, nil)
	log.Printf("✓ Scheduler initialized (ease formula: %s)", cfg.EaseFactorFormula)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	sessions := sessionstore.New(redisClients.Cache, cfg.StudySessionTTL)
	publisher := events.NewPublisher(redisClients.Cache)

	// ──── Initialize Handlers ────
	flashcardHandler := handlers.NewFlashcardHandler(flashcardRepo, reviewRepo)
	studySessionHandler := handlers.NewStudySessionHandler(controller, sessions, flashcardRepo, studySessionRepo, publisher)

	// ──── Step 6: Start Reminder Scheduler ────
	reminderScheduler := reminders.NewScheduler(flashcardRepo, publisher, redisClients.Cache, cfg.ReminderInterval)
	reminderScheduler.Start()
	log.Println("✓ Reminder scheduler started")

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, cfg.FrontendURL)
	log.Println("✓ WebSocket hub started")

	// ──── Step 8: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		limiter,
		flashcardHandler,
		studySessionHandler,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		reminderScheduler.Stop()
		limiter.Stop()
		wsHub.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("HTTP shutdown: %v", err)
		}
	}()

	log.Printf("✓ Flashdeck Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
	<-done
}
