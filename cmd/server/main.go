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

	"shotmark/internal/api"
	"shotmark/internal/config"
	"shotmark/internal/db"
	"shotmark/internal/repository"
	"shotmark/internal/room"
	"shotmark/internal/telemetry"
)

func main() {
	log.Println("🚀 Starting Shotmark annotation service...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Initialize Jaeger tracing first so all operations are traced.
	jaegerShutdown, err := telemetry.InitJaeger("shotmark", cfg.JaegerEndpoint)
	if err != nil {
		log.Printf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Printf("⚠️  Failed to shutdown Jaeger: %v", err)
		}
	}()

	// Initialize GORM database
	database, err := db.NewGorm(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Initialize repositories
	screenshotRepo := repository.NewScreenshotRepository(database.DB)
	annotationRepo := repository.NewAnnotationRepository(database.DB)
	linkRepo := repository.NewLinkRepository(database.DB)

	// Initialize the room hub for live collaboration
	hub := room.NewHub()
	hub.Start()
	roomHandler := room.NewHandler(hub, cfg.RoomAuthToken)

	// Initialize handlers with dependency injection
	handler := api.NewHandler(screenshotRepo, annotationRepo, linkRepo, hub)

	// Setup routes
	router := api.SetupRoutes(handler, roomHandler)

	// Configure HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine so shutdown signals can be
	// handled concurrently.
	go func() {
		log.Printf("🌐 Server listening on http://%s", addr)
		log.Printf("📚 API Endpoints:")
		log.Printf("   POST   /api/screenshots                  - Register screenshot")
		log.Printf("   GET    /api/screenshots/:id/annotations  - Get annotation set")
		log.Printf("   PUT    /api/screenshots/:id/annotations  - Save annotation set")
		log.Printf("   DELETE /api/annotations/:id              - Delete annotation")
		log.Printf("   POST   /api/annotations/:id/links        - Link to bug/test case")
		log.Printf("   WS     /ws/rooms/:screenshotID           - Join live room")
		log.Println()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n🛑 Shutting down server...")

	// Give the server 30 seconds to finish existing requests.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	// Close all active room connections.
	hub.Shutdown()

	log.Println("✓ Server shutdown complete")
}
