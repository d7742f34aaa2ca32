package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hilom-backend/internal/database"
	"hilom-backend/internal/dispatch"
	"hilom-backend/internal/handlers"
	"hilom-backend/internal/middleware"
	"hilom-backend/internal/presence"
	"hilom-backend/internal/tracker"
	"hilom-backend/internal/websocket"
	"hilom-backend/pkg/ratelim"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
)

func main() {
	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("🚀 HILOM BACKEND SERVER STARTING")
	log.Println("═══════════════════════════════════════════════════════════════════")

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  Warning: .env file not found, using environment variables from system")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	db, err := database.Connect(dbURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("❌ Database migrations failed: %v", err)
	}

	if err := database.SeedUsers(db); err != nil {
		log.Fatalf("❌ User seeding failed: %v", err)
	}
	if err := database.SeedServices(db); err != nil {
		log.Fatalf("❌ Service seeding failed: %v", err)
	}

	// Worker presence lives in Redis
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
		log.Printf("⚠️  REDIS_URL not set, using default: %s", redisURL)
	}
	presenceStore, err := presence.Connect(redisURL)
	if err != nil {
		log.Fatalf("❌ Redis connection failed: %v", err)
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub()
	go wsHub.Run()
	log.Println("✅ WebSocket hub started")

	// Core wiring: booking store → claim/lifecycle service → location tracking
	store := database.NewBookingStore(db)
	svc := dispatch.NewService(store, presenceStore)

	publisher := handlers.NewPositionPublisher(store, wsHub)
	trk := tracker.NewManager(store, publisher, func(workerID string) tracker.Sampler {
		return &tracker.PresenceSampler{Presence: presenceStore, WorkerID: workerID}
	})
	defer trk.StopAll()

	// One claim per second per therapist keeps the claim button honest
	claimLimiter := ratelim.NewRateLimiter(1, 3)
	claimKey := func(r *http.Request) string {
		if claims, ok := middleware.GetUserFromContext(r); ok {
			return claims.UserID
		}
		return ""
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Authentication routes (no auth required)
	r.Post("/api/auth/login", handlers.Login(db))

	// WebSocket endpoint (authentication handled in handler via query param)
	r.Get("/ws", websocket.HandleWebSocket(wsHub, presenceStore))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Service catalog (no auth required)
		r.Get("/services", handlers.GetServices(db))

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth)

			r.Get("/auth/status", handlers.GetAuthStatus(db))

			// Booking intake (clients)
			r.With(middleware.RequireRole("client")).
				Post("/bookings", handlers.CreateBooking(store, wsHub))

			// Therapist endpoints
			r.Route("/worker", func(r chi.Router) {
				r.Use(middleware.RequireRole("therapist"))

				r.Get("/bookings/pending", handlers.GetPendingBookings(svc))
				r.With(claimLimiter.Limit(claimKey)).
					Post("/bookings/{id}/claim", handlers.ClaimBooking(svc, trk, wsHub))
				r.Post("/bookings/{id}/advance", handlers.AdvanceBooking(svc, trk, wsHub))
				r.Get("/bookings/current", handlers.GetCurrentBooking(store))
				r.Get("/bookings/history", handlers.GetBookingHistory(store))

				r.Post("/bookings/{id}/reporting/start", handlers.StartLocationReporting(store, presenceStore, trk))
				r.Post("/bookings/{id}/reporting/stop", handlers.StopLocationReporting(store, trk))

				// Availability toggle and device position reports
				r.Post("/presence", handlers.UpdatePresence(presenceStore))
				r.Post("/location", handlers.ReportLocation(presenceStore, wsHub))
			})

			// Manager endpoints (require admin role)
			r.Route("/manager", func(r chi.Router) {
				r.Use(middleware.RequireRole("admin"))

				r.Get("/bookings", handlers.GetAllBookings(store))
				r.Post("/bookings/{id}/cancel", handlers.CancelBooking(svc, trk, wsHub))
				r.Get("/active-therapists", handlers.GetActiveTherapists(db, store, presenceStore))
				r.Post("/users", handlers.CreateUser(db))
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
		log.Printf("⚠️  PORT not set, using default: %s", port)
	}

	server := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// Stop reporters cleanly on shutdown so no position write lands after
	// the process starts winding down
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		log.Println("🛑 Shutting down...")
		trk.StopAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Printf("🚀 Server starting on http://localhost:%s", port)
	log.Println("═══════════════════════════════════════════════════════════════════")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
