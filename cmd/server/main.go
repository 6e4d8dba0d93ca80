package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aurumif/sales-ledger/docs"
	"github.com/aurumif/sales-ledger/internal/database"
	"github.com/aurumif/sales-ledger/internal/events"
	"github.com/aurumif/sales-ledger/internal/handlers"
	mW "github.com/aurumif/sales-ledger/internal/middleware"
	"github.com/aurumif/sales-ledger/internal/notify"
	"github.com/aurumif/sales-ledger/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Sales Ledger API
// @version 1.0
// @description API for invoice finance sales ledger management
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	// Set environment variable prefix
	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.BindEnv("smtp.host", "SMTP_HOST")
	viper.BindEnv("smtp.port", "SMTP_PORT")
	viper.BindEnv("smtp.username", "SMTP_USERNAME")
	viper.BindEnv("smtp.password", "SMTP_PASSWORD")
	viper.BindEnv("mail.from_address", "MAIL_FROM_ADDRESS")
	viper.BindEnv("mail.operations_address", "MAIL_OPERATIONS_ADDRESS")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Sales Ledger API"
	docs.SwaggerInfo.Description = "API for invoice finance sales ledger management"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	publisher := events.NewPublisher(redisClient)

	mailSender := notify.NewSMTPSender()
	if mailSender.From() == "" {
		log.Println("Warning: mail.from_address not set; payment request notifications will fail")
	}

	authService := services.NewAuthService(db, redisClient)
	ledgerService := services.NewLedgerService(db, publisher)
	accountService := services.NewAccountService(db, publisher)
	paymentService := services.NewPaymentService(db, publisher, mailSender)
	adminService := services.NewAdminService(db, publisher)
	eventsHandler := handlers.NewEventsHandler(redisClient)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Static file server for the web client
	r.Handle("/static/*", http.StripPrefix("/static/",
		mW.StaticFileServer("./static")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/ledger-entries", ledgerService.ListLedgerEntries)
			r.Post("/ledger-entries", ledgerService.CreateLedgerEntry)
			r.Get("/ledger-entries/{id}", ledgerService.GetLedgerEntry)
			r.Put("/ledger-entries/{id}", ledgerService.UpdateLedgerEntry)
			r.Delete("/ledger-entries/{id}", ledgerService.DeleteLedgerEntry)

			r.Get("/account-status", accountService.GetAccountStatus)
			r.Get("/transactions", accountService.ListTransactions)
			r.Get("/availability", accountService.GetAvailability)

			r.Post("/payment-requests", paymentService.RequestPayment)

			// Admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.AdminOnly)

				r.Get("/admin/account-status/{ownerId}", adminService.GetAccountStatus)
				r.Put("/admin/account-status/{ownerId}", adminService.UpdateAccountStatus)
				r.Get("/admin/availability/{ownerId}", adminService.GetAvailability)
				r.Post("/admin/cash-receipts", adminService.AddCashReceipt)
			})
		})

		// Event stream runs without the request timeout; clients hold it open
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)
			r.Get("/events", eventsHandler.Stream)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:        ":" + port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays unset so the SSE stream is not cut off
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
