package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"pai-backend/cmd"
	"pai-backend/internal/agent"
	"pai-backend/internal/api"
	"pai-backend/internal/auth"
	"pai-backend/internal/chat"
	"pai-backend/internal/config"
	"pai-backend/internal/database"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"
)

func createServer(cfg config.Config, db *gorm.DB, chatAgent agent.Agent) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		api.WriteJsonResponse(w, map[string]string{"status": "ok"})
	})
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/chat/", http.StatusFound)
	})

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = chat.DefaultSystemPrompt
	}

	sessions := auth.NewSessions(db, auth.NewJWTVerifier([]byte(cfg.JWTSecret)), cfg.GuestSessionTTL, cfg.CookieSecure)
	chatHandler := api.NewChatService(chat.NewService(db, chatAgent, systemPrompt), sessions)
	chatHandler.AddRoutes(r)

	return &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: r,
	}
}

func main() {
	log.Println("Starting chat server...")

	cmd.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	purged, err := database.PurgeExpiredGuestSessions(context.Background(), db)
	if err != nil {
		log.Fatalf("Failed to purge expired guest sessions: %v", err)
	}
	slog.Info("purged expired guest sessions", "count", purged)

	model, err := agent.NewModel(cfg.Model())
	if err != nil {
		log.Fatalf("Failed to create llm client: %v", err)
	}
	chatAgent := agent.NewGraphAgent(model, agent.DefaultTools(), cfg.AgentMaxSteps)

	server := createServer(cfg, db, chatAgent)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	slog.Info("server started", "port", cfg.Port, "llm_provider", cfg.LLMProvider, "llm_model", cfg.LLMModel)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	slog.Info("server stopped")
}
