package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/campussync/messaging/internal/config"
	"github.com/campussync/messaging/internal/database"
	postgresrepo "github.com/campussync/messaging/internal/repository/postgres"
	"github.com/campussync/messaging/internal/service"
	"github.com/campussync/messaging/internal/transport/http/handlers"
	"github.com/campussync/messaging/internal/transport/http/middleware"
	"github.com/campussync/messaging/internal/transport/ws"
	"github.com/campussync/messaging/internal/uploader"
	"golang.org/x/sync/errgroup"
)

const sweepInterval = time.Hour

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := database.Connect(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatal(err)
	}
	log.Println("Connected to database")

	// Repositories
	userRepo := postgresrepo.NewUserRepo(pool)
	convRepo := postgresrepo.NewConversationRepo(pool)
	messageRepo := postgresrepo.NewMessageRepo(pool)
	notificationRepo := postgresrepo.NewNotificationRepo(pool)

	// Services
	authService := service.NewAuthService(userRepo, cfg.JWTSecret)
	chatService := service.NewChatService(convRepo, messageRepo, userRepo)
	notificationService := service.NewNotificationService(notificationRepo)

	// Real-time hub
	hub := ws.NewHub()
	notifier := ws.NewHubNotifier(hub)
	chatService.SetNotifier(notifier)
	chatService.SetNotifications(notificationService)
	notificationService.SetNotifier(notifier)

	if cfg.UploadURL != "" {
		chatService.SetUploader(uploader.New(cfg.UploadURL, cfg.UploadKey))
	}

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	chatHandler := handlers.NewChatHandler(chatService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)

	// Auth middleware
	auth := middleware.Auth(cfg.JWTSecret)

	// Routes
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)

	// WebSocket (auth via token query param)
	mux.HandleFunc("GET /ws", ws.ServeWS(hub, cfg.JWTSecret))

	// Protected - Users
	mux.Handle("GET /api/v1/users/search", auth(http.HandlerFunc(chatHandler.SearchUsers)))

	// Protected - Conversations
	mux.Handle("GET /api/v1/conversations", auth(http.HandlerFunc(chatHandler.ListConversations)))
	mux.Handle("POST /api/v1/conversations", auth(http.HandlerFunc(chatHandler.GetOrCreateConversation)))
	mux.Handle("GET /api/v1/conversations/{id}/messages", auth(http.HandlerFunc(chatHandler.ListMessages)))
	mux.Handle("POST /api/v1/conversations/{id}/messages", auth(http.HandlerFunc(chatHandler.SendMessage)))
	mux.Handle("POST /api/v1/conversations/{id}/read", auth(http.HandlerFunc(chatHandler.MarkRead)))
	mux.Handle("DELETE /api/v1/messages/{id}", auth(http.HandlerFunc(chatHandler.DeleteMessage)))

	// Protected - Notifications
	mux.Handle("GET /api/v1/notifications", auth(http.HandlerFunc(notificationHandler.List)))
	mux.Handle("POST /api/v1/notifications/{id}/read", auth(http.HandlerFunc(notificationHandler.MarkRead)))
	mux.Handle("POST /api/v1/notifications/read-all", auth(http.HandlerFunc(notificationHandler.MarkAllRead)))
	mux.Handle("DELETE /api/v1/notifications/{id}", auth(http.HandlerFunc(notificationHandler.Delete)))
	mux.Handle("DELETE /api/v1/notifications/read", auth(http.HandlerFunc(notificationHandler.ClearRead)))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: middleware.CORS(mux),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := notificationService.SweepExpired(ctx); err != nil {
					log.Printf("ERROR notification sweep: %v", err)
				}
			}
		}
	})

	g.Go(func() error {
		log.Printf("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}
