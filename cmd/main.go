package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"courier/server/internal/appMiddleware"
	"courier/server/internal/config"
	"courier/server/internal/db"
	"courier/server/internal/handlers"
	"courier/server/internal/pool"
	"courier/server/internal/services"
	"courier/server/internal/storage"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg := config.Load()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to apply migrations: %s\n", err)
	}

	ctx := context.Background()
	dbPool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %s\n", err)
	}
	defer dbPool.Close()

	conversationStore := storage.NewConversationStore(dbPool)
	messageStore := storage.NewMessageStore(dbPool)
	readStore := storage.NewReadStore(dbPool)
	userStore := storage.NewUserStore(dbPool)
	friendStore := storage.NewFriendStore(dbPool)

	directory, err := storage.NewParticipantDirectory(dbPool, cfg.ParticipantsLRU)
	if err != nil {
		log.Fatalf("Failed to build participant directory: %s\n", err)
	}

	registry := pool.NewRegistry()
	clock := clockwork.NewRealClock()

	userService := services.NewUserService(userStore, cfg.BcryptCost, clock)
	friendService := services.NewFriendService(friendStore, userService, clock)
	delivery := services.NewDelivery(directory, registry)
	messengerService := services.NewMessengerService(
		conversationStore,
		messageStore,
		readStore,
		directory,
		userService,
		delivery,
		clock,
	)

	h := handlers.New(
		messengerService,
		userService,
		friendService,
		registry,
		[]byte(cfg.JWTSecret),
		cfg.TokenTTL,
		clock,
	)

	r := chi.NewRouter()

	r.Use(appMiddleware.CorsMiddleware)

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/create-account", h.CreateAccount)
	r.Post("/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.AuthMiddleware([]byte(cfg.JWTSecret)))

		r.Get("/authenticate-user", h.AuthenticateUser)
		r.Post("/logout", h.Logout)

		r.Post("/send-friend-request", h.SendFriendRequest)
		r.Get("/friend-requests", h.GetMyRequests)
		r.Get("/requested-list", h.GetRequestedList)
		r.Post("/accept-request", h.AcceptFriendRequest)
		r.Post("/reject-request", h.RejectFriendRequest)
		r.Post("/cancel-request", h.CancelFriendRequest)
		r.Get("/find-users", h.FindUsers)
		r.Get("/find-friends", h.FindFriends)

		r.Post("/start-conversation", h.StartConversation)
		r.Get("/conversations", h.GetAllConversations)
		r.Get("/messages", h.GetAllMessagesInConversation)
		r.Post("/message", h.SendMessage)
		r.Post("/read-message", h.MarkMessageRead)
		r.Get("/conversation-unreads", h.GetConversationUnreadCount)
	})

	r.Get("/ws", h.WebSocket)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Server started on %s\n", cfg.HTTPAddr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %s\n", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	log.Println("Stopping the server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown error: %s\n", err)
	}
	log.Println("Server has been successfully stopped")
}
