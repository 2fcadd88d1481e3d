package http

import (
	"context"
	"fmt"
	"log"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"circleshare/internal/config"
	"circleshare/internal/database"
	"circleshare/internal/feed"
	"circleshare/internal/handler"
	"circleshare/internal/queue"
	redisclient "circleshare/internal/redis"
	"circleshare/internal/repository"
	"circleshare/internal/service"
	"circleshare/internal/worker"
)

// Run wires the whole service together and blocks until shutdown.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	redisCli, err := redisclient.NewClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisCli.Close()

	if err := redisCli.Ping(context.Background()); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	followRepo := repository.NewFollowRepository(db)
	postRepo := repository.NewPostRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	notifRepo := repository.NewNotificationRepository(db)

	// Queue. The worker manager creates the consumer group on Start.
	publisher := queue.NewPublisher(redisCli.Client)
	consumer := queue.NewConsumer(redisCli.Client)

	// Services
	hub := feed.NewHub()
	authService := service.NewAuthService(userRepo, cfg)
	userService := service.NewUserService(userRepo, followRepo)
	followService := service.NewFollowService(followRepo, userRepo, db, publisher)
	postService := service.NewPostService(postRepo, userRepo, publisher, db)
	commentService := service.NewCommentService(commentRepo, postRepo, userRepo, db, publisher)
	notifService := service.NewNotificationService(notifRepo)
	feedService := service.NewFeedService(postRepo, followRepo, userRepo, hub, cfg)
	defer feedService.Close()

	mediaService, err := service.NewMediaService(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to init media service: %w", err)
	}

	// Stream worker: follow events poke live feed sessions, reactions
	// become notifications.
	manager := worker.NewManager(consumer, worker.NewHandler(hub, notifService), worker.ManagerConfig{})
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if err := manager.Start(workerCtx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	defer manager.Stop()

	router := NewRouter(RouterConfig{
		AuthHandler:         handler.NewAuthHandler(authService, userService, feedService),
		UserHandler:         handler.NewUserHandler(userService),
		FollowHandler:       handler.NewFollowHandler(followService),
		FeedHandler:         handler.NewFeedHandler(feedService),
		PostHandler:         handler.NewPostHandler(postService),
		CommentHandler:      handler.NewCommentHandler(commentService),
		NotificationHandler: handler.NewNotificationHandler(notifService),
		MediaHandler:        handler.NewMediaHandler(mediaService),
		JWTSecret:           cfg.JWTSecret,
	})

	srv := &stdhttp.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Server] Listening on :%s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("[Server] Received %v, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
