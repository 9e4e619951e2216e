package backend

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jghoshh/goalpal/backend/config"
	"github.com/jghoshh/goalpal/backend/queue"
	"github.com/jghoshh/goalpal/backend/server"
	"github.com/jghoshh/goalpal/backend/server/auth"
	"github.com/jghoshh/goalpal/backend/server/friends"
	"github.com/jghoshh/goalpal/backend/server/goals"
	"github.com/jghoshh/goalpal/backend/server/notifications"
	"github.com/jghoshh/goalpal/backend/server/notifications/push"
	"github.com/jghoshh/goalpal/backend/server/reminders"
	cache "github.com/jghoshh/goalpal/backend/storage/cache"
	storage "github.com/jghoshh/goalpal/backend/storage/persistent"
)

// RunBackend is the main function that sets up and runs the backend server.
// It blocks until SIGINT or SIGTERM, then shuts every component down.
func RunBackend() error {
	cfg, err := config.Load(config.DefaultEnvFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistent storage. An empty MONGODB_URI keeps everything in memory.
	store, err := storage.NewStorage(cfg.DBName, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Disconnect(); err != nil {
			log.Printf("failed to disconnect storage: %v", err)
		}
	}()
	if cfg.MongoURI == "" {
		log.Println("MONGODB_URI is not set, using in-memory storage")
	}

	// The Expo client delivers every push, either inline or from the queue consumers.
	pushClient := push.NewClient(push.Config{
		Host:        cfg.ExpoHost,
		AccessToken: cfg.ExpoAccessToken,
		Timeout:     cfg.PushTimeout,
	})

	var sender notifications.Sender = pushClient
	if cfg.RabbitMQURL != "" {
		pushQueue, closeQueue, err := startPushQueue(ctx, cfg, pushClient)
		if err != nil {
			log.Printf("push queue unavailable, sending pushes directly: %v", err)
		} else {
			defer closeQueue()
			sender = pushQueue
		}
	}

	dispatcher := notifications.NewDispatcher(store, sender, cfg.PushTimeout)
	defer dispatcher.Wait()

	reminderJob := reminders.NewJob(store, sender)
	scheduler, err := reminderJob.Schedule(cfg.ReminderSchedule)
	if err != nil {
		return err
	}
	defer func() { <-scheduler.Stop().Done() }()

	srv := server.New(
		auth.NewService(store, cfg.SigningKey, cfg.TokenTTL),
		goals.NewService(store, dispatcher, goals.Options{OwnerOnlyGet: cfg.StrictOwnerReads}),
		friends.NewService(store, dispatcher),
		reminderJob,
	)

	if err := srv.Start(ctx, cfg.ServerURL); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	log.Println("shutting down")
	return nil
}

// startPushQueue connects the RabbitMQ push stage. Consumers deliver through
// client and remember delivered batches in the cache.
func startPushQueue(ctx context.Context, cfg *config.Config, client *push.Client) (*queue.PushQueue, func(), error) {
	pushCache, err := cache.NewCache(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	q, err := queue.BuildPushQueue(cfg.RabbitMQURL, cfg.NumPushProducers, cfg.NumPushConsumers, pushCache, client)
	if err != nil {
		if cerr := pushCache.Disconnect(); cerr != nil {
			log.Printf("failed to disconnect cache: %v", cerr)
		}
		return nil, nil, err
	}

	consumerCtx, cancel := context.WithCancel(ctx)
	consumers := q.StartConsumers(consumerCtx)

	closeQueue := func() {
		cancel()
		if err := q.Close(); err != nil {
			log.Printf("failed to close push queue: %v", err)
		}
		consumers.Wait()
		if err := pushCache.Disconnect(); err != nil {
			log.Printf("failed to disconnect cache: %v", err)
		}
	}
	return queue.NewPushQueue(q), closeQueue, nil
}
