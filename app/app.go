package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"farmpulse/api"
	"farmpulse/cache"
	"farmpulse/config"
	"farmpulse/database"
	"farmpulse/feed"
	"farmpulse/handlers"
	"farmpulse/notifications"
	"farmpulse/realtime"
)

// App represents the main application
type App struct {
	config         *config.Config
	feedManager    *feed.ConnectionManager
	db             *database.Database
	redis          *cache.RedisClient
	statRepo       *database.StatRepository
	webhookManager *notifications.WebhookManager
	broker         *realtime.Broker
	orderHandler   *handlers.OrderEventHandler
	harvestHandler *handlers.HarvestEventHandler
	nightlyJob     *NightlyJob
	backfillJob    *BackfillJob
	scheduler      *NightlyScheduler
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{
		config:      cfg,
		feedManager: feed.NewConnectionManager(cfg.FeedWSURL),
	}
}

// Start starts the application
func (a *App) Start() error {
	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Database Connection
	fmt.Println("🗄️  Connecting to database...")

	dbPort, err := strconv.Atoi(a.config.DatabasePort)
	if err != nil {
		return fmt.Errorf("invalid database port: %w", err)
	}

	db, err := database.Connect(
		a.config.DatabaseHost,
		dbPort,
		a.config.DatabaseName,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
	)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db

	// 2. Redis Connection
	fmt.Println("🧠 Connecting to Redis...")
	redisClient := cache.NewRedisClient(
		a.config.RedisHost,
		a.config.RedisPort,
		a.config.RedisPassword,
	)

	if redisClient == nil {
		fmt.Println("⚠️  Redis connection failed. Caching and job locking disabled.")
	} else {
		a.redis = redisClient
	}

	// 3. Initialize schema
	a.statRepo = database.NewStatRepository(a.db)
	if err := a.statRepo.InitSchema(); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	// 4. Webhook manager and realtime broker
	a.webhookManager = notifications.NewWebhookManager(a.statRepo, a.redis)
	a.broker = realtime.NewBroker()
	go a.broker.Run()

	// 5. Event handlers
	casRetryLimit := a.config.Jobs.CASRetryLimit
	a.orderHandler = handlers.NewOrderEventHandler(a.statRepo, a.webhookManager, a.broker, casRetryLimit)
	a.harvestHandler = handlers.NewHarvestEventHandler(a.statRepo, a.webhookManager, a.broker, casRetryLimit)

	// 6. Jobs
	lockTTL := time.Duration(a.config.Jobs.LockTTLMinutes) * time.Minute
	var locker Locker
	if a.redis != nil {
		locker = a.redis
	}
	a.nightlyJob = NewNightlyJob(a.statRepo, locker, a.config.Jobs.BatchSize, casRetryLimit, lockTTL)
	a.nightlyJob.SetBroadcaster(a.broker)
	a.backfillJob = NewBackfillJob(a.statRepo, locker, a.config.Jobs.BatchSize, lockTTL)
	a.backfillJob.SetBroadcaster(a.broker)

	if a.config.Jobs.NightlyEnabled {
		a.scheduler = NewNightlyScheduler(a.nightlyJob, a.config.Jobs.NightlyHour)
		go a.scheduler.Start()
	} else {
		log.Println("ℹ️  Nightly scheduler DISABLED")
	}

	// 7. API server
	runNightly := func(ctx context.Context, now time.Time) (interface{}, error) {
		return a.nightlyJob.Run(ctx, now)
	}
	runBackfill := func(ctx context.Context, now time.Time) (interface{}, error) {
		return a.backfillJob.Run(ctx, now)
	}
	apiServer := api.NewServer(a.statRepo, a.webhookManager, a.broker,
		a.orderHandler, a.harvestHandler, runNightly, runBackfill)
	go func() {
		if err := apiServer.Start(a.config.APIPort); err != nil {
			log.Printf("⚠️  API Server failed: %v", err)
		}
	}()

	var wg sync.WaitGroup

	// 8. Commerce feed
	if a.config.FeedEnabled {
		if err := a.feedManager.Connect(); err != nil {
			return fmt.Errorf("commerce feed connection failed: %w", err)
		}
		a.feedManager.StartPing(25 * time.Second)

		wg.Add(1)
		go func() {
			defer wg.Done()
			a.feedManager.RunHealthMonitor(ctx)
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			a.readAndProcessEvents(ctx)
		}()
	} else {
		log.Println("ℹ️  Commerce feed DISABLED; only the API and jobs are active")
	}

	// 9. Wait for interrupt and perform graceful shutdown
	err = a.gracefulShutdown(cancel)
	wg.Wait()
	return err
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown(cancel context.CancelFunc) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, initiating graceful shutdown...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	shutdownComplete := make(chan struct{})
	go func() {
		if a.scheduler != nil {
			fmt.Println("🌙 Stopping nightly scheduler...")
			a.scheduler.Stop()
		}

		if a.config.FeedEnabled {
			fmt.Println("📡 Closing commerce feed connection...")
			if err := a.feedManager.Close(); err != nil {
				log.Printf("Error closing commerce feed: %v", err)
			} else {
				fmt.Println("✅ Commerce feed closed")
			}
		}

		if a.db != nil {
			if err := a.db.Close(); err != nil {
				log.Printf("Error closing database: %v", err)
			} else {
				fmt.Println("✅ Database connection closed")
			}
		}

		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				log.Printf("Error closing redis: %v", err)
			} else {
				fmt.Println("✅ Redis connection closed")
			}
		}

		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		fmt.Println("✅ Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		fmt.Println("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}

// readAndProcessEvents reads envelopes from the feed and routes them to
// the event handlers, reconnecting with backoff on connection errors
func (a *App) readAndProcessEvents(ctx context.Context) {
	reconnectDelay := 5 * time.Second
	maxReconnectDelay := 60 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
			envelope, err := a.feedManager.ReadEnvelope()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					log.Printf("⚠️  Feed error: %v", err)
					log.Printf("🔄 Attempting to reconnect in %v...", reconnectDelay)

					select {
					case <-ctx.Done():
						return
					case <-time.After(reconnectDelay):
					}

					if err := a.feedManager.Reconnect(); err != nil {
						log.Printf("❌ Reconnection failed: %v", err)
						reconnectDelay = reconnectDelay * 2
						if reconnectDelay > maxReconnectDelay {
							reconnectDelay = maxReconnectDelay
						}
						continue
					}

					reconnectDelay = 5 * time.Second
					continue
				}
			}

			a.dispatchEnvelope(envelope)
		}
	}
}

// dispatchEnvelope routes one feed envelope; unknown events (heartbeats,
// future additions) are ignored
func (a *App) dispatchEnvelope(envelope *feed.Envelope) {
	switch envelope.Event {
	case feed.EventOrderRecorded:
		if _, err := a.orderHandler.ProcessOrderID(envelope.OrderID); err != nil {
			log.Printf("⚠️  Order event %d failed: %v", envelope.OrderID, err)
		}
	case feed.EventHarvestRecorded:
		if _, err := a.harvestHandler.ProcessHarvestID(envelope.HarvestID); err != nil {
			log.Printf("⚠️  Harvest event %d failed: %v", envelope.HarvestID, err)
		}
	}
}
