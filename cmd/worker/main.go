package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/giftdrive/internal/config"
	"github.com/ignite/giftdrive/internal/notify"
	"github.com/ignite/giftdrive/internal/pkg/distlock"
	"github.com/ignite/giftdrive/internal/pkg/donorlink"
	"github.com/ignite/giftdrive/internal/pkg/logger"
	"github.com/ignite/giftdrive/internal/repository/postgres"
	"github.com/ignite/giftdrive/internal/service/campaign"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (optional)")
	noReminders := flag.Bool("no-reminders", false, "drain the queue only; skip the drop-off reminder sweep")
	flag.Parse()

	log.Println("Starting gift drive notification worker...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Configure(logger.Options{
		Level:     cfg.Logging.Level,
		RedactPII: cfg.Logging.Redact(),
		File:      cfg.Logging.File,
	})
	if cfg.Redis.URL == "" {
		log.Fatal("REDIS_URL is required")
	}

	ctx := context.Background()

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("Failed to ping Redis: %v", err)
	}
	cancel()
	log.Println("Connected to Redis")

	handler, err := notify.BuildHandler(ctx, notify.HandlerOptions{
		TemplateDir: cfg.Notify.TemplateDir,
		AdminEmail:  cfg.Notify.AdminEmail,
		UseSES:      cfg.Notify.Enabled,
		SES: notify.SESConfig{
			Region:    cfg.SES.Region,
			AccessKey: cfg.SES.AccessKey,
			SecretKey: cfg.SES.SecretKey,
			From:      cfg.Notify.From,
		},
		Links: donorLinks(cfg),
	})
	if err != nil {
		log.Fatalf("Failed to set up mailer: %v", err)
	}
	if !cfg.Notify.Enabled {
		log.Println("notify.enabled is false: emails are logged, not sent")
	}

	queue := notify.NewQueue(rdb, cfg.Notify.QueueKey)
	worker := notify.NewWorker(queue, handler, notify.WorkerConfig{
		MaxAttempts:  cfg.Notify.MaxAttempts,
		RetryBackoff: cfg.Notify.RetryBackoff(),
	})
	worker.Start()
	log.Printf("Draining %s (retries: %s, dead letters: %s)", queue.Key(), queue.RetryKey(), queue.DeadKey())

	// The reminder sweep reads campaigns from Postgres.
	var (
		db    *sql.DB
		sweep *notify.ReminderSweep
	)
	if !*noReminders {
		if cfg.Database.URL == "" {
			log.Fatal("DATABASE_URL is required for the reminder sweep (or pass -no-reminders)")
		}
		db, err = postgres.Open(ctx, cfg.Database.URL, postgres.PoolConfig{
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetimeMinutes) * time.Minute,
		})
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		campaigns := campaign.NewService(postgres.NewCampaignRepo(db))
		lock := distlock.New(rdb, db, "reminder-sweep", cfg.Notify.ReminderInterval())
		sweep = notify.NewReminderSweep(campaigns, queue, rdb, lock, notify.ReminderConfig{
			Lead:     cfg.Notify.ReminderLead(),
			Interval: cfg.Notify.ReminderInterval(),
		})
		sweep.Start()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received %v, shutting down...", sig)

	if sweep != nil {
		sweep.Stop()
	}
	worker.Stop()
	log.Println("Worker stopped")
}

func donorLinks(cfg *config.Config) *donorlink.Signer {
	if cfg.Auth.DonorLinkSecret == "" {
		return nil
	}
	return donorlink.NewSigner(cfg.Auth.DonorLinkSecret, cfg.Auth.DonorLinkTTL(), cfg.Auth.PublicURL)
}
