package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ignite/giftdrive/internal/api"
	"github.com/ignite/giftdrive/internal/config"
	"github.com/ignite/giftdrive/internal/notify"
	"github.com/ignite/giftdrive/internal/pkg/donorlink"
	"github.com/ignite/giftdrive/internal/pkg/logger"
	"github.com/ignite/giftdrive/internal/report"
	"github.com/ignite/giftdrive/internal/repository/memory"
	"github.com/ignite/giftdrive/internal/repository/postgres"
	"github.com/ignite/giftdrive/internal/service/campaign"
	"github.com/ignite/giftdrive/internal/service/claim"
	"github.com/redis/go-redis/v9"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %v\n"+
			"  Hint: Run 'lsof -i :<port>' to find the blocking process", addr, err)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	configPath := flag.String("config", "", "path to config.yaml (optional)")
	inMemory := flag.Bool("memory", false, "use the in-memory store instead of Postgres (development only)")
	flag.Parse()

	log.Println("Starting gift drive API...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	logger.Configure(logger.Options{
		Level:     cfg.Logging.Level,
		RedactPII: cfg.Logging.Redact(),
		File:      cfg.Logging.File,
	})

	addr := cfg.Server.Addr()
	if err := checkPortAvailable(addr); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx := context.Background()
	isolation, _ := cfg.Claims.IsolationLevel()
	claimCfg := claim.Config{
		TxTimeout:    cfg.Claims.TxTimeout(),
		MaxRetries:   cfg.Claims.MaxRetries,
		RetryBackoff: cfg.Claims.RetryBackoff(),
		Isolation:    isolation,
	}

	// Storage
	var (
		db        *sql.DB
		claimRepo claim.Repository
		adminRepo campaign.Repository
	)
	if *inMemory || cfg.Database.URL == "" {
		if !*inMemory {
			log.Fatal("DATABASE_URL is required (or pass -memory for a throwaway store)")
		}
		store := memory.NewStore()
		claimRepo, adminRepo = store.Claims(), store.Campaigns()
		log.Println("WARNING: using in-memory store; all data is lost on exit")
	} else {
		log.Printf("Connecting to database at ...@%s/...", extractHost(cfg.Database.URL))
		db, err = postgres.Open(ctx, cfg.Database.URL, postgres.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetimeMinutes) * time.Minute,
		})
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		claimRepo = postgres.NewClaimRepo(db, cfg.Claims.LockTimeout())
		adminRepo = postgres.NewCampaignRepo(db)
		log.Println("Connected to database")
	}

	// Notifications: queue through Redis for the worker, or send inline.
	var (
		rdb      *redis.Client
		queue    *notify.Queue
		notifier claim.Notifier = notify.NopNotifier{}
		waiter   interface{ Wait() }
	)
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis ping failed (%v); notifications will be logged and dropped until it recovers", err)
		}
		cancel()
		queue = notify.NewQueue(rdb, cfg.Notify.QueueKey)
	}
	if cfg.Notify.Enabled {
		if queue != nil {
			d := notify.NewDispatcher(queue)
			notifier, waiter = d, d
			log.Printf("Notifications queued on %s", queue.Key())
		} else {
			h, err := notify.BuildHandler(ctx, handlerOptions(cfg))
			if err != nil {
				log.Fatalf("Failed to set up notifications: %v", err)
			}
			in := notify.NewInline(h)
			notifier, waiter = in, in
			log.Println("Notifications sent inline (no Redis configured)")
		}
	}

	claims := claim.NewService(claimRepo, notifier, claimCfg)
	campaigns := campaign.NewService(adminRepo)
	handlers := api.NewHandlers(claims, campaigns)
	if links := donorLinks(cfg); links != nil {
		handlers.SetDonorLinks(links)
	} else {
		log.Println("WARNING: DONOR_LINK_SECRET not set; donor claims lookup is disabled")
	}

	// Manifest archive
	var bucket api.BucketPinger
	if cfg.Report.S3Bucket != "" {
		up, err := report.NewS3Uploader(ctx, report.S3Config{
			Bucket:    cfg.Report.S3Bucket,
			Prefix:    cfg.Report.S3Prefix,
			Region:    cfg.Report.S3Region,
			AccessKey: cfg.SES.AccessKey,
			SecretKey: cfg.SES.SecretKey,
		})
		if err != nil {
			log.Printf("Warning: manifest archive disabled: %v", err)
		} else {
			handlers.SetManifestArchiver(up)
			bucket = up
			log.Printf("Manifests archived to s3://%s", cfg.Report.S3Bucket)
		}
	}

	var depth api.QueueDepth
	if queue != nil {
		depth = queue
	}
	handlers.SetHealthChecker(api.NewHealthChecker(db, rdb, bucket, depth))

	if cfg.Auth.AdminToken == "" {
		log.Println("WARNING: ADMIN_TOKEN not set; admin routes are disabled")
	}
	server := api.NewServer(cfg.Server, handlers, cfg.Auth.AdminToken)

	go func() {
		log.Printf("Listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received %v, shutting down...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	if waiter != nil {
		waiter.Wait()
	}
	log.Println("Server stopped")
}

func handlerOptions(cfg *config.Config) notify.HandlerOptions {
	return notify.HandlerOptions{
		TemplateDir: cfg.Notify.TemplateDir,
		AdminEmail:  cfg.Notify.AdminEmail,
		UseSES:      cfg.SES.AccessKey != "" || os.Getenv("AWS_EXECUTION_ENV") != "",
		SES: notify.SESConfig{
			Region:    cfg.SES.Region,
			AccessKey: cfg.SES.AccessKey,
			SecretKey: cfg.SES.SecretKey,
			From:      cfg.Notify.From,
		},
		Links: donorLinks(cfg),
	}
}

func donorLinks(cfg *config.Config) *donorlink.Signer {
	if cfg.Auth.DonorLinkSecret == "" {
		return nil
	}
	return donorlink.NewSigner(cfg.Auth.DonorLinkSecret, cfg.Auth.DonorLinkTTL(), cfg.Auth.PublicURL)
}
