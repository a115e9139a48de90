package main

import (
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/config"
	model "auction-engine/internal/models"
	"auction-engine/internal/notify"
	"auction-engine/internal/repository"
	"auction-engine/internal/scheduler"
	"auction-engine/internal/server"
	"auction-engine/utils"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		utils.Fatal("Failed to parse configuration", map[string]any{"error": err.Error()})
	}
	if err := cfg.Validate(); err != nil {
		utils.Fatal("Invalid configuration", map[string]any{"error": err.Error()})
	}
	if err := utils.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		utils.Fatal("Invalid log settings", map[string]any{"level": cfg.LogLevel, "format": cfg.LogFormat, "error": err.Error()})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(cfg)
	if err != nil {
		utils.Fatal("Failed to open storage", map[string]any{"storage": cfg.Storage, "error": err.Error()})
	}
	defer closeRepo()

	notifier, closeNotifier, err := openNotifier(ctx, cfg)
	if err != nil {
		utils.Fatal("Failed to set up notifier", map[string]any{"notifier": cfg.Notifier, "error": err.Error()})
	}
	defer closeNotifier()

	dispatcher := notify.NewDispatcher(notifier, 5*time.Second)
	biddingSvc := bidding.NewBiddingService(repo, dispatcher, bidding.WithCommitRetries(cfg.CommitRetries))

	if cfg.SeedDemo {
		seedDemoAuction(ctx, biddingSvc)
	}

	sched := scheduler.New(biddingSvc, biddingSvc.Clock(), cfg.SchedulerInterval)
	sched.Start(ctx)

	router := server.SetupRouter(biddingSvc, server.Options{
		BidRateLimit: cfg.BidRateLimit,
		BidRateBurst: cfg.BidRateBurst,
	})
	srv := &http.Server{Addr: cfg.ServerAddr, Handler: router}

	go func() {
		utils.Info("Starting auction server", map[string]any{"addr": cfg.ServerAddr, "storage": cfg.Storage, "notifier": cfg.Notifier})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Error("Server stopped unexpectedly", map[string]any{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	utils.Info("Shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Warn("HTTP shutdown incomplete", map[string]any{"error": err.Error()})
	}
	sched.Stop()
	if err := dispatcher.Close(shutdownCtx); err != nil {
		utils.Warn("Undelivered events dropped", map[string]any{"pending": dispatcher.Pending(), "error": err.Error()})
	}
}

// openRepository returns the configured store and a close function
func openRepository(cfg config.Config) (repository.AuctionDB, func(), error) {
	switch cfg.Storage {
	case "sqlite":
		repo, err := repository.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { closeQuietly("sqlite", repo) }, nil
	default:
		return repository.NewMemoryRepo(), func() {}, nil
	}
}

// openNotifier always logs events and additionally publishes them to Redis when configured
func openNotifier(ctx context.Context, cfg config.Config) (notify.Notifier, func(), error) {
	if cfg.Notifier != "redis" {
		return notify.LogNotifier{}, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		closeQuietly("redis", client)
		return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}

	publisher, err := notify.NewRedisNotifier(client, cfg.RedisStream, 10000)
	if err != nil {
		closeQuietly("redis", client)
		return nil, nil, err
	}
	return notify.Multi{notify.LogNotifier{}, publisher}, func() { closeQuietly("redis", client) }, nil
}

func closeQuietly(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		utils.Warn("Close failed", map[string]any{"resource": name, "error": err.Error()})
	}
}

// seedDemoAuction creates and opens one auction so the API can be tried right away
func seedDemoAuction(ctx context.Context, svc *bidding.BiddingService) {
	now := svc.Clock().Now()
	a, err := svc.CreateAuction(ctx, "demo-seller", model.AuctionRequest{
		Title:           "Demo: mechanical watch",
		Description:     "Seeded on startup",
		StartingPrice:   decimal.NewFromInt(100),
		BidIncrement:    decimal.NewFromInt(5),
		BuyNowPrice:     decimal.NewNullDecimal(decimal.NewFromInt(1000)),
		StartTime:       now,
		EndTime:         now.Add(time.Hour),
		AutoExtend:      true,
		ExtendThreshold: 5 * time.Minute,
		ExtendDuration:  10 * time.Minute,
	})
	if err != nil {
		utils.Warn("Demo auction not created", map[string]any{"error": err.Error()})
		return
	}
	if _, err := svc.ActivateAuction(ctx, a.ID, a.SellerID); err != nil {
		utils.Warn("Demo auction not activated", map[string]any{"auction_id": a.ID, "error": err.Error()})
		return
	}
	utils.Info("Demo auction seeded", map[string]any{"auction_id": a.ID, "seller_id": a.SellerID})
}
