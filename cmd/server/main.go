package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/chunkstore"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/config"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/migration"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/repository"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/server"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/service"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/pkg/aws"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/pkg/pubsub"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/pkg/sfu"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/pkg/vision"
)

func main() {
	log.Println("🚀 Starting Muncak Live relay...")

	config.LoadEnvFile()
	cfg := config.Load()
	log.Printf("📋 Configuration loaded: env=%s store=%s chunks=%s", cfg.Environment, cfg.Store.Driver, cfg.Chunks.Dir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize repositories
	store, err := repository.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to open store: %v", err)
	}
	defer store.Close()

	if dynamo, ok := store.(*repository.DynamoDBRepository); ok {
		migrator := migration.NewDynamoDBMigrator(dynamo.Client(), &cfg.AWS)
		if err := migrator.CreateTables(ctx); err != nil {
			log.Fatalf("❌ Failed to create DynamoDB tables: %v", err)
		}
	}

	redisRepo, err := repository.NewRedisRepository(cfg.Redis)
	if err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	defer redisRepo.Close()

	chunks, err := chunkstore.New(cfg.Chunks.Dir)
	if err != nil {
		log.Fatalf("❌ Failed to prepare chunk dir: %v", err)
	}

	// Event fan-out
	publishers := pubsub.Multi{pubsub.NewRedisPublisher(redisRepo.Client())}
	if cfg.AWS.KinesisStreamName != "" {
		kinesis := aws.NewKinesisClient(cfg.AWS.Region, cfg.AWS.KinesisStreamName)
		publishers = append(publishers, pubsub.NewKinesisPublisher(kinesis,
			pubsub.EventStreamStarted,
			pubsub.EventStreamEnded,
			pubsub.EventFrameClassified,
		))
		log.Printf("📡 Lifecycle events mirrored to Kinesis stream %s", cfg.AWS.KinesisStreamName)
	}

	frames := aws.NewS3Client(cfg.AWS.Region, cfg.AWS.S3BucketName, cfg.AWS.S3MockMode, cfg.AWS.S3MockDir)
	classifier := vision.NewClient(vision.Config{
		Endpoint:       cfg.Vision.Endpoint,
		APIKey:         cfg.Vision.APIKey,
		Model:          cfg.Vision.Model,
		MaxAttempts:    cfg.Vision.MaxAttempts,
		InitialBackoff: cfg.Vision.InitialBackoff,
		MaxBackoff:     cfg.Vision.MaxBackoff,
		Timeout:        cfg.Vision.Timeout,
	})
	minter := sfu.NewMinter(cfg.SFU.URL, cfg.SFU.APIKey, cfg.SFU.APISecret, cfg.SFU.TokenTTL)

	// Initialize services
	streamService := service.NewStreamService(cfg, store, store, redisRepo, chunks, publishers)
	chunkService := service.NewChunkService(&cfg.Chunks, streamService, chunks, publishers)
	viewerService := service.NewViewerService(cfg.Chat.ViewerCountThreshold, streamService, store, redisRepo, publishers)
	chatService := service.NewChatService(&cfg.Chat, streamService, store, redisRepo, publishers)
	realtimeService := service.NewRealtimeService(streamService, minter, publishers)
	classifierService := service.NewClassifierService(streamService, store, frames, classifier, publishers)

	hub := server.NewWebSocketHub()
	go hub.Run(ctx)
	go hub.Relay(ctx, redisRepo.PSubscribe(ctx, pubsub.StreamChannel("*")))

	handler := service.NewHandler(cfg, streamService, chunkService, viewerService, chatService,
		realtimeService, classifierService, hub)

	checks := map[string]server.HealthChecker{
		"store": store.Ping,
		"redis": redisRepo.Ping,
	}

	router, err := server.NewRouter(cfg.IsProduction(), cfg.Server.TrustedProxies)
	if err != nil {
		log.Fatalf("❌ Failed to build router: %v", err)
	}
	router.GET("/health", server.HealthCheck(checks))
	handler.RegisterRoutes(router.Group("/api/v1"))

	grpcServer := server.NewGRPCServer()
	if err := grpcServer.Start(cfg.Server.GRPCPort); err != nil {
		log.Fatalf("❌ Failed to start gRPC server: %v", err)
	}
	go grpcServer.Probe(ctx, 15*time.Second, checks)

	if cfg.Chunks.SweepEnabled {
		go runSweeper(ctx, chunkService, cfg.Chunks)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Printf("✅ Muncak Live relay started on port %s", cfg.Server.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start HTTP server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Shutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Server forced to shutdown: %v", err)
	}
	grpcServer.Stop()

	log.Println("✅ Server exited")
}

// runSweeper removes segments abandoned by crashed broadcasters.
func runSweeper(ctx context.Context, chunks *service.ChunkService, cfg config.ChunkConfig) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	log.Printf("🧹 Chunk sweeper running every %s (max age %s)", cfg.SweepInterval, cfg.SweepAge)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := chunks.Sweep(cfg.SweepAge); err != nil {
				log.Printf("⚠️ Chunk sweep failed: %v", err)
			}
		}
	}
}
