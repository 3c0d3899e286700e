package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/ismaiel54/fullfeed/internal/chaos"
	"github.com/ismaiel54/fullfeed/internal/config"
	"github.com/ismaiel54/fullfeed/internal/fanout"
	"github.com/ismaiel54/fullfeed/internal/feed"
	"github.com/ismaiel54/fullfeed/internal/logging"
	"github.com/ismaiel54/fullfeed/internal/msg"
	"github.com/ismaiel54/fullfeed/internal/observability"
	"github.com/ismaiel54/fullfeed/internal/reader"
	"github.com/ismaiel54/fullfeed/internal/session"
	"github.com/ismaiel54/fullfeed/internal/stats"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("read-full")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	output := flag.String("output", cfg.StatsOutput, "statistics CSV file")
	channel := flag.String("channel", cfg.FeedChannel, "channel to subscribe to when no plan is given")
	endpoint := flag.String("endpoint", cfg.FeedEndpoint, "websocket feed endpoint")
	planPath := flag.String("plan", cfg.FeedPlanPath, "TOML subscription plan")
	flag.Parse()

	// Initialize logger
	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	plan := config.DefaultPlan(*channel, cfg.FeedProductIDs...)
	if *planPath != "" {
		plan, err = config.LoadPlan(*planPath)
		if err != nil {
			logger.Fatal("failed to load subscription plan", zap.String("path", *planPath), zap.Error(err))
		}
	}

	pretty, err := feed.EncodeIndent(plan)
	if err != nil {
		logger.Fatal("failed to encode subscription plan", zap.Error(err))
	}
	logger.Info("starting read-full",
		zap.String("endpoint", *endpoint),
		zap.String("output", *output),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("http_port", cfg.HTTPPort),
	)
	fmt.Println(string(pretty))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Health
	healthChecker := observability.NewHealthChecker(logger)
	healthChecker.SetReady(observability.ComponentFeed, false)

	grpcServer := grpc.NewServer()
	healthChecker.RegisterGRPC(grpcServer)

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		logger.Fatal("failed to listen on gRPC port", zap.Error(err))
	}

	grpcErrCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			grpcErrCh <- err
		}
	}()

	httpErrCh := make(chan error, 1)
	go func() {
		if err := healthChecker.StartHTTPServer(cfg.HTTPAddr()); err != nil && err != http.ErrServerClosed {
			httpErrCh <- err
		}
	}()

	// Stats and reject journal
	store, err := stats.Open(cfg.StatsDBPath)
	if err != nil {
		logger.Fatal("failed to open stats store", zap.Error(err))
	}
	defer store.Close()

	csvSink, err := stats.NewCSVSink(*output)
	if err != nil {
		logger.Fatal("failed to create stats output", zap.Error(err))
	}

	// Optional sinks
	opts := reader.Options{Journal: store}

	var (
		producer *msg.Producer
		relay    *stats.RejectRelay
	)
	if cfg.KafkaEnabled() {
		producer, err = msg.NewProducer(msg.Config{Brokers: cfg.KafkaBrokers, ClientID: cfg.ServiceName}, logger)
		if err != nil {
			logger.Fatal("failed to create producer", zap.Error(err))
		}
		opts.Producer = producer
		opts.Topic = msg.TopicFull
		healthChecker.SetReady(observability.ComponentKafka, true)

		relay = stats.NewRejectRelay(store, producer, msg.TopicRejects, logger)
		relay.Start(ctx)
	}

	var publisher *fanout.Publisher
	if cfg.RedisEnabled() {
		rdb, err := fanout.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		publisher = fanout.NewPublisher(rdb, logger)
		opts.Fanout = publisher
		healthChecker.SetReady(observability.ComponentRedis, true)
	}

	chaosCfg, err := chaos.LoadConfig()
	if err != nil {
		logger.Fatal("failed to load chaos config", zap.Error(err))
	}
	if chaosCfg.Enabled {
		opts.Chaos = chaos.New(*chaosCfg, logger)
		logger.Warn("chaos enabled",
			zap.String("profile", chaosCfg.Profile),
			zap.String("target_product_id", chaosCfg.TargetProductID),
		)
	}

	// Shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		case err := <-grpcErrCh:
			logger.Error("gRPC server error", zap.Error(err))
		case err := <-httpErrCh:
			logger.Error("HTTP server error", zap.Error(err))
		case <-ctx.Done():
		}
		cancel()
	}()

	// Feed session
	sess, err := session.Dial(ctx, session.Config{
		Endpoint:         *endpoint,
		Subscribe:        plan,
		HandshakeTimeout: cfg.HandshakeTimeout,
		ReadTimeout:      cfg.ReadTimeout,
		MaxDialAttempts:  cfg.MaxDialAttempts,
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to feed", zap.Error(err))
	}

	recorder := stats.NewRecorder(cfg.StatsEvery, logger, csvSink, store.SnapshotSink(sess.ID()))
	if err := recorder.Start(ctx); err != nil {
		logger.Error("failed to write initial stats", zap.Error(err))
	}

	pipeline := reader.NewPipeline(sess.ID(), recorder, opts, logger)
	healthChecker.SetReady(observability.ComponentFeed, true)

	runErr := sess.Run(ctx, pipeline.Handle)
	healthChecker.SetReady(observability.ComponentFeed, false)
	if runErr != nil {
		logger.Error("feed session ended", zap.Error(runErr))
	}

	// Graceful shutdown
	logger.Info("shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := recorder.Close(shutdownCtx); err != nil {
		logger.Error("error closing stats", zap.Error(err))
	}
	if err := sess.Close(); err != nil {
		logger.Debug("error closing feed connection", zap.Error(err))
	}

	if producer != nil {
		if _, err := relay.Stop(shutdownCtx); err != nil {
			logger.Error("failed to flush rejects", zap.Error(err))
		}
		producer.Close()
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("error closing fanout", zap.Error(err))
		}
	}

	if counts, err := store.CountRejectsByKind(shutdownCtx); err == nil && len(counts) > 0 {
		fields := make([]zap.Field, 0, len(counts))
		for kind, n := range counts {
			fields = append(fields, zap.Int(kind, n))
		}
		logger.Info("rejected frames by kind", fields...)
	}

	c := pipeline.Counters()
	logger.Info("read-full summary",
		zap.Int64("frames", c.Frames),
		zap.Int64("decoded", c.Decoded),
		zap.Int64("rejected", c.Rejected),
		zap.Int64("dropped", c.Dropped),
		zap.Int64("sink_failures", c.SinkFails),
	)

	if err := healthChecker.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down health checker", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("read-full stopped")
	if runErr != nil {
		os.Exit(1)
	}
}
