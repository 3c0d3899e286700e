package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ismaiel54/fullfeed/internal/feed"
	"github.com/ismaiel54/fullfeed/internal/logging"
	"github.com/ismaiel54/fullfeed/internal/msg"
	"github.com/ismaiel54/fullfeed/internal/reader"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <duration_seconds> [brokers]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s 30 127.0.0.1:9092\n", os.Args[0])
		os.Exit(1)
	}

	var durationSeconds int
	if _, err := fmt.Sscanf(os.Args[1], "%d", &durationSeconds); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid duration: %v\n", err)
		os.Exit(1)
	}

	brokers := "127.0.0.1:9092"
	if len(os.Args) >= 3 {
		brokers = os.Args[2]
	}

	logger, err := logging.NewLogger("feed-verifier", "info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := msg.Config{Brokers: msg.ParseBrokers(brokers), ClientID: "feed-verifier"}
	logger.Info("starting feed verifier",
		zap.Int("duration_seconds", durationSeconds),
		zap.Strings("brokers", cfg.Brokers),
	)

	consumer, err := msg.NewConsumer(cfg, "feed-verifier-v1", []string{msg.TopicFull}, logger)
	if err != nil {
		logger.Fatal("failed to create consumer", zap.Error(err))
	}
	defer consumer.Close()

	tracker := reader.NewGapTracker()
	undecodable := 0

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(durationSeconds)*time.Second)
	defer cancel()

	err = consumer.Run(ctx, func(ctx context.Context, rec msg.Record) error {
		m, err := feed.Decode(rec.Value)
		if err != nil {
			undecodable++
			logger.Warn("failed to decode record",
				zap.String("kind", feed.ErrorKind(err)),
				zap.String("event_id", rec.Headers[msg.HeaderEventID]),
				zap.Error(err),
			)
			return nil // Continue processing
		}

		if g, ok := tracker.Observe(m); ok {
			logger.Info("sequence gap",
				zap.String("product_id", g.ProductID),
				zap.Uint64("after", g.After),
				zap.Uint64("next", g.Next),
				zap.Int32("partition", rec.Partition),
				zap.Int64("offset", rec.Offset),
			)
		}
		return nil
	})

	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("consumer error", zap.Error(err))
	}

	// Print results
	kinds := tracker.Kinds()
	names := make([]string, 0, len(kinds))
	total := 0
	for k, n := range kinds {
		names = append(names, string(k))
		total += n
	}
	sort.Strings(names)

	fmt.Println("\n=== Feed Verification ===")
	fmt.Printf("Frames decoded: %d\n", total)
	fmt.Printf("Frames undecodable: %d\n", undecodable)
	for _, name := range names {
		fmt.Printf("  %-14s %d\n", name, kinds[feed.MessageType(name)])
	}

	gaps := tracker.Gaps()
	fmt.Printf("\nProducts tracked: %d\n", len(tracker.Products()))
	fmt.Printf("Stale or repeated sequences: %d\n", tracker.Stale())
	fmt.Printf("Sequence gaps: %d\n", len(gaps))

	missing := make(map[string]uint64)
	for _, g := range gaps {
		missing[g.ProductID] += g.Missing()
	}
	for _, id := range tracker.Products() {
		if missing[id] > 0 {
			fmt.Printf("  Product: %s, Missing sequences: %d\n", id, missing[id])
		}
	}

	// Gaps are expected on a live feed; they are reported, not failed on.
	if undecodable > 0 {
		fmt.Println("\nVERIFICATION FAILED: undecodable frames on the topic")
		os.Exit(1)
	}
	fmt.Println("\nVERIFICATION PASSED")
}
