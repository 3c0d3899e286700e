package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"go.uber.org/zap"

	"github.com/ismaiel54/fullfeed/internal/feed"
	"github.com/ismaiel54/fullfeed/internal/logging"
	"github.com/ismaiel54/fullfeed/internal/msg"
)

const maxFrameSize = 1 << 20

func main() {
	var (
		input   = flag.String("input", "", "file of recorded frames, one per line")
		dupPct  = flag.Int("dup-pct", 0, "Percentage of frames sent twice (0-100)")
		seed    = flag.Int64("seed", 42, "Random seed for deterministic duplicates")
		brokers = flag.String("brokers", "127.0.0.1:9092", "Kafka broker addresses")
		topic   = flag.String("topic", msg.TopicFull, "Topic to produce to")
	)
	flag.Parse()

	if *input == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -input frames.jsonl [-dup-pct 10] [-brokers host:port]\n", os.Args[0])
		os.Exit(1)
	}

	logger, err := logging.NewLogger("replay", "info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := msg.Config{Brokers: msg.ParseBrokers(*brokers), ClientID: "replay"}
	logger.Info("starting replay",
		zap.String("input", *input),
		zap.Int("dup_pct", *dupPct),
		zap.Int64("seed", *seed),
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", *topic),
	)

	f, err := os.Open(*input)
	if err != nil {
		logger.Fatal("failed to open input", zap.Error(err))
	}
	defer f.Close()

	producer, err := msg.NewProducer(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create producer", zap.Error(err))
	}
	defer producer.Close()

	rng := rand.New(rand.NewSource(*seed))
	sessionID := "replay-" + *input

	ctx := context.Background()
	var lines, produced, duplicates, rejected, failed int

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	for scanner.Scan() {
		frame := bytes.TrimSpace(scanner.Bytes())
		if len(frame) == 0 {
			continue
		}
		lines++

		m, err := feed.Decode(frame)
		if err != nil {
			logger.Warn("skipping undecodable frame",
				zap.Int("line", lines),
				zap.String("kind", feed.ErrorKind(err)),
				zap.Error(err),
			)
			rejected++
			continue
		}

		sends := 1
		if rng.Intn(100) < *dupPct {
			sends = 2
			duplicates++
		}

		key := msg.PartitionKey(m)
		for i := 0; i < sends; i++ {
			if err := producer.ProduceFrame(ctx, *topic, key, frame, msg.FrameHeaders(sessionID, m)); err != nil {
				logger.Error("failed to produce frame",
					zap.Int("line", lines),
					zap.String("key", key),
					zap.Error(err),
				)
				failed++
				continue
			}
			produced++
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("failed to read input", zap.Error(err))
		failed++
	}

	logger.Info("replay completed",
		zap.Int("lines", lines),
		zap.Int("produced", produced),
		zap.Int("duplicates", duplicates),
		zap.Int("rejected", rejected),
		zap.Int("failed", failed),
	)

	fmt.Printf("\n=== Replay Summary ===\n")
	fmt.Printf("Frames read: %d\n", lines)
	fmt.Printf("Produced: %d\n", produced)
	fmt.Printf("Duplicated: %d\n", duplicates)
	fmt.Printf("Undecodable: %d\n", rejected)
	fmt.Printf("Failed: %d\n", failed)
	fmt.Printf("Topic: %s\n", *topic)
	fmt.Printf("\n")

	if failed > 0 {
		os.Exit(1)
	}
}
