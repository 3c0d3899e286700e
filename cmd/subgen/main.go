package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ismaiel54/fullfeed/internal/config"
	"github.com/ismaiel54/fullfeed/internal/feed"
)

// defaultPlan mixes bare and detailed channels
func defaultPlan() feed.Subscribe {
	return feed.Subscribe{
		ProductIDs: []string{"ETH-USD", "BTC-USD"},
		Channels: feed.Channels{
			feed.Named("level2"),
			feed.Named("heartbeat"),
			feed.Detailed("ticker", "ETH-BTC", "ETH-USD"),
		},
	}
}

func main() {
	planPath := flag.String("plan", "", "TOML subscription plan (default: level2, heartbeat and ticker)")
	compact := flag.Bool("compact", false, "print the frame exactly as sent on the wire")
	flag.Parse()

	plan := defaultPlan()
	if *planPath != "" {
		var err error
		plan, err = config.LoadPlan(*planPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load plan: %v\n", err)
			os.Exit(1)
		}
	}

	if *compact {
		fmt.Println(string(feed.EncodeSubscribe(plan)))
		return
	}

	out, err := feed.EncodeIndent(plan)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode plan: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
