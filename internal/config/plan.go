package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ismaiel54/fullfeed/internal/feed"
)

// rawPlan mirrors a subscription plan file:
//
//	product_ids = ["ETH-USD", "BTC-USD"]
//	channels = ["level2", "heartbeat", { name = "ticker", product_ids = ["ETH-BTC", "ETH-USD"] }]
//
// A string entry is a name-only channel, a table entry a detailed one.
type rawPlan struct {
	ProductIDs []string `toml:"product_ids"`
	Channels   []any    `toml:"channels"`
}

// LoadPlan reads a subscription plan from a TOML file.
func LoadPlan(path string) (feed.Subscribe, error) {
	var raw rawPlan
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return feed.Subscribe{}, fmt.Errorf("plan parse failed (%s): %w", path, err)
	}
	return buildPlan(raw, meta)
}

// DecodePlan parses a subscription plan held in memory.
func DecodePlan(data string) (feed.Subscribe, error) {
	var raw rawPlan
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return feed.Subscribe{}, fmt.Errorf("plan parse failed: %w", err)
	}
	return buildPlan(raw, meta)
}

// DefaultPlan subscribes to one channel restricted to productIDs, with no
// top-level product list.
func DefaultPlan(channel string, productIDs ...string) feed.Subscribe {
	return feed.Subscribe{
		Channels: feed.Channels{feed.Detailed(channel, productIDs...)},
	}
}

func buildPlan(raw rawPlan, meta toml.MetaData) (feed.Subscribe, error) {
	if !meta.IsDefined("channels") || len(raw.Channels) == 0 {
		return feed.Subscribe{}, errors.New("plan missing channels")
	}

	channels := make(feed.Channels, 0, len(raw.Channels))
	for i, entry := range raw.Channels {
		c, err := planChannel(entry)
		if err != nil {
			return feed.Subscribe{}, fmt.Errorf("channels[%d] invalid: %w", i, err)
		}
		channels = append(channels, c)
	}

	return feed.Subscribe{ProductIDs: raw.ProductIDs, Channels: channels}, nil
}

func planChannel(entry any) (feed.Channel, error) {
	switch v := entry.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, errors.New("channel name is empty")
		}
		return feed.Named(v), nil
	case map[string]any:
		name, _ := v["name"].(string)
		if strings.TrimSpace(name) == "" {
			return nil, errors.New("channel table missing name")
		}
		var products []string
		if list, ok := v["product_ids"]; ok {
			items, ok := list.([]any)
			if !ok {
				return nil, fmt.Errorf("product_ids must be a list, got %T", list)
			}
			for _, item := range items {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("product id must be a string, got %T", item)
				}
				products = append(products, s)
			}
		}
		return feed.Detailed(name, products...), nil
	default:
		return nil, fmt.Errorf("expected a name or a table, got %T", entry)
	}
}
