package chaos

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds chaos configuration
type Config struct {
	Enabled         bool   `env:"CHAOS_ENABLED" envDefault:"false"`
	Profile         string `env:"CHAOS_PROFILE"`
	TargetProductID string `env:"CHAOS_TARGET_PRODUCT_ID"`
	DropPct         int    `env:"CHAOS_DROP_PCT" envDefault:"0"`
	DelayMsMin      int    `env:"CHAOS_DELAY_MS_MIN" envDefault:"0"`
	DelayMsMax      int    `env:"CHAOS_DELAY_MS_MAX" envDefault:"0"`
	Seed            int64  `env:"CHAOS_SEED" envDefault:"1"`
	WindowMs        int    `env:"CHAOS_WINDOW_MS" envDefault:"0"`
}

// LoadConfig loads chaos configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse chaos config: %w", err)
	}
	return cfg, nil
}

// ParseProfile parses a profile string like "drop-pct=30,delay=50-250"
func ParseProfile(profile string) (dropPct int, delayMin int, delayMax int, err error) {
	if profile == "" {
		return 0, 0, 0, nil
	}

	parts := strings.Split(profile, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "drop-pct="):
			val := strings.TrimPrefix(part, "drop-pct=")
			dropPct, err = strconv.Atoi(val)
			if err != nil {
				return 0, 0, 0, fmt.Errorf("invalid drop-pct: %w", err)
			}
			if dropPct < 0 || dropPct > 100 {
				return 0, 0, 0, fmt.Errorf("drop-pct %d out of range 0-100", dropPct)
			}
		case strings.HasPrefix(part, "delay="):
			val := strings.TrimPrefix(part, "delay=")
			delayParts := strings.Split(val, "-")
			if len(delayParts) != 2 {
				return 0, 0, 0, fmt.Errorf("invalid delay %q, want min-max", val)
			}
			delayMin, err = strconv.Atoi(delayParts[0])
			if err != nil {
				return 0, 0, 0, fmt.Errorf("invalid delay min: %w", err)
			}
			delayMax, err = strconv.Atoi(delayParts[1])
			if err != nil {
				return 0, 0, 0, fmt.Errorf("invalid delay max: %w", err)
			}
			if delayMin > delayMax {
				return 0, 0, 0, fmt.Errorf("delay min %d above max %d", delayMin, delayMax)
			}
		case part == "":
		default:
			return 0, 0, 0, fmt.Errorf("unknown profile entry %q", part)
		}
	}

	return dropPct, delayMin, delayMax, nil
}
