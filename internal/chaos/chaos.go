package chaos

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Chaos drops or delays frames on the ingest path to rehearse how
// downstream consumers cope with sequence gaps and stalls. It is seeded,
// so a run can be replayed.
type Chaos struct {
	cfg    Config
	logger *zap.Logger
	rng    *rand.Rand
	mu     sync.Mutex
	start  time.Time
	now    func() time.Time
}

// New creates a new Chaos instance. A profile, when set, overrides the
// individual drop and delay settings.
func New(cfg Config, logger *zap.Logger) *Chaos {
	if cfg.Profile != "" {
		dropPct, delayMin, delayMax, err := ParseProfile(cfg.Profile)
		if err != nil {
			logger.Warn("failed to parse chaos profile", zap.Error(err))
		} else {
			if dropPct > 0 {
				cfg.DropPct = dropPct
			}
			if delayMin > 0 || delayMax > 0 {
				cfg.DelayMsMin = delayMin
				cfg.DelayMsMax = delayMax
			}
		}
	}

	return &Chaos{
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		start:  time.Now(),
		now:    time.Now,
	}
}

// EnabledFor checks if chaos applies to frames of a product
func (c *Chaos) EnabledFor(productID string) bool {
	if !c.cfg.Enabled {
		return false
	}

	if c.cfg.WindowMs > 0 {
		elapsed := c.now().Sub(c.start).Milliseconds()
		if elapsed > int64(c.cfg.WindowMs) {
			return false
		}
	}

	if c.cfg.TargetProductID != "" && c.cfg.TargetProductID != productID {
		return false
	}

	return true
}

// MaybeDelay injects a random delay if chaos is enabled
func (c *Chaos) MaybeDelay(ctx context.Context, productID, op string) error {
	if !c.EnabledFor(productID) {
		return nil
	}

	if c.cfg.DelayMsMin == 0 && c.cfg.DelayMsMax == 0 {
		return nil
	}

	c.mu.Lock()
	var delayMs int
	if c.cfg.DelayMsMin == c.cfg.DelayMsMax {
		delayMs = c.cfg.DelayMsMin
	} else {
		delayMs = c.cfg.DelayMsMin + c.rng.Intn(c.cfg.DelayMsMax-c.cfg.DelayMsMin+1)
	}
	c.mu.Unlock()

	if delayMs <= 0 {
		return nil
	}

	c.logger.Debug("chaos delay injected",
		zap.String("product_id", productID),
		zap.String("op", op),
		zap.Int("delay_ms", delayMs),
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(delayMs) * time.Millisecond):
		return nil
	}
}

// MaybeDrop returns true if the frame should be dropped
func (c *Chaos) MaybeDrop(productID, op string) bool {
	if !c.EnabledFor(productID) {
		return false
	}

	if c.cfg.DropPct == 0 {
		return false
	}

	c.mu.Lock()
	drop := c.rng.Intn(100) < c.cfg.DropPct
	c.mu.Unlock()

	if drop {
		c.logger.Debug("chaos drop injected",
			zap.String("product_id", productID),
			zap.String("op", op),
		)
	}

	return drop
}
