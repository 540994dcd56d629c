package alerting

import (
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"k8s.io/utils/clock"
)

// Cooldown suppresses repeated critical notifications for the same equipment.
type Cooldown struct {
	mu     sync.Mutex
	clock  clock.PassiveClock
	window time.Duration
	expiry time.Duration
	seen   *cache.Cache
}

// NewCooldown creates a cooldown that allows one notification per window and per equipment.
// Entries are evicted after expiry, which must not be shorter than window.
func NewCooldown(clk clock.PassiveClock, window, expiry time.Duration) *Cooldown {
	if expiry < window {
		expiry = window
	}
	return &Cooldown{
		clock:  clk,
		window: window,
		expiry: expiry,
		seen:   cache.New(expiry, 2*expiry),
	}
}

// Allow reports whether a notification for the equipment may be sent now, and if so
// starts a new window. The check and the update happen atomically.
func (c *Cooldown) Allow(equipmentID int64) bool {
	key := strconv.FormatInt(equipmentID, 10)
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, found := c.seen.Get(key); found {
		if last, ok := v.(time.Time); ok && now.Sub(last) < c.window {
			return false
		}
	}
	c.seen.Set(key, now, c.expiry)
	return true
}
