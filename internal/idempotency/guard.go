package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Guard remembers the outcome of recently processed requests so exact
// retries replay the stored result instead of re-running side effects.
//
// Values are opaque bytes; callers marshal whatever they need to replay.
type Guard interface {
	// Check returns the stored value for key, or ok=false on a miss.
	Check(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Store saves value under key for the guard's TTL.
	Store(ctx context.Context, key string, value []byte) error
}

// KeyFromLead derives a replay key from lead identity plus a one-minute
// time bucket. The bucket bounds how long two identical submissions are
// considered the same request.
func KeyFromLead(email, phone string, at time.Time) string {
	bucket := at.UTC().Truncate(time.Minute).Unix()
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", email, phone, bucket)))
	return hex.EncodeToString(sum[:])
}

// KeyFromParts derives a replay key from arbitrary request parts.
func KeyFromParts(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryGuard is the in-process Guard used when Redis is not configured.
// Entries expire after ttl; a background sweeper reclaims them, and a
// full sweep runs whenever the map hits maxEntries.
type MemoryGuard struct {
	mu      sync.Mutex
	entries map[string]memEntry

	ttl        time.Duration
	maxEntries int
	log        *slog.Logger
	clock      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func NewMemoryGuard(ttl time.Duration, maxEntries int, sweepInterval time.Duration, log *slog.Logger) *MemoryGuard {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if log == nil {
		log = slog.Default()
	}

	g := &MemoryGuard{
		entries:    make(map[string]memEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		log:        log,
		clock:      time.Now,
		stop:       make(chan struct{}),
	}
	if sweepInterval > 0 {
		go g.sweepLoop(sweepInterval)
	}
	return g
}

func (g *MemoryGuard) Check(ctx context.Context, key string) ([]byte, bool, error) {
	now := g.clock()

	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[key]
	if !ok {
		return nil, false, nil
	}
	if now.After(e.expiresAt) {
		delete(g.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (g *MemoryGuard) Store(ctx context.Context, key string, value []byte) error {
	now := g.clock()

	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.entries) >= g.maxEntries {
		removed := g.sweepLocked(now)
		if removed > 0 {
			g.log.Debug("idempotency sweep at capacity", "removed", removed, "remaining", len(g.entries))
		}
		// Even if the sweep freed nothing we still insert: dropping the
		// newest entry would break replay for the request in hand.
	}

	g.entries[key] = memEntry{value: value, expiresAt: now.Add(g.ttl)}
	return nil
}

// Len reports the current entry count. Test and stats hook.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// Stop terminates the background sweeper. Idempotent.
func (g *MemoryGuard) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
}

func (g *MemoryGuard) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			now := g.clock()
			g.mu.Lock()
			removed := g.sweepLocked(now)
			g.mu.Unlock()
			if removed > 0 {
				g.log.Debug("idempotency sweep", "removed", removed)
			}
		}
	}
}

func (g *MemoryGuard) sweepLocked(now time.Time) int {
	removed := 0
	for k, e := range g.entries {
		if now.After(e.expiresAt) {
			delete(g.entries, k)
			removed++
		}
	}
	return removed
}
