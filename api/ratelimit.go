package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// Request categories with independent ceilings. Image generation and
// transcription guard expensive downstream calls; everything else shares
// the default ceiling.
const (
	CategoryImage      = "image"
	CategoryTranscribe = "transcribe"
	CategoryDefault    = "default"
)

const (
	defaultWindow            = time.Minute
	defaultImageCeiling      = 5
	defaultTranscribeCeiling = 20
	defaultCeiling           = 120
)

// RateLimiterConfig overrides the window length and per-category ceilings.
// Zero values keep the defaults.
type RateLimiterConfig struct {
	Window   time.Duration
	Ceilings map[string]int
}

type window struct {
	count      int
	start      time.Time
	lastAccess time.Time
}

// RateLimiter is a fixed-window counter keyed by (caller identity, request
// category). Windows are created on first use and swept when idle.
type RateLimiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	window   time.Duration
	ceilings map[string]int
	log      *log.Logger

	now func() time.Time
}

func NewRateLimiter(cfg RateLimiterConfig, logger *log.Logger) *RateLimiter {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	ceilings := map[string]int{
		CategoryImage:      defaultImageCeiling,
		CategoryTranscribe: defaultTranscribeCeiling,
		CategoryDefault:    defaultCeiling,
	}
	for category, n := range cfg.Ceilings {
		if n > 0 {
			ceilings[category] = n
		}
	}
	return &RateLimiter{
		windows:  make(map[string]*window),
		window:   cfg.Window,
		ceilings: ceilings,
		log:      logger,
		now:      time.Now,
	}
}

// Allow records one request for (identity, category) and reports whether it
// fits the current window. On rejection retryAfter is the remaining window
// time; nothing is mutated.
func (rl *RateLimiter) Allow(identity, category string) (bool, time.Duration) {
	ceiling, ok := rl.ceilings[category]
	if !ok {
		ceiling = rl.ceilings[CategoryDefault]
	}

	key := identity + "|" + category
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, exists := rl.windows[key]
	if !exists || now.Sub(w.start) >= rl.window {
		rl.windows[key] = &window{count: 1, start: now, lastAccess: now}
		return true, 0
	}
	w.lastAccess = now
	if w.count < ceiling {
		w.count++
		return true, 0
	}
	return false, w.start.Add(rl.window).Sub(now)
}

// Sweep drops windows idle longer than maxAge so unique identities cannot
// grow the map without bound.
func (rl *RateLimiter) Sweep(maxAge time.Duration) {
	cutoff := rl.now().Add(-maxAge)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	swept := 0
	for key, w := range rl.windows {
		if w.lastAccess.Before(cutoff) {
			delete(rl.windows, key)
			swept++
		}
	}
	if swept > 0 && rl.log != nil {
		rl.log.WithFields(log.Fields{"swept": swept, "remaining": len(rl.windows)}).Debug("rate limiter sweep")
	}
}

// StartSweeper sweeps stale windows periodically until ctx is cancelled.
func (rl *RateLimiter) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Sweep(2 * rl.window)
			}
		}
	}()
}

// WindowCount reports the tracked window count.
func (rl *RateLimiter) WindowCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// Middleware enforces the category ceiling per caller identity. A nil
// limiter disables enforcement.
func (rl *RateLimiter) Middleware(category string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if rl == nil {
				return next(c)
			}
			ok, retryAfter := rl.Allow(identityOf(c), category)
			if !ok {
				c.Response().Header().Set("Retry-After", strconv.FormatInt(retryAfterSeconds(retryAfter), 10))
				return c.JSON(http.StatusTooManyRequests, operationResponse{Error: "rate limit exceeded"})
			}
			return next(c)
		}
	}
}

func retryAfterSeconds(d time.Duration) int64 {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
