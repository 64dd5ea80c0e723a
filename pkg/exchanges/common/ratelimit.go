package common

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrWeightExhausted is returned instead of sending a request once the
// venue-reported weight is close to the per-minute limit.
var ErrWeightExhausted = errors.New("venue: request weight near limit")

// RateLimiter tracks API weight usage reported by the venue.
type RateLimiter struct {
	usedWeight    int
	limit         int
	lastReset     time.Time
	resetInterval time.Duration
	log           logrus.FieldLogger
	mu            sync.RWMutex
}

// NewRateLimiter creates a new rate limiter.
// limit: maximum weight allowed (e.g., 1200 for spot)
// resetInterval: time window (e.g., 1 minute)
func NewRateLimiter(limit int, resetInterval time.Duration, log logrus.FieldLogger) *RateLimiter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RateLimiter{
		limit:         limit,
		resetInterval: resetInterval,
		lastReset:     time.Now(),
		log:           log,
	}
}

// UpdateFromHeader updates the used weight from API response header.
func (rl *RateLimiter) UpdateFromHeader(headerValue string) {
	if headerValue == "" {
		return
	}

	weight, err := strconv.Atoi(headerValue)
	if err != nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastReset) >= rl.resetInterval {
		rl.usedWeight = 0
		rl.lastReset = time.Now()
	}

	rl.usedWeight = weight

	percentage := float64(rl.usedWeight) / float64(rl.limit) * 100
	fields := logrus.Fields{"used": rl.usedWeight, "limit": rl.limit, "pct": percentage}
	if percentage >= 95 {
		rl.log.WithFields(fields).Error("rate limit critical, approaching ban threshold")
	} else if percentage >= 80 {
		rl.log.WithFields(fields).Warn("rate limit warning")
	}
}

// GetUsage returns current usage information.
func (rl *RateLimiter) GetUsage() (used int, limit int, percentage float64) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	if time.Since(rl.lastReset) >= rl.resetInterval {
		return 0, rl.limit, 0
	}

	return rl.usedWeight, rl.limit, float64(rl.usedWeight) / float64(rl.limit) * 100
}

// Check returns ErrWeightExhausted once usage reaches 90% of the limit.
func (rl *RateLimiter) Check() error {
	used, limit, pct := rl.GetUsage()
	if pct < 90 {
		return nil
	}
	return fmt.Errorf("%w: %d/%d used", ErrWeightExhausted, used, limit)
}
