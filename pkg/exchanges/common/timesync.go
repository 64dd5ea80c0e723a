package common

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TimeSync keeps the offset between local clock and venue server time so
// signed requests stay inside the venue's receive window.
type TimeSync struct {
	getServerTime func(ctx context.Context) (int64, error)
	offset        int64 // milliseconds offset (server - local)
	synced        bool
	lastSync      time.Time
	log           logrus.FieldLogger
	mu            sync.RWMutex
}

// NewTimeSync creates a new time synchronization manager.
func NewTimeSync(getServerTime func(ctx context.Context) (int64, error), log logrus.FieldLogger) *TimeSync {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TimeSync{getServerTime: getServerTime, log: log}
}

// Sync synchronizes with server time.
func (ts *TimeSync) Sync(ctx context.Context) error {
	localBefore := time.Now().UnixMilli()
	serverTime, err := ts.getServerTime(ctx)
	if err != nil {
		return err
	}
	localAfter := time.Now().UnixMilli()

	// Assume network latency is symmetric
	localTime := localBefore + (localAfter-localBefore)/2

	ts.mu.Lock()
	ts.offset = serverTime - localTime
	ts.synced = true
	ts.lastSync = time.Now()
	ts.mu.Unlock()

	ts.log.WithFields(logrus.Fields{"offset_ms": serverTime - localTime}).Debug("time sync")
	return nil
}

// Now returns current time in ms adjusted for server offset.
func (ts *TimeSync) Now() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return time.Now().UnixMilli() + ts.offset
}

// Stale reports whether a resync is due.
func (ts *TimeSync) Stale(maxAge time.Duration) bool {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return !ts.synced || time.Since(ts.lastSync) > maxAge
}
