package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// A Gate enforces a minimum interval between outbound requests to one remote
// host. The last-request timestamp lives in a shared file so that separate
// exporter processes pointed at the same host throttle cooperatively, not just
// goroutines within one process.
type Gate struct {
	mu       sync.Mutex
	interval time.Duration
	stamp    string
	lock     string
}

const lockStaleAfter = 10 * time.Second

// NewGate creates a gate for the given host keyed under dir. An empty dir
// falls back to the OS temp directory.
func NewGate(dir, host string, interval time.Duration) *Gate {
	if dir == "" {
		dir = os.TempDir()
	}
	base := filepath.Join(dir, "gcexport_rate."+host)
	return &Gate{
		interval: interval,
		stamp:    base + ".stamp",
		lock:     base + ".lock",
	}
}

// Wait blocks until a request may start without violating the minimum
// interval, then records the new request start time. Returns early with the
// context error if ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	if g == nil || g.interval <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.acquire(ctx); err != nil {
		return err
	}
	defer os.Remove(g.lock)

	wait := g.interval - time.Since(g.lastRequest())
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return g.record(time.Now())
}

// acquire takes the cross-process lock file, breaking locks left behind by a
// crashed process.
func (g *Gate) acquire(ctx context.Context) error {
	for {
		f, err := os.OpenFile(g.lock, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("acquiring rate lock: %w", err)
		}
		if info, statErr := os.Stat(g.lock); statErr == nil && time.Since(info.ModTime()) > lockStaleAfter {
			os.Remove(g.lock)
			continue
		}
		select {
		case <-time.After(25 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (g *Gate) lastRequest() time.Time {
	data, err := os.ReadFile(g.stamp)
	if err != nil {
		return time.Time{}
	}
	nanos, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

func (g *Gate) record(t time.Time) error {
	data := []byte(strconv.FormatInt(t.UnixNano(), 10))
	if err := os.WriteFile(g.stamp, data, 0o644); err != nil {
		return fmt.Errorf("recording request time: %w", err)
	}
	return nil
}
