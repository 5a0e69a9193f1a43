package utils

import (
	"context"
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
}

type RealClock struct{}

func (self RealClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (self RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (self RealClock) Now() time.Time {
	return time.Now()
}

// A clock frozen at MockNow. Sleeps return immediately but are
// recorded so tests can inspect the backoff schedule.
type MockClock struct {
	mu      sync.Mutex
	MockNow time.Time
	sleeps  []time.Duration
}

func (self *MockClock) Now() time.Time {
	self.mu.Lock()
	defer self.mu.Unlock()

	return self.MockNow
}

func (self *MockClock) After(d time.Duration) <-chan time.Time {
	return time.After(0)
}

func (self *MockClock) Sleep(d time.Duration) {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.sleeps = append(self.sleeps, d)
}

func (self *MockClock) Sleeps() []time.Duration {
	self.mu.Lock()
	defer self.mu.Unlock()

	return append([]time.Duration{}, self.sleeps...)
}

// Sleep on the clock but wake up early if the context is done.
func SleepWithCtx(ctx context.Context, clock Clock, d time.Duration) error {
	if _, ok := clock.(RealClock); !ok {
		clock.Sleep(d)
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}
