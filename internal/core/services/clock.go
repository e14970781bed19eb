package services

import (
	"context"
	"time"

	"github.com/poyrazK/desecdesk/internal/core/ports"
)

// systemClock is the wall-clock implementation of ports.Clock.
type systemClock struct{}

// NewSystemClock returns the process-wide real clock.
func NewSystemClock() ports.Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (systemClock) AfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
