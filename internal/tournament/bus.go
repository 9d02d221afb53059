package tournament

import (
	"context"
	"time"
)

// Bus is a single-slot wake signal. Triggers while a wakeup is already
// pending coalesce into one, so a burst of match completions costs the
// scheduler a single extra pass.
type Bus struct {
	ch chan struct{}
}

func NewBus() *Bus {
	return &Bus{ch: make(chan struct{}, 1)}
}

func (b *Bus) Trigger() {
	select {
	case b.ch <- struct{}{}:
	default:
	}
}

// Await blocks until a trigger arrives, the timeout elapses or ctx is
// done. It reports whether it woke on a trigger.
func (b *Bus) Await(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-b.ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
