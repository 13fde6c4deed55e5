// Package signal provides a coalescing wakeup: any number of Notify calls
// made before the waiter runs produce a single wakeup.
package signal

import (
	"context"
	"time"
)

// Signal is a single-permit, level-triggered notification. The zero value is
// not usable; call New.
type Signal struct {
	ch chan struct{}
}

func New() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Notify sets the pending flag. It never blocks.
func (s *Signal) Notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until the flag is set and clears it.
func (s *Signal) Wait() {
	<-s.ch
}

// WaitContext is Wait bounded by ctx. The flag is left untouched on
// cancellation.
func (s *Signal) WaitContext(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitTimeout returns true if woken, false if d elapsed first. d <= 0 waits
// forever.
func (s *Signal) WaitTimeout(d time.Duration) bool {
	if d <= 0 {
		s.Wait()
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.ch:
		return true
	case <-t.C:
		return false
	}
}

// C exposes the underlying channel for use in select statements. Receiving
// from it consumes the pending flag.
func (s *Signal) C() <-chan struct{} { return s.ch }

// Pending reports whether a notification is waiting without consuming it.
func (s *Signal) Pending() bool { return len(s.ch) > 0 }
