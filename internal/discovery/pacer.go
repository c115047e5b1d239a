package discovery

import (
	"context"
	"math/rand/v2"
	"time"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pacer spaces fetches out with a fixed or uniformly random delay. The
// delay after each fetch is the only intentional blocking point of a run.
type Pacer struct {
	min, max time.Duration
	sleep    SleepFunc
}

// NewPacer creates a pacer. max <= min gives a fixed delay of min.
func NewPacer(minDelay, maxDelay time.Duration, sleep SleepFunc) *Pacer {
	if sleep == nil {
		sleep = Sleep
	}
	return &Pacer{min: minDelay, max: maxDelay, sleep: sleep}
}

// Delay returns the next delay.
func (p *Pacer) Delay() time.Duration {
	if p.max <= p.min {
		return p.min
	}
	return p.min + time.Duration(rand.Int64N(int64(p.max-p.min)+1))
}

// Wait sleeps for the next delay.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.sleep(ctx, p.Delay())
}

// Pause sleeps for exactly d, used for the inter-term delay.
func (p *Pacer) Pause(ctx context.Context, d time.Duration) error {
	return p.sleep(ctx, d)
}
