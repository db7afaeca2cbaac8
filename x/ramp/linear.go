// Package ramp steps an integer level linearly from one value to another.
package ramp

import (
	"context"
	"time"

	"audiodrv-go/x/mathx"
)

// Step applies one intermediate level. A non-nil error ends the ramp.
type Step func(level uint16) error

// Linear moves from cur to to in at most steps increments spread over d and
// always finishes by applying to. steps <= 1 or d <= 0 applies to at once.
// Repeated levels are skipped. Cancelling ctx stops the ramp where it is and
// returns ctx.Err().
func Linear(ctx context.Context, cur, to uint16, d time.Duration, steps int, set Step) error {
	if steps <= 1 || d <= 0 || cur == to {
		return set(to)
	}
	per := d / time.Duration(steps)
	if per <= 0 {
		per = time.Millisecond
	}
	t := time.NewTicker(per)
	defer t.Stop()

	delta := int32(to) - int32(cur)
	last := int32(cur)
	for i := 1; i < steps; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		lvl := mathx.Clamp(int32(cur)+delta*int32(i)/int32(steps), 0, 0xFFFF)
		if lvl == last {
			continue
		}
		if err := set(uint16(lvl)); err != nil {
			return err
		}
		last = lvl
	}
	return set(to)
}
