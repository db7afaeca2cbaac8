//go:build tinygo

package audiodrv

import "runtime/interrupt"

// critical masks interrupts for the duration of a state transition so the
// completion ISR cannot observe a half-updated direction. Not reentrant.
type critical struct{ state interrupt.State }

func (c *critical) lock()   { c.state = interrupt.Disable() }
func (c *critical) unlock() { interrupt.Restore(c.state) }
