//go:build !tinygo

package audiodrv

import "sync"

// critical serialises application calls against completion signals for one
// direction. On the host, completion context is an ordinary goroutine.
type critical struct{ mu sync.Mutex }

func (c *critical) lock()   { c.mu.Lock() }
func (c *critical) unlock() { c.mu.Unlock() }
