package engines

import (
	"sync"
	"sync/atomic"
	"time"

	"audiodrv-go/drivers/audiodrv"
	"audiodrv-go/errcode"
	"audiodrv-go/x/timex"
)

// ClockedConfig configures a Clocked engine. All fields are optional.
type ClockedConfig struct {
	// Sink receives every transmitted block. Nil discards.
	Sink Sink
	// Source fills every received block. Nil yields silence unless Loopback.
	Source Source
	// Loopback feeds transmitted blocks back into the receiver. Source is
	// ignored while looped data is available.
	Loopback bool
	// Period overrides the block period derived from the format (tests).
	Period time.Duration
}

// Clocked paces block completions with a timer per direction, the way a serial
// audio peripheral clocked by its bit clock would. Each completion is signalled
// from the direction's own goroutine.
type Clocked struct {
	cfg  ClockedConfig
	mu   sync.Mutex
	dirs [2]clockedDir

	loopMu sync.Mutex
	loop   [][]byte

	sinkErrs atomic.Uint32
}

type clockedDir struct {
	handler func(audiodrv.Signal)
	format  audiodrv.Format
	queue   [][]byte
	stop    bool
	running bool
	kick    chan struct{}
	done    chan struct{}
}

// loopDepth bounds the loopback FIFO; older blocks are dropped.
const loopDepth = 8

func NewClocked(cfg ClockedConfig) *Clocked {
	return &Clocked{cfg: cfg}
}

func (c *Clocked) Configure(iface audiodrv.Interface, f audiodrv.Format) error {
	i, err := index(iface)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dirs[i].running {
		return errcode.New("clocked", errcode.Busy, "running")
	}
	c.dirs[i].format = f
	return nil
}

func (c *Clocked) Start(iface audiodrv.Interface, first, second []byte) error {
	i, err := index(iface)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	d := &c.dirs[i]
	if d.running {
		return errcode.New("clocked", errcode.Busy, "running")
	}
	if d.format.Width() == 0 || d.format.Channels == 0 {
		return errcode.New("clocked", errcode.NotReady, "not configured")
	}
	d.queue = append(d.queue[:0], first)
	if second != nil {
		d.queue = append(d.queue, second)
	}
	d.stop = false
	d.running = true
	d.kick = make(chan struct{}, 1)
	d.done = make(chan struct{})
	go c.run(iface, i, c.period(d.format, len(first)), d.kick, d.done)
	return nil
}

func (c *Clocked) period(f audiodrv.Format, blockBytes int) time.Duration {
	if c.cfg.Period > 0 {
		return c.cfg.Period
	}
	frames := uint32(blockBytes) / (f.Width() * f.Channels)
	if p := timex.BlockPeriod(frames, f.Rate); p > 0 {
		return p
	}
	return time.Millisecond
}

func (c *Clocked) Queue(iface audiodrv.Interface, block []byte) error {
	i, err := index(iface)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	d := &c.dirs[i]
	if !d.running || d.stop {
		return errcode.New("clocked", errcode.NotReady, "not running")
	}
	d.queue = append(d.queue, block)
	select {
	case d.kick <- struct{}{}:
	default:
	}
	return nil
}

// Stop lets the block in transfer finish, drops the rest and then signals
// SignalIdle from the direction goroutine.
func (c *Clocked) Stop(iface audiodrv.Interface) error {
	i, err := index(iface)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	d := &c.dirs[i]
	if !d.running || d.stop {
		return nil
	}
	d.stop = true
	if len(d.queue) > 1 {
		d.queue = d.queue[:1]
	}
	select {
	case d.kick <- struct{}{}:
	default:
	}
	return nil
}

func (c *Clocked) SetHandler(iface audiodrv.Interface, h func(audiodrv.Signal)) {
	i, err := index(iface)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.dirs[i].handler = h
	c.mu.Unlock()
}

// Wait blocks until iface's goroutine has exited (after SignalIdle).
func (c *Clocked) Wait(iface audiodrv.Interface) {
	i, err := index(iface)
	if err != nil {
		return
	}
	c.mu.Lock()
	done := c.dirs[i].done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// SinkErrors returns the number of failed Sink/Source calls.
func (c *Clocked) SinkErrors() uint32 { return c.sinkErrs.Load() }

func (c *Clocked) run(iface audiodrv.Interface, i int, period time.Duration, kick <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		c.mu.Lock()
		d := &c.dirs[i]
		var blk []byte
		if len(d.queue) > 0 {
			blk = d.queue[0]
		}
		stop := d.stop
		f := d.format
		c.mu.Unlock()

		if blk == nil {
			if stop {
				c.finish(i)
				return
			}
			<-kick // starved: the driver has not re-armed yet
			continue
		}

		<-t.C
		c.transfer(iface, f, blk)

		c.mu.Lock()
		d.queue = d.queue[1:]
		stop = d.stop
		h := d.handler
		c.mu.Unlock()

		if h != nil {
			h(audiodrv.SignalBlockDone)
		}
		if stop {
			c.finish(i)
			return
		}
	}
}

func (c *Clocked) finish(i int) {
	c.mu.Lock()
	d := &c.dirs[i]
	d.queue = d.queue[:0]
	d.running = false
	h := d.handler
	c.mu.Unlock()
	if h != nil {
		h(audiodrv.SignalIdle)
	}
}

func (c *Clocked) transfer(iface audiodrv.Interface, f audiodrv.Format, blk []byte) {
	if iface == audiodrv.TX {
		if c.cfg.Loopback {
			c.pushLoop(blk)
		}
		if c.cfg.Sink != nil {
			if err := c.cfg.Sink.WriteBlock(f, blk); err != nil {
				c.sinkErrs.Add(1)
			}
		}
		return
	}
	if c.cfg.Loopback && c.popLoop(blk) {
		return
	}
	if c.cfg.Source != nil {
		if err := c.cfg.Source.ReadBlock(f, blk); err != nil {
			c.sinkErrs.Add(1)
			silence(f, blk)
		}
		return
	}
	silence(f, blk)
}

func (c *Clocked) pushLoop(blk []byte) {
	cp := make([]byte, len(blk))
	copy(cp, blk)
	c.loopMu.Lock()
	if len(c.loop) >= loopDepth {
		c.loop = c.loop[1:]
	}
	c.loop = append(c.loop, cp)
	c.loopMu.Unlock()
}

func (c *Clocked) popLoop(blk []byte) bool {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	if len(c.loop) == 0 {
		return false
	}
	copy(blk, c.loop[0])
	c.loop = c.loop[1:]
	return true
}
