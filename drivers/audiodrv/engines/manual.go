// Package engines holds audiodrv.Engine implementations for hosts and tests:
// a manually stepped engine, a clock-paced engine with WAV-backed endpoints
// and a wrapper that gates formats on an external codec.
package engines

import (
	"sync"

	"audiodrv-go/drivers/audiodrv"
	"audiodrv-go/errcode"
)

func index(iface audiodrv.Interface) (int, error) {
	switch iface {
	case audiodrv.TX:
		return 0, nil
	case audiodrv.RX:
		return 1, nil
	}
	return 0, errcode.New("engine", errcode.Parameter, "interface must be TX or RX")
}

// Manual is an engine whose completions are driven by the caller. It stands in
// for DMA hardware in tests: Fire completes the oldest started block and
// delivers the signal in the caller's goroutine, as an interrupt would.
type Manual struct {
	mu   sync.Mutex
	dirs [2]manualDir

	// RejectRate makes Configure report errcode.Unsupported for that rate.
	RejectRate uint32
}

type manualDir struct {
	handler  func(audiodrv.Signal)
	format   audiodrv.Format
	running  bool
	stopping bool
	inFlight bool
	queue    [][]byte
	done     int
}

func NewManual() *Manual { return &Manual{} }

func (m *Manual) Configure(iface audiodrv.Interface, f audiodrv.Format) error {
	i, err := index(iface)
	if err != nil {
		return err
	}
	if m.RejectRate != 0 && f.Rate == m.RejectRate {
		return errcode.New("manual", errcode.Unsupported, "rate not reachable")
	}
	m.mu.Lock()
	m.dirs[i].format = f
	m.mu.Unlock()
	return nil
}

func (m *Manual) Start(iface audiodrv.Interface, first, second []byte) error {
	i, err := index(iface)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &m.dirs[i]
	if d.running {
		return errcode.New("manual", errcode.Busy, "already running")
	}
	d.running, d.stopping, d.inFlight = true, false, false
	d.queue = append(d.queue[:0], first)
	if second != nil {
		d.queue = append(d.queue, second)
	}
	return nil
}

func (m *Manual) Queue(iface audiodrv.Interface, block []byte) error {
	i, err := index(iface)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &m.dirs[i]
	if !d.running || d.stopping {
		return errcode.New("manual", errcode.NotReady, "not running")
	}
	d.queue = append(d.queue, block)
	return nil
}

// Stop discards queued blocks. If a block was begun it finishes on the next
// Fire, followed by SignalIdle; otherwise SignalIdle is delivered from a new
// goroutine.
func (m *Manual) Stop(iface audiodrv.Interface) error {
	i, err := index(iface)
	if err != nil {
		return err
	}
	m.mu.Lock()
	d := &m.dirs[i]
	if !d.running || d.stopping {
		m.mu.Unlock()
		return nil
	}
	d.stopping = true
	if d.inFlight {
		d.queue = d.queue[:1]
		m.mu.Unlock()
		return nil
	}
	d.queue = d.queue[:0]
	d.running = false
	h := d.handler
	m.mu.Unlock()
	if h != nil {
		go h(audiodrv.SignalIdle)
	}
	return nil
}

func (m *Manual) SetHandler(iface audiodrv.Interface, h func(audiodrv.Signal)) {
	i, err := index(iface)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.dirs[i].handler = h
	m.mu.Unlock()
}

// Begin marks the oldest started block as being transferred, so a Stop
// issued now waits for it.
func (m *Manual) Begin(iface audiodrv.Interface) bool {
	i, err := index(iface)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &m.dirs[i]
	if !d.running || len(d.queue) == 0 {
		return false
	}
	d.inFlight = true
	return true
}

// Fire completes the oldest started block. fn, if non-nil, sees the block
// before the completion is signalled (read it for TX, fill it for RX).
// It reports false when nothing was started.
func (m *Manual) Fire(iface audiodrv.Interface, fn func(block []byte)) bool {
	i, err := index(iface)
	if err != nil {
		return false
	}
	m.mu.Lock()
	d := &m.dirs[i]
	if !d.running || len(d.queue) == 0 {
		m.mu.Unlock()
		return false
	}
	blk := d.queue[0]
	d.queue = d.queue[1:]
	d.inFlight = false
	d.done++
	idle := d.stopping
	if idle {
		d.running = false
		d.queue = d.queue[:0]
	}
	h := d.handler
	m.mu.Unlock()

	if fn != nil {
		fn(blk)
	}
	if h != nil {
		h(audiodrv.SignalBlockDone)
		if idle {
			h(audiodrv.SignalIdle)
		}
	}
	return true
}

// Signal delivers sig unconditionally; used to inject faults.
func (m *Manual) Signal(iface audiodrv.Interface, sig audiodrv.Signal) {
	i, err := index(iface)
	if err != nil {
		return
	}
	m.mu.Lock()
	h := m.dirs[i].handler
	m.mu.Unlock()
	if h != nil {
		h(sig)
	}
}

// Running reports whether iface has been started and not yet gone idle.
func (m *Manual) Running(iface audiodrv.Interface) bool {
	i, err := index(iface)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirs[i].running
}

// Pending returns the number of blocks started or queued on iface.
func (m *Manual) Pending(iface audiodrv.Interface) int {
	i, err := index(iface)
	if err != nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dirs[i].queue)
}

// Completed returns how many blocks Fire has completed on iface.
func (m *Manual) Completed(iface audiodrv.Interface) int {
	i, err := index(iface)
	if err != nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirs[i].done
}

// Format returns the format last accepted for iface.
func (m *Manual) Format(iface audiodrv.Interface) audiodrv.Format {
	i, err := index(iface)
	if err != nil {
		return audiodrv.Format{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirs[i].format
}
