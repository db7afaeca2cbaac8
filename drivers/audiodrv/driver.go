package audiodrv

import (
	"sync"
	"sync/atomic"

	"audiodrv-go/errcode"
)

// Driver is one live instance bound to one Engine (physical peripheral). It is
// created by Initialize and torn down by Uninitialize.
type Driver struct {
	eng Engine
	tx  direction
	rx  direction

	alive atomic.Bool
	cb    atomic.Pointer[EventFunc]
	hook  atomic.Pointer[func(Fault)]

	// Completion → application handoff.
	pending   atomic.Uint32
	notifying atomic.Bool
	notes     atomic.Uint32
}

// At most one Driver per Engine.
var (
	claimMu sync.Mutex
	claimed = map[Engine]*Driver{}
)

// Initialize claims eng and returns a live driver. It returns errcode.Busy if
// another driver already owns eng. cb may be nil.
//
// The platform must have brought up the peripheral (clocks, pins, DMA) before
// calling Initialize; the engine's per-direction handlers are the driver's
// completion entry points.
func Initialize(eng Engine, cb EventFunc) (*Driver, error) {
	if eng == nil {
		return nil, errcode.New("Initialize", errcode.Parameter, "nil engine")
	}
	claimMu.Lock()
	defer claimMu.Unlock()
	if _, busy := claimed[eng]; busy {
		return nil, errcode.New("Initialize", errcode.Busy, "already initialized")
	}
	d := &Driver{eng: eng}
	d.tx.init(d, TX)
	d.rx.init(d, RX)
	if cb != nil {
		d.cb.Store(&cb)
	}
	d.alive.Store(true)
	eng.SetHandler(TX, d.tx.handle)
	eng.SetHandler(RX, d.rx.handle)
	claimed[eng] = d
	return d, nil
}

func (d *Driver) live() bool { return d.alive.Load() }

// Uninitialize resets both directions and releases the engine. It returns
// errcode.Busy, leaving the driver untouched, while either direction is active.
func (d *Driver) Uninitialize() error {
	d.tx.cs.lock()
	d.rx.cs.lock()
	if !d.live() {
		d.rx.cs.unlock()
		d.tx.cs.unlock()
		return errcode.New("Uninitialize", errcode.Error, "driver not initialized")
	}
	if d.tx.state.running() || d.rx.state.running() {
		d.rx.cs.unlock()
		d.tx.cs.unlock()
		return errcode.New("Uninitialize", errcode.Busy, "direction active")
	}
	d.tx.resetLocked()
	d.rx.resetLocked()
	d.alive.Store(false)
	d.cb.Store(nil)
	d.hook.Store(nil)
	d.pending.Store(0)
	d.rx.cs.unlock()
	d.tx.cs.unlock()

	d.eng.SetHandler(TX, nil)
	d.eng.SetHandler(RX, nil)
	claimMu.Lock()
	if claimed[d.eng] == d {
		delete(claimed, d.eng)
	}
	claimMu.Unlock()
	return nil
}

func (d *Driver) dir(iface Interface) (*direction, error) {
	switch iface {
	case TX:
		return &d.tx, nil
	case RX:
		return &d.rx, nil
	default:
		return nil, errcode.New("audiodrv", errcode.Parameter, "interface must be TX or RX")
	}
}

// Configure sets channels, sample bits (8..32) and sample rate for one
// direction. It returns errcode.Busy while the direction is active.
func (d *Driver) Configure(iface Interface, channels, sampleBits, sampleRate uint32) error {
	dir, err := d.dir(iface)
	if err != nil {
		return err
	}
	return dir.configure(Format{Channels: channels, Bits: sampleBits, Rate: sampleRate})
}

// SetBuf binds buf as blockCount blocks (a power of two >= 2) of blockSize
// samples. The driver keeps a reference to buf until it is replaced or the
// driver is uninitialized; the caller must keep it alive and must not resize it.
func (d *Driver) SetBuf(iface Interface, buf []byte, blockCount, blockSize uint32) error {
	dir, err := d.dir(iface)
	if err != nil {
		return err
	}
	return dir.setBuf(buf, blockCount, blockSize)
}

// Control enables and/or disables directions. Enabling and disabling the same
// direction in one call is a parameter error. Enable and Disable return once
// the transition is requested; Disable completes when the in-flight block has
// finished (observe via GetStatus or the event callback).
//
// TX is applied before RX. Each direction is atomic; the first error is
// returned after both have been attempted.
func (d *Driver) Control(mask Control) error {
	if mask == 0 || mask&^controlMask != 0 {
		return errcode.New("Control", errcode.Parameter, "unknown control bits")
	}
	if mask&(TxEnable|TxDisable) == TxEnable|TxDisable ||
		mask&(RxEnable|RxDisable) == RxEnable|RxDisable {
		return errcode.New("Control", errcode.Parameter, "enable and disable for the same interface")
	}
	if !d.live() {
		return errcode.New("Control", errcode.Error, "driver not initialized")
	}
	var first error
	keep := func(err error) {
		if first == nil {
			first = err
		}
	}
	switch {
	case mask&TxEnable != 0:
		keep(d.tx.enable())
	case mask&TxDisable != 0:
		keep(d.tx.disable())
	}
	switch {
	case mask&RxEnable != 0:
		keep(d.rx.enable())
	case mask&RxDisable != 0:
		keep(d.rx.disable())
	}
	return first
}

// GetTxCount returns the number of transmitted blocks.
func (d *Driver) GetTxCount() uint32 { return d.tx.n.blocks.Load() }

// GetRxCount returns the number of received blocks.
func (d *Driver) GetRxCount() uint32 { return d.rx.n.blocks.Load() }

// GetStatus reports which directions are active (armed, running or draining).
func (d *Driver) GetStatus() Status {
	return Status{TxActive: d.tx.active(), RxActive: d.rx.active()}
}

// State returns the current machine state of one direction.
func (d *Driver) State(iface Interface) State {
	dir, err := d.dir(iface)
	if err != nil {
		return StateUninitialized
	}
	st, _ := dir.snapshot()
	return st
}

// Stats returns the counters of one direction.
func (d *Driver) Stats(iface Interface) Stats {
	dir, err := d.dir(iface)
	if err != nil {
		return Stats{}
	}
	_, s := dir.snapshot()
	return s
}

// Notifications returns how many times the event callback has been invoked.
func (d *Driver) Notifications() uint32 { return d.notes.Load() }

// SetFaultHook installs h for integration faults; nil removes it. Faults are
// always counted in Stats regardless of the hook.
func (d *Driver) SetFaultHook(h func(Fault)) {
	if h == nil {
		d.hook.Store(nil)
		return
	}
	d.hook.Store(&h)
}

// TxBlock returns the next block the application may fill, or false when every
// block is committed and not yet transmitted.
func (d *Driver) TxBlock() ([]byte, bool) { return d.tx.appBlock() }

// CommitTx hands the block returned by TxBlock to the transmitter.
func (d *Driver) CommitTx() error { return d.tx.appAdvance() }

// RxBlock returns the oldest unread received block, or false when none is pending.
func (d *Driver) RxBlock() ([]byte, bool) { return d.rx.appBlock() }

// ReleaseRx returns the block obtained from RxBlock to the receiver.
func (d *Driver) ReleaseRx() error { return d.rx.appAdvance() }

// StatusOf maps an error returned by the driver to the numeric contract code
// (OK 0, ERROR -1, BUSY -2, TIMEOUT -3, UNSUPPORTED -4, PARAMETER -5).
func StatusOf(err error) int32 { return errcode.Status(err) }

// raise records ev and notifies the callback. Concurrent raisers coalesce into
// a single callback invocation; no bit is lost.
func (d *Driver) raise(ev Event) {
	d.pending.Or(uint32(ev))
	for d.pending.Load() != 0 {
		if !d.notifying.CompareAndSwap(false, true) {
			return // the current notifier will pick our bit up
		}
		if mask := d.pending.Swap(0); mask != 0 {
			if cb := d.cb.Load(); cb != nil {
				(*cb)(Event(mask))
			}
			d.notes.Add(1)
		}
		d.notifying.Store(false)
	}
}

func (d *Driver) fault(f Fault) {
	if h := d.hook.Load(); h != nil {
		(*h)(f)
	}
}
