package audiodrv

import "audiodrv-go/errcode"

// direction is one instance of the per-interface state machine:
//
//	Uninitialized → Configured → Armed → Active → Stopping → Configured
//
// All fields except the counters are guarded by cs.
type direction struct {
	cs    critical
	drv   *Driver
	iface Interface

	state      State
	format     Format
	configured bool
	ring       Ring

	n counters
}

func (d *direction) init(drv *Driver, iface Interface) {
	d.drv = drv
	d.iface = iface
}

// op names used in wrapped errors
func (d *direction) op(name string) string { return name + "(" + d.iface.String() + ")" }

func (d *direction) configure(f Format) error {
	d.cs.lock()
	defer d.cs.unlock()
	if !d.drv.live() {
		return errcode.New(d.op("Configure"), errcode.Error, "driver not initialized")
	}
	if d.state.running() {
		return errcode.New(d.op("Configure"), errcode.Busy, "direction "+d.state.String())
	}
	if !f.Valid() {
		return errcode.New(d.op("Configure"), errcode.Parameter, "unsupported channels/bits/rate")
	}
	if err := d.drv.eng.Configure(d.iface, f); err != nil {
		return errcode.Wrap(d.op("Configure"), err)
	}
	d.format = f
	d.configured = true
	// A bound buffer that no longer fits is reported by Enable.
	d.ring.Reshape(f)
	d.state = StateConfigured
	return nil
}

func (d *direction) setBuf(buf []byte, blockCount, blockSize uint32) error {
	d.cs.lock()
	defer d.cs.unlock()
	if !d.drv.live() {
		return errcode.New(d.op("SetBuf"), errcode.Error, "driver not initialized")
	}
	if d.state.running() {
		return errcode.New(d.op("SetBuf"), errcode.Busy, "direction "+d.state.String())
	}
	width := uint32(1)
	if d.configured {
		width = d.format.Width()
		if blockSize%d.format.Channels != 0 {
			return errcode.New(d.op("SetBuf"), errcode.Parameter, "block size not a whole number of frames")
		}
	}
	if err := d.ring.Bind(buf, blockCount, blockSize, width); err != nil {
		return errcode.Wrap(d.op("SetBuf"), err)
	}
	return nil
}

// depth is how many blocks the engine holds while streaming: two, unless the
// ring has only two blocks, so the application always keeps one.
func (d *direction) depth() uint32 {
	return min(2, d.ring.Count()-1)
}

// lendLocked hands the engine its next block. short reports a TX block sent
// without a commit or an RX block that displaced unread data.
func (d *direction) lendLocked() ([]byte, bool) {
	var slot uint32
	var short bool
	if d.iface == TX {
		slot, short = d.ring.LendRead()
	} else {
		slot, short = d.ring.LendWrite()
	}
	return d.ring.Block(slot), short
}

// countShort records blocks handed over without data (TX underrun) or over
// unread data (RX overrun).
func (d *direction) countShort(n uint32) {
	if d.iface == TX {
		d.n.underruns.Add(n)
	} else {
		d.n.overruns.Add(n)
	}
}

func (d *direction) enable() error {
	d.cs.lock()
	defer d.cs.unlock()
	if !d.drv.live() {
		return errcode.New(d.op("Enable"), errcode.Error, "driver not initialized")
	}
	switch d.state {
	case StateArmed, StateActive:
		return nil
	case StateStopping:
		return errcode.New(d.op("Enable"), errcode.Busy, "direction stopping")
	}
	if !d.ring.Bound() {
		return errcode.New(d.op("Enable"), errcode.Unsupported, "no buffer bound")
	}
	if !d.configured {
		return errcode.New(d.op("Enable"), errcode.Error, "direction not configured")
	}
	if !d.ring.Reshape(d.format) {
		return errcode.New(d.op("Enable"), errcode.Parameter, "buffer does not fit the configured format")
	}

	d.state = StateArmed
	saved := d.ring
	var blks [2][]byte
	var short uint32
	for i := uint32(0); i < d.depth(); i++ {
		blk, s := d.lendLocked()
		blks[i] = blk
		if s {
			short++
		}
	}
	if err := d.drv.eng.Start(d.iface, blks[0], blks[1]); err != nil {
		d.ring = saved
		d.state = StateConfigured
		return errcode.Wrap(d.op("Enable"), err)
	}
	d.countShort(short)
	d.state = StateActive
	return nil
}

func (d *direction) disable() error {
	d.cs.lock()
	defer d.cs.unlock()
	if !d.drv.live() {
		return errcode.New(d.op("Disable"), errcode.Error, "driver not initialized")
	}
	if d.state != StateActive {
		return nil
	}
	d.state = StateStopping
	if err := d.drv.eng.Stop(d.iface); err != nil {
		d.state = StateActive
		return errcode.Wrap(d.op("Disable"), err)
	}
	return nil
}

// handle is the completion handler routed from the engine (interrupt context).
func (d *direction) handle(sig Signal) {
	var (
		ev    Event
		fault Fault
	)
	d.cs.lock()
	switch sig {
	case SignalBlockDone:
		if (d.state != StateActive && d.state != StateStopping) || d.ring.Lent() == 0 {
			fault = Fault{Kind: FaultSpuriousBlock, State: d.state}
			break
		}
		d.completeLocked()
		ev = d.iface.event()
		if d.state == StateActive {
			fault = d.rearmLocked()
		}
	case SignalIdle:
		if d.state != StateStopping {
			fault = Fault{Kind: FaultSpuriousIdle, State: d.state}
			break
		}
		d.ring.Reclaim()
		d.state = StateConfigured
	default:
		fault = Fault{Kind: FaultUnknownSignal, State: d.state}
	}
	d.cs.unlock()

	if fault.Kind != 0 {
		fault.Iface = d.iface
		d.n.faults.Add(1)
		d.drv.fault(fault)
	}
	if ev != 0 {
		d.drv.raise(ev)
	}
}

// completeLocked accounts one finished hardware block. The ring cursor and the
// block counter move inside the same critical section.
func (d *direction) completeLocked() {
	if d.iface == TX {
		d.ring.ReturnRead()
	} else {
		d.ring.ReturnWrite()
	}
	d.n.blocks.Add(1)
}

// rearmLocked queues the next block behind the ones the engine still holds.
// The underrun or overrun is decided here, before the engine owns the slot.
// A refused block moves the direction to Stopping.
func (d *direction) rearmLocked() Fault {
	saved := d.ring
	blk, short := d.lendLocked()
	err := d.drv.eng.Queue(d.iface, blk)
	if err == nil {
		if short {
			d.countShort(1)
		}
		return Fault{}
	}
	d.ring = saved
	f := Fault{Kind: FaultRearm, State: d.state, Err: err}
	d.state = StateStopping
	if d.drv.eng.Stop(d.iface) != nil {
		// No idle signal will follow.
		d.ring.Reclaim()
		d.state = StateConfigured
	}
	return f
}

func (d *direction) active() bool {
	d.cs.lock()
	defer d.cs.unlock()
	return d.state.running()
}

func (d *direction) snapshot() (State, Stats) {
	d.cs.lock()
	defer d.cs.unlock()
	return d.state, d.n.snapshot()
}

// resetLocked returns the direction to Uninitialized. Caller holds cs.
func (d *direction) resetLocked() {
	d.state = StateUninitialized
	d.format = Format{}
	d.configured = false
	d.ring.Unbind()
	d.n.reset()
}

// ---- application cursor ----

// appBlock returns the block the application may fill (TX) or read (RX).
// It is never a block the engine holds.
func (d *direction) appBlock() ([]byte, bool) {
	d.cs.lock()
	defer d.cs.unlock()
	if !d.drv.live() || !d.ring.Bound() {
		return nil, false
	}
	if d.iface == TX {
		if d.ring.Used() >= d.ring.Count() {
			return nil, false
		}
		return d.ring.Block(d.ring.NextWriteSlot()), true
	}
	if d.ring.Used() == 0 {
		return nil, false
	}
	return d.ring.Block(d.ring.NextReadSlot()), true
}

// appAdvance commits (TX) or releases (RX) the application's block.
func (d *direction) appAdvance() error {
	d.cs.lock()
	defer d.cs.unlock()
	name := "CommitTx"
	if d.iface == RX {
		name = "ReleaseRx"
	}
	if !d.drv.live() {
		return errcode.New(name, errcode.Error, "driver not initialized")
	}
	if !d.ring.Bound() {
		return errcode.New(name, errcode.Unsupported, "no buffer bound")
	}
	if d.iface == TX {
		if !d.ring.AdvanceWrite() {
			return errcode.New(name, errcode.Busy, "ring full")
		}
		return nil
	}
	if !d.ring.AdvanceRead() {
		return errcode.New(name, errcode.Error, "no unread block")
	}
	return nil
}
