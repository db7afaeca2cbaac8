package audiodrv

import "sync/atomic"

// FaultKind classifies an integration fault seen in completion context.
type FaultKind uint8

const (
	// FaultSpuriousBlock: SignalBlockDone outside Active/Stopping, or with no
	// block held by the engine.
	FaultSpuriousBlock FaultKind = iota + 1
	// FaultSpuriousIdle: SignalIdle outside Stopping.
	FaultSpuriousIdle
	// FaultRearm: the engine refused the next block while Active; the
	// direction stops.
	FaultRearm
	// FaultUnknownSignal: a signal value the driver does not know.
	FaultUnknownSignal
)

func (k FaultKind) String() string {
	switch k {
	case FaultSpuriousBlock:
		return "spurious_block"
	case FaultSpuriousIdle:
		return "spurious_idle"
	case FaultRearm:
		return "rearm_failed"
	case FaultUnknownSignal:
		return "unknown_signal"
	default:
		return "none"
	}
}

// Fault is passed to the fault hook. It runs in completion context.
type Fault struct {
	Iface Interface
	Kind  FaultKind
	State State // state when the fault was detected
	Err   error // engine error for FaultRearm
}

// Stats holds per-direction counters since Initialize.
type Stats struct {
	Blocks    uint32 // completed blocks (same as GetTxCount/GetRxCount)
	Overruns  uint32 // RX blocks reused before the application read them
	Underruns uint32 // TX blocks handed over without a commit
	Faults    uint32 // integration faults (see FaultKind)
}

type counters struct {
	blocks    atomic.Uint32
	overruns  atomic.Uint32
	underruns atomic.Uint32
	faults    atomic.Uint32
}

func (c *counters) snapshot() Stats {
	return Stats{
		Blocks:    c.blocks.Load(),
		Overruns:  c.overruns.Load(),
		Underruns: c.underruns.Load(),
		Faults:    c.faults.Load(),
	}
}

func (c *counters) reset() {
	c.blocks.Store(0)
	c.overruns.Store(0)
	c.underruns.Store(0)
	c.faults.Store(0)
}
