package audiodrv

// Signal is a low-level notification from an Engine. Engines deliver signals
// from interrupt (completion) context.
type Signal uint8

const (
	// SignalBlockDone reports that the oldest started block finished.
	SignalBlockDone Signal = iota + 1
	// SignalIdle reports that a stopped direction is quiescent.
	SignalIdle
)

func (s Signal) String() string {
	switch s {
	case SignalBlockDone:
		return "block_done"
	case SignalIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Engine moves blocks between ring slots and the serial-audio peripheral.
// Implementations are platform specific and must be pointer types (one Driver
// may claim an Engine at a time).
//
// Start, Queue and Stop must not deliver signals synchronously; the driver
// holds the direction's critical section while calling them.
type Engine interface {
	// Configure checks and applies the format for one direction. It returns
	// errcode.Unsupported when the peripheral cannot reach the format.
	Configure(iface Interface, f Format) error
	// Start begins transferring first and keeps second queued behind it.
	// second is nil when the ring holds only two blocks.
	Start(iface Interface, first, second []byte) error
	// Queue appends one block behind the blocks already started or queued.
	// A failed Queue stops the direction.
	Queue(iface Interface, block []byte) error
	// Stop finishes the in-flight block, discards queued ones and then
	// delivers SignalIdle.
	Stop(iface Interface) error
	// SetHandler routes a direction's completion source; nil detaches it.
	SetHandler(iface Interface, h func(Signal))
}
