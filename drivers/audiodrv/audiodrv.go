// Package audiodrv provides a block-oriented, interrupt-driven audio streaming
// driver for a serial-audio transmitter/receiver pair.
//
// The caller owns the sample memory. SetBuf hands the driver a flat []byte that
// is split into N equal blocks (N a power of two, N >= 2). A transfer Engine
// (DMA/serial-audio peripheral layer) moves one block at a time and signals
// completion from interrupt context:
//
//	d, _ := audiodrv.Initialize(engine, onEvent)
//	_ = d.Configure(audiodrv.TX, 2, 16, 48000)
//	_ = d.SetBuf(audiodrv.TX, buf, 4, 256)
//	_ = d.Control(audiodrv.TxEnable)
//	...
//	n := d.GetTxCount()
//
// Completions are coalesced: onEvent receives a mask (EventTxData, EventRxData)
// naming the directions that finished at least one block since the previous
// call. onEvent runs in completion context; it must not block and must not call
// Configure, SetBuf, Control or Uninitialize.
//
// Back-pressure never stalls the hardware. A transmitter that runs out of
// committed blocks sends whatever the next slot holds (counted as an
// underrun); a receiver whose ring is full drops the oldest unread block
// (counted as an overrun). Both are decided when the block is handed to the
// engine, and a block returned by TxBlock or RxBlock is never one the engine
// holds.
package audiodrv

import "github.com/go-audio/audio"

// Interface selects a direction. Values are part of the public bit encoding.
type Interface uint32

const (
	TX Interface = 1 << 0 // transmitter
	RX Interface = 1 << 1 // receiver
)

func (i Interface) String() string {
	switch i {
	case TX:
		return "tx"
	case RX:
		return "rx"
	case TX | RX:
		return "tx|rx"
	default:
		return "none"
	}
}

func (i Interface) event() Event {
	if i == TX {
		return EventTxData
	}
	return EventRxData
}

// Control is the bitset accepted by Driver.Control.
type Control uint32

const (
	TxEnable  Control = 1 << 0
	RxEnable  Control = 1 << 1
	TxDisable Control = 1 << 2
	RxDisable Control = 1 << 3

	controlMask = TxEnable | RxEnable | TxDisable | RxDisable
)

// Event is the notification mask passed to an EventFunc.
type Event uint32

const (
	EventTxData Event = 1 << 0 // data block transmitted
	EventRxData Event = 1 << 1 // data block received
)

// EventFunc receives coalesced completion notifications.
type EventFunc func(mask Event)

// State of one direction.
type State uint8

const (
	StateUninitialized State = iota
	StateConfigured
	StateArmed
	StateActive
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateArmed:
		return "armed"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	default:
		return "uninitialized"
	}
}

// running reports whether the engine may own ring slots.
func (s State) running() bool {
	return s == StateArmed || s == StateActive || s == StateStopping
}

// Limits on accepted formats.
const (
	MinSampleBits = 8
	MaxSampleBits = 32
	MaxChannels   = 8
)

// Format describes the PCM layout of one direction.
type Format struct {
	Channels uint32
	Bits     uint32
	Rate     uint32 // samples per second
}

// Width returns the container size of one sample in bytes (0 if Bits is out of range).
func (f Format) Width() uint32 {
	switch {
	case f.Bits == 8:
		return 1
	case f.Bits > 8 && f.Bits <= 16:
		return 2
	case f.Bits > 16 && f.Bits <= 32:
		return 4
	default:
		return 0
	}
}

// Valid reports whether the format is acceptable to Configure.
func (f Format) Valid() bool {
	return f.Channels >= 1 && f.Channels <= MaxChannels &&
		f.Bits >= MinSampleBits && f.Bits <= MaxSampleBits &&
		f.Rate > 0
}

// Audio returns the go-audio view of the format.
func (f Format) Audio() *audio.Format {
	return &audio.Format{NumChannels: int(f.Channels), SampleRate: int(f.Rate)}
}

// Status is a derived snapshot of both directions.
type Status struct {
	TxActive bool
	RxActive bool
}
