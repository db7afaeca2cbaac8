package engines

import (
	"errors"
	"sync"
	"sync/atomic"

	"audiodrv-go/drivers/audiodrv"
	"audiodrv-go/drivers/wm8960"
	"audiodrv-go/errcode"
)

// CodecPort is the control side of an external codec.
type CodecPort interface {
	SetWordLength(bits uint32) error
	SetDACRate(rate uint32) error
	SetADCRate(rate uint32) error
	Mute(on bool) error
}

var _ CodecPort = (*wm8960.Device)(nil)

// Codec wraps the engine that moves the data and programs the codec on the
// other end of the serial-audio link. A format the codec cannot clock is
// reported as errcode.Unsupported and never reaches the inner engine.
type Codec struct {
	inner audiodrv.Engine
	port  CodecPort

	mu   sync.Mutex
	bits [2]uint32 // word length in use per direction, 0 if unconfigured
	rate [2]uint32

	portErrs atomic.Uint32
}

func NewCodec(inner audiodrv.Engine, port CodecPort) *Codec {
	return &Codec{inner: inner, port: port}
}

// wordLength picks the I2S slot width carrying bits.
func wordLength(bits uint32) (uint32, bool) {
	switch {
	case bits <= 8:
		return 0, false
	case bits <= 16:
		return 16, true
	case bits <= 20:
		return 20, true
	case bits <= 24:
		return 24, true
	default:
		return 32, true
	}
}

func (c *Codec) Configure(iface audiodrv.Interface, f audiodrv.Format) error {
	i, err := index(iface)
	if err != nil {
		return err
	}
	if f.Channels != 2 && f.Channels != 1 {
		return errcode.New("codec", errcode.Unsupported, "codec carries mono or stereo only")
	}
	wl, ok := wordLength(f.Bits)
	if !ok {
		return errcode.New("codec", errcode.Unsupported, "word length")
	}
	if !wm8960.SupportsRate(f.Rate) {
		return errcode.New("codec", errcode.Unsupported, "sample rate")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// ADC and DAC share one interface word length.
	if other := c.bits[1-i]; other != 0 && other != wl {
		return errcode.New("codec", errcode.Unsupported, "word length differs from the other direction")
	}
	// Codec first, then the inner engine; a refusal on either side puts the
	// last accepted format back.
	if err := c.program(iface, wl, f.Rate); err != nil {
		c.restore(iface)
		return codecErr(err)
	}
	if err := c.inner.Configure(iface, f); err != nil {
		c.restore(iface)
		return err
	}
	c.bits[i] = wl
	c.rate[i] = f.Rate
	return nil
}

func (c *Codec) program(iface audiodrv.Interface, wl, rate uint32) error {
	if err := c.port.SetWordLength(wl); err != nil {
		return err
	}
	if iface == audiodrv.TX {
		return c.port.SetDACRate(rate)
	}
	return c.port.SetADCRate(rate)
}

// restore puts back the format last accepted for iface. Caller holds c.mu.
func (c *Codec) restore(iface audiodrv.Interface) {
	i, _ := index(iface)
	if c.bits[i] == 0 {
		return
	}
	if c.program(iface, c.bits[i], c.rate[i]) != nil {
		c.portErrs.Add(1)
	}
}

func codecErr(err error) error {
	if errors.Is(err, wm8960.ErrUnsupportedRate) || errors.Is(err, wm8960.ErrUnsupportedWordLength) {
		return &errcode.E{C: errcode.Unsupported, Op: "codec", Err: err}
	}
	return &errcode.E{C: errcode.Error, Op: "codec", Err: err}
}

// Start unmutes the DAC before the first transmit block goes out.
func (c *Codec) Start(iface audiodrv.Interface, first, second []byte) error {
	if iface == audiodrv.TX {
		if err := c.port.Mute(false); err != nil {
			return codecErr(err)
		}
	}
	return c.inner.Start(iface, first, second)
}

func (c *Codec) Queue(iface audiodrv.Interface, block []byte) error {
	return c.inner.Queue(iface, block)
}

// Stop mutes the DAC; the in-flight block still drains through the inner engine.
// A failed mute does not hold the stream up; it shows in PortErrors.
func (c *Codec) Stop(iface audiodrv.Interface) error {
	if iface == audiodrv.TX {
		if c.port.Mute(true) != nil {
			c.portErrs.Add(1)
		}
	}
	return c.inner.Stop(iface)
}

// PortErrors returns the number of codec writes that failed outside Configure.
func (c *Codec) PortErrors() uint32 { return c.portErrs.Load() }

func (c *Codec) SetHandler(iface audiodrv.Interface, h func(audiodrv.Signal)) {
	c.inner.SetHandler(iface, h)
}
