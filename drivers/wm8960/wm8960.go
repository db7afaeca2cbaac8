// Package wm8960 provides control-port access to the WM8960 stereo codec.
//
// The codec's I2C interface is write-only: each write carries a 7-bit register
// address and a 9-bit value packed into two bytes. The driver keeps a shadow of
// every register it writes so read-modify-write updates never touch the bus
// for the read half.
//
//	c := wm8960.New(i2c)
//	_ = c.Configure(wm8960.Config{})
//	_ = c.SetWordLength(16)
//	_ = c.SetDACRate(48000)
//
// The audio data path (I2S) is not handled here; the codec is configured as an
// I2S slave clocked from a 12.288 MHz MCLK.
package wm8960

import (
	"context"
	"errors"
	"time"

	"audiodrv-go/x/ramp"

	"tinygo.org/x/drivers"
)

// Address is the fixed 7-bit I2C address.
const Address = 0x1A

// Registers.
const (
	RegLeftInVol   = 0x00
	RegRightInVol  = 0x01
	RegLeftOut1    = 0x02
	RegRightOut1   = 0x03
	RegClocking1   = 0x04
	RegADCDACCtl1  = 0x05
	RegAudioIface1 = 0x07
	RegLeftDACVol  = 0x0A
	RegRightDACVol = 0x0B
	RegReset       = 0x0F
	RegPower1      = 0x19
	RegPower2      = 0x1A
	RegLeftOutMix  = 0x22
	RegRightOutMix = 0x25
	RegPower3      = 0x2F

	numRegs = 0x38
)

// Register bits.
const (
	// R5
	dacMute = 1 << 3

	// R7
	ifaceFormatI2S = 0x02
	wlShift        = 2
	wlMask         = 0x03 << wlShift

	// R4
	adcDivShift = 6
	dacDivShift = 3
	divMask     = 0x07

	// R25
	pw1VMID50k = 1 << 7
	pw1VREF    = 1 << 6
	pw1AINL    = 1 << 5
	pw1AINR    = 1 << 4
	pw1ADCL    = 1 << 3
	pw1ADCR    = 1 << 2

	// R26
	pw2DACL  = 1 << 8
	pw2DACR  = 1 << 7
	pw2LOUT1 = 1 << 6
	pw2ROUT1 = 1 << 5

	// R47
	pw3LOMIX = 1 << 3
	pw3ROMIX = 1 << 2

	// R34/R37
	outMixDAC = 1 << 8

	// volume update latch (R2, R3, R10, R11)
	volUpdate = 1 << 8
)

// Headphone fade.
const (
	hpMuteBelow = 0x30
	fadeSteps   = 16
)

// MCLK is the master clock the rate table assumes (SYSCLK = MCLK, no PLL).
const MCLK = 12_288_000

// Errors returned by the driver.
var (
	ErrUnsupportedRate       = errors.New("wm8960: unsupported sample rate")
	ErrUnsupportedWordLength = errors.New("wm8960: unsupported word length")
)

// rateDiv maps a sample rate to the ADCDIV/DACDIV code for SYSCLK/256.
var rateDiv = map[uint32]uint16{
	48000: 0, // /1
	32000: 1, // /1.5
	24000: 2, // /2
	16000: 3, // /3
	12000: 4, // /4
	8000:  6, // /6
}

// Config holds optional power-up settings.
type Config struct {
	// Address defaults to 0x1A if zero.
	Address uint16
	// Playback and Capture select which halves of the codec are powered.
	// Both false powers both.
	Playback bool
	Capture  bool
	// HeadphoneVol is the LOUT1/ROUT1 volume (0..127). Default 0x79 (0 dB).
	HeadphoneVol uint8
}

// Device is a WM8960 on an I2C bus.
type Device struct {
	bus     drivers.I2C
	Address uint16

	reg [numRegs]uint16 // shadow of written values
	w   [2]byte
}

// New creates a Device. The I2C bus must already be configured; the codec is
// not touched until Configure.
func New(bus drivers.I2C) *Device {
	return &Device{bus: bus, Address: Address}
}

// Configure resets the codec, powers the requested paths, selects I2S slave
// mode with 16-bit words at 48 kHz and leaves the DAC muted.
func (d *Device) Configure(cfg Config) error {
	if cfg.Address != 0 {
		d.Address = cfg.Address
	}
	if !cfg.Playback && !cfg.Capture {
		cfg.Playback, cfg.Capture = true, true
	}
	vol := uint16(cfg.HeadphoneVol)
	if vol == 0 || vol > 0x7F {
		vol = 0x79
	}
	if err := d.Reset(); err != nil {
		return err
	}

	p1 := uint16(pw1VMID50k | pw1VREF)
	var p2, p3 uint16
	if cfg.Capture {
		p1 |= pw1AINL | pw1AINR | pw1ADCL | pw1ADCR
	}
	if cfg.Playback {
		p2 |= pw2DACL | pw2DACR | pw2LOUT1 | pw2ROUT1
		p3 |= pw3LOMIX | pw3ROMIX
	}
	seq := []struct {
		reg uint8
		val uint16
	}{
		{RegPower1, p1},
		{RegPower2, p2},
		{RegPower3, p3},
		{RegClocking1, 0},
		{RegAudioIface1, ifaceFormatI2S},
		{RegADCDACCtl1, dacMute},
		{RegLeftOutMix, outMixDAC},
		{RegRightOutMix, outMixDAC},
		{RegLeftOut1, vol},
		{RegRightOut1, volUpdate | vol},
		{RegLeftDACVol, 0xFF},
		{RegRightDACVol, volUpdate | 0xFF},
	}
	for _, s := range seq {
		if err := d.Write(s.reg, s.val); err != nil {
			return err
		}
	}
	return nil
}

// Reset issues a software reset and clears the shadow registers.
func (d *Device) Reset() error {
	if err := d.Write(RegReset, 0); err != nil {
		return err
	}
	d.reg = [numRegs]uint16{}
	return nil
}

// SetWordLength selects the I2S word length shared by ADC and DAC.
// bits must be 16, 20, 24 or 32.
func (d *Device) SetWordLength(bits uint32) error {
	var wl uint16
	switch bits {
	case 16:
		wl = 0
	case 20:
		wl = 1
	case 24:
		wl = 2
	case 32:
		wl = 3
	default:
		return ErrUnsupportedWordLength
	}
	return d.update(RegAudioIface1, wlMask, wl<<wlShift)
}

// WordLength returns the word length last programmed.
func (d *Device) WordLength() uint32 {
	switch (d.reg[RegAudioIface1] & wlMask) >> wlShift {
	case 1:
		return 20
	case 2:
		return 24
	case 3:
		return 32
	default:
		return 16
	}
}

// SetDACRate programs the playback sample rate.
func (d *Device) SetDACRate(rate uint32) error {
	div, ok := rateDiv[rate]
	if !ok {
		return ErrUnsupportedRate
	}
	return d.update(RegClocking1, divMask<<dacDivShift, div<<dacDivShift)
}

// SetADCRate programs the capture sample rate.
func (d *Device) SetADCRate(rate uint32) error {
	div, ok := rateDiv[rate]
	if !ok {
		return ErrUnsupportedRate
	}
	return d.update(RegClocking1, divMask<<adcDivShift, div<<adcDivShift)
}

// SupportsRate reports whether rate is reachable from MCLK.
func SupportsRate(rate uint32) bool {
	_, ok := rateDiv[rate]
	return ok
}

// Mute sets or clears the DAC soft mute.
func (d *Device) Mute(on bool) error {
	var v uint16
	if on {
		v = dacMute
	}
	return d.update(RegADCDACCtl1, dacMute, v)
}

// HeadphoneVolume returns the LOUT1 volume last programmed.
func (d *Device) HeadphoneVolume() uint8 {
	return uint8(d.reg[RegLeftOut1] & 0x7F)
}

// SetHeadphoneVolume writes both headphone channels; the right write latches
// the pair. Values above 0x7F are clamped.
func (d *Device) SetHeadphoneVolume(vol uint8) error {
	if vol > 0x7F {
		vol = 0x7F
	}
	if err := d.Write(RegLeftOut1, uint16(vol)); err != nil {
		return err
	}
	return d.Write(RegRightOut1, volUpdate|uint16(vol))
}

// FadeHeadphone ramps the headphone volume to vol over dur. Volumes below
// 0x30 are muted by the codec, so the ramp starts there when fading up from
// silence.
func (d *Device) FadeHeadphone(ctx context.Context, vol uint8, dur time.Duration) error {
	cur := d.HeadphoneVolume()
	if cur < hpMuteBelow && vol > cur {
		cur = hpMuteBelow
	}
	return ramp.Linear(ctx, uint16(cur), uint16(vol), dur, fadeSteps, func(l uint16) error {
		return d.SetHeadphoneVolume(uint8(l))
	})
}

// Register returns the shadow value of reg.
func (d *Device) Register(reg uint8) uint16 {
	if int(reg) >= numRegs {
		return 0
	}
	return d.reg[reg]
}

// Write sends one 9-bit register value.
func (d *Device) Write(reg uint8, val uint16) error {
	if int(reg) >= numRegs {
		return errors.New("wm8960: register out of range")
	}
	val &= 0x1FF
	d.w[0] = reg<<1 | byte(val>>8)
	d.w[1] = byte(val)
	if err := d.bus.Tx(d.Address, d.w[:], nil); err != nil {
		return err
	}
	d.reg[reg] = val
	return nil
}

func (d *Device) update(reg uint8, mask, val uint16) error {
	return d.Write(reg, d.reg[reg]&^mask|val&mask)
}
