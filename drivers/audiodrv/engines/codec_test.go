package engines

import (
	"errors"
	"testing"

	"audiodrv-go/drivers/audiodrv"
	"audiodrv-go/drivers/wm8960"
	"audiodrv-go/errcode"
)

// fakePort checks requests against the same limits as the real codec.
type fakePort struct {
	wl       uint32
	dac, adc uint32
	muted    bool
	calls    int
	fail     error
	muteFail error
}

func (p *fakePort) SetWordLength(bits uint32) error {
	p.calls++
	if p.fail != nil {
		return p.fail
	}
	p.wl = bits
	return nil
}

func (p *fakePort) SetDACRate(rate uint32) error {
	p.calls++
	if !wm8960.SupportsRate(rate) {
		return wm8960.ErrUnsupportedRate
	}
	p.dac = rate
	return nil
}

func (p *fakePort) SetADCRate(rate uint32) error {
	p.calls++
	if !wm8960.SupportsRate(rate) {
		return wm8960.ErrUnsupportedRate
	}
	p.adc = rate
	return nil
}

func (p *fakePort) Mute(on bool) error {
	if p.muteFail != nil {
		return p.muteFail
	}
	p.muted = on
	return nil
}

func TestCodecProgramsFormat(t *testing.T) {
	port := &fakePort{muted: true}
	inner := NewManual()
	d, err := audiodrv.Initialize(NewCodec(inner, port), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Uninitialize()

	if err := d.Configure(audiodrv.TX, 2, 24, 32000); err != nil {
		t.Fatal(err)
	}
	if port.wl != 24 || port.dac != 32000 {
		t.Fatalf("port %+v", port)
	}
	if inner.Format(audiodrv.TX).Rate != 32000 {
		t.Fatal("inner engine not configured")
	}
	if err := d.Configure(audiodrv.RX, 2, 24, 8000); err != nil {
		t.Fatal(err)
	}
	if port.adc != 8000 {
		t.Fatalf("adc rate %d", port.adc)
	}

	_ = d.SetBuf(audiodrv.TX, make([]byte, 2*4*4), 2, 4)
	if err := d.Control(audiodrv.TxEnable); err != nil {
		t.Fatal(err)
	}
	if port.muted {
		t.Fatal("DAC still muted while transmitting")
	}
	_ = d.Control(audiodrv.TxDisable)
	if !port.muted {
		t.Fatal("DAC not muted on disable")
	}
}

func TestCodecUnsupportedFormats(t *testing.T) {
	port := &fakePort{}
	inner := NewManual()
	d, err := audiodrv.Initialize(NewCodec(inner, port), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Uninitialize()

	cases := []struct {
		name string
		f    audiodrv.Format
	}{
		{"44.1k", audiodrv.Format{Channels: 2, Bits: 16, Rate: 44100}},
		{"8-bit", audiodrv.Format{Channels: 2, Bits: 8, Rate: 48000}},
		{"6 channels", audiodrv.Format{Channels: 6, Bits: 16, Rate: 48000}},
	}
	for _, c := range cases {
		err := d.Configure(audiodrv.TX, c.f.Channels, c.f.Bits, c.f.Rate)
		if audiodrv.StatusOf(err) != -4 {
			t.Fatalf("%s: err = %v, want unsupported", c.name, err)
		}
	}
	if port.calls != 0 || inner.Format(audiodrv.TX) != (audiodrv.Format{}) {
		t.Fatal("unsupported format reached the hardware")
	}

	// Word length is shared between directions.
	if err := d.Configure(audiodrv.TX, 2, 16, 48000); err != nil {
		t.Fatal(err)
	}
	err = d.Configure(audiodrv.RX, 2, 32, 48000)
	if errcode.Of(err) != errcode.Unsupported {
		t.Fatalf("mixed word length: %v", err)
	}
	if err := d.Configure(audiodrv.RX, 1, 12, 16000); err != nil {
		t.Fatalf("12-bit rides a 16-bit slot: %v", err)
	}
}

func TestCodecBusFailureIsError(t *testing.T) {
	port := &fakePort{fail: errors.New("nack")}
	c := NewCodec(NewManual(), port)
	err := c.Configure(audiodrv.TX, audiodrv.Format{Channels: 2, Bits: 16, Rate: 48000})
	if errcode.Of(err) != errcode.Error {
		t.Fatalf("err = %v", err)
	}
	if codecErr(wm8960.ErrUnsupportedRate) == nil || errcode.Of(codecErr(wm8960.ErrUnsupportedRate)) != errcode.Unsupported {
		t.Fatal("rate error not mapped to unsupported")
	}
}

func TestCodecInnerRejectionRestoresCodec(t *testing.T) {
	port := &fakePort{}
	inner := NewManual()
	inner.RejectRate = 32000
	c := NewCodec(inner, port)

	good := audiodrv.Format{Channels: 2, Bits: 16, Rate: 48000}
	if err := c.Configure(audiodrv.TX, good); err != nil {
		t.Fatal(err)
	}
	err := c.Configure(audiodrv.TX, audiodrv.Format{Channels: 2, Bits: 24, Rate: 32000})
	if errcode.Of(err) != errcode.Unsupported {
		t.Fatalf("err = %v", err)
	}
	if port.wl != 16 || port.dac != 48000 {
		t.Fatalf("codec left at wl=%d dac=%d after the engine refused", port.wl, port.dac)
	}
	if inner.Format(audiodrv.TX) != good {
		t.Fatalf("inner format %+v", inner.Format(audiodrv.TX))
	}
	// The refused word length is not recorded for the other direction.
	if err := c.Configure(audiodrv.RX, audiodrv.Format{Channels: 2, Bits: 16, Rate: 16000}); err != nil {
		t.Fatal(err)
	}
}

func TestCodecRefusalNeverReachesInner(t *testing.T) {
	port := &fakePort{fail: errors.New("nack")}
	inner := NewManual()
	c := NewCodec(inner, port)
	if err := c.Configure(audiodrv.RX, audiodrv.Format{Channels: 1, Bits: 16, Rate: 8000}); err == nil {
		t.Fatal("Configure succeeded with the codec failing")
	}
	if inner.Format(audiodrv.RX) != (audiodrv.Format{}) {
		t.Fatal("inner engine configured for a format the codec refused")
	}
}

func TestCodecMuteFailureCounted(t *testing.T) {
	port := &fakePort{}
	c := NewCodec(NewManual(), port)
	d, err := audiodrv.Initialize(c, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Uninitialize()
	_ = d.Configure(audiodrv.TX, 2, 16, 48000)
	_ = d.SetBuf(audiodrv.TX, make([]byte, 2*4*2), 2, 4)
	if err := d.Control(audiodrv.TxEnable); err != nil {
		t.Fatal(err)
	}
	port.muteFail = errors.New("nack")
	if err := d.Control(audiodrv.TxDisable); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if c.PortErrors() != 1 {
		t.Fatalf("port errors = %d", c.PortErrors())
	}
	waitInactive(t, d, audiodrv.TX)
}
