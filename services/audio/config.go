package audio

import (
	"encoding/json"
	"time"

	"audiodrv-go/drivers/audiodrv"
	"audiodrv-go/errcode"
	"audiodrv-go/types"
	"audiodrv-go/x/mathx"
)

// Limits on the periodic status refresh.
const (
	minStatusInterval = 50     // ms
	maxStatusInterval = 60_000 // ms
)

// decode fills dst from a bus payload: raw JSON, or a decoded JSON value
// (map[string]any) as published by the config service.
func decode(payload any, dst any) error {
	var raw []byte
	switch p := payload.(type) {
	case nil:
		return nil
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	case string:
		raw = []byte(p)
	case map[string]any:
		b, err := json.Marshal(p)
		if err != nil {
			return errcode.New("decode", errcode.InvalidPayload, err.Error())
		}
		raw = b
	default:
		return errcode.New("decode", errcode.InvalidPayload, "unexpected payload type")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errcode.New("decode", errcode.InvalidPayload, err.Error())
	}
	return nil
}

func decodeConfig(payload any) (types.AudioConfig, error) {
	switch p := payload.(type) {
	case types.AudioConfig:
		return p, nil
	case *types.AudioConfig:
		if p == nil {
			return types.AudioConfig{}, errcode.New("config", errcode.InvalidPayload, "nil config")
		}
		return *p, nil
	}
	var cfg types.AudioConfig
	err := decode(payload, &cfg)
	return cfg, err
}

// parseIface maps "tx", "rx" or "both" to interface bits.
func parseIface(name string) (audiodrv.Interface, bool) {
	switch name {
	case "tx":
		return audiodrv.TX, true
	case "rx":
		return audiodrv.RX, true
	case "both", "":
		return audiodrv.TX | audiodrv.RX, true
	}
	return 0, false
}

func enableBits(i audiodrv.Interface) audiodrv.Control {
	var c audiodrv.Control
	if i&audiodrv.TX != 0 {
		c |= audiodrv.TxEnable
	}
	if i&audiodrv.RX != 0 {
		c |= audiodrv.RxEnable
	}
	return c
}

func disableBits(i audiodrv.Interface) audiodrv.Control {
	var c audiodrv.Control
	if i&audiodrv.TX != 0 {
		c |= audiodrv.TxDisable
	}
	if i&audiodrv.RX != 0 {
		c |= audiodrv.RxDisable
	}
	return c
}

// applyConfig reconfigures every direction named in the payload. A running
// direction is drained first. Directions listed in Enable are started last.
func (s *Service) applyConfig(payload any) error {
	cfg, err := decodeConfig(payload)
	if err != nil {
		return err
	}

	var enable audiodrv.Interface
	for _, name := range cfg.Enable {
		i, ok := parseIface(name)
		if !ok {
			return errcode.New("config", errcode.Parameter, "unknown interface "+name)
		}
		enable |= i
	}

	for _, d := range []struct {
		iface audiodrv.Interface
		sc    *types.StreamConfig
	}{
		{audiodrv.TX, cfg.TX},
		{audiodrv.RX, cfg.RX},
	} {
		if d.sc == nil {
			continue
		}
		if err := s.configureDir(d.iface, *d.sc); err != nil {
			return err
		}
		println("[audio] configured", d.iface.String(), d.sc.Channels, "ch", d.sc.Bits, "bit", d.sc.Rate, "Hz")
	}

	if enable != 0 {
		if err := s.drv.Control(enableBits(enable)); err != nil {
			return err
		}
	}

	s.setStatusInterval(cfg.StatusIntervalMS)
	s.cfg = cfg
	s.publishState(types.LevelReady, "configured")
	s.publishStatus()
	return nil
}

func (s *Service) configureDir(iface audiodrv.Interface, sc types.StreamConfig) error {
	if s.active(iface) {
		_ = s.drv.Control(disableBits(iface))
		if !s.waitIdle(iface, drainTimeout) {
			return errcode.New("config", errcode.Timeout, iface.String()+" did not stop")
		}
	}
	if err := s.drv.Configure(iface, sc.Channels, sc.Bits, sc.Rate); err != nil {
		return err
	}
	f := audiodrv.Format{Channels: sc.Channels, Bits: sc.Bits, Rate: sc.Rate}
	need := uint64(sc.Blocks) * uint64(sc.BlockSize) * uint64(f.Width())
	if need == 0 || need > 1<<24 {
		return errcode.New("config", errcode.Parameter, "ring size out of range")
	}
	slot := 0
	if iface == audiodrv.RX {
		slot = 1
	}
	if uint64(len(s.bufs[slot])) != need {
		s.bufs[slot] = make([]byte, need)
	}
	return s.drv.SetBuf(iface, s.bufs[slot], sc.Blocks, sc.BlockSize)
}

func (s *Service) active(iface audiodrv.Interface) bool {
	st := s.drv.GetStatus()
	if iface == audiodrv.TX {
		return st.TxActive
	}
	return st.RxActive
}

func (s *Service) waitIdle(iface audiodrv.Interface, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for s.active(iface) {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}

func (s *Service) setStatusInterval(ms int) {
	if s.tick != nil {
		s.tick.Stop()
		s.tick = nil
	}
	if ms <= 0 {
		return
	}
	ms = mathx.Clamp(ms, minStatusInterval, maxStatusInterval)
	s.tick = time.NewTicker(time.Duration(ms) * time.Millisecond)
}
