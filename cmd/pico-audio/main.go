//go:build rp2040 || rp2350

// Command pico-audio runs the audio service on a Pico with a WM8960 codec
// board on I2C0. Block completions are paced by the clocked engine; the codec
// follows every format change. A one-line status is written to UART0 once a
// second.
package main

import (
	"context"
	"machine"
	"runtime"
	"strconv"
	"time"

	"audiodrv-go/bus"
	"audiodrv-go/drivers/audiodrv"
	"audiodrv-go/drivers/audiodrv/engines"
	"audiodrv-go/drivers/wm8960"
	"audiodrv-go/services/audio"
	"audiodrv-go/services/config"
	"audiodrv-go/types"

	"github.com/jangala-dev/tinygo-uartx/uartx"
)

const (
	headphoneVol = 0x70
	fadeTime     = 300 * time.Millisecond
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	ctx := context.Background()

	println("[main] bringing up I2C0 and codec …")
	if err := machine.I2C0.Configure(machine.I2CConfig{Frequency: 400 * machine.KHz}); err != nil {
		println("[main] i2c0:", err.Error())
		return
	}
	codec := wm8960.New(machine.I2C0)
	if err := codec.Configure(wm8960.Config{}); err != nil {
		println("[main] wm8960:", err.Error())
		return
	}

	console := uartx.UART0
	_ = console.Configure(uartx.UARTConfig{BaudRate: 115200})

	eng := engines.NewCodec(engines.NewClocked(engines.ClockedConfig{}), codec)

	println("[main] bootstrapping bus …")
	b := bus.NewBus(4)
	svc, err := audio.New(eng)
	if err != nil {
		println("[main] audio init:", err.Error())
		return
	}
	svc.Start(ctx, b.NewConnection("audio"))
	config.NewConfigService().Start(config.WithDevice(ctx, "pico"), b.NewConnection("config"))

	ui := b.NewConnection("ui")
	states := ui.Subscribe(bus.T("audio", "state"))
	events := ui.Subscribe(bus.T("audio", "event"))
	faults := ui.Subscribe(bus.T("audio", "fault"))

	drv := svc.Driver()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	line := make([]byte, 0, 96)

	for {
		select {
		case m := <-states.Channel():
			st, ok := m.Payload.(types.ServiceState)
			if !ok {
				continue
			}
			println("[main] audio state:", st.Level, st.Status)
			if st.Level == types.LevelReady {
				if err := codec.FadeHeadphone(ctx, headphoneVol, fadeTime); err != nil {
					println("[main] fade:", err.Error())
				}
			}

		case m := <-events.Channel():
			ev, ok := m.Payload.(types.AudioEvent)
			if !ok || ev.Mask&uint32(audiodrv.EventRxData) == 0 {
				continue
			}
			// Nothing consumes capture yet: release to keep the ring moving.
			for {
				if _, ok := drv.RxBlock(); !ok {
					break
				}
				if drv.ReleaseRx() != nil {
					break
				}
			}

		case m := <-faults.Channel():
			if f, ok := m.Payload.(types.AudioFault); ok {
				println("[main] fault:", f.Iface, f.Kind, f.State)
			}

		case <-tick.C:
			line = statusLine(line[:0], drv, eng)
			_, _ = console.Write(line)
		}
	}
}

// statusLine appends "tx=<n> rx=<n> act=<tx><rx> codec_err=<n> heap=<bytes>\r\n".
func statusLine(buf []byte, drv *audiodrv.Driver, eng *engines.Codec) []byte {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	st := drv.GetStatus()

	buf = append(buf, "tx="...)
	buf = strconv.AppendUint(buf, uint64(drv.GetTxCount()), 10)
	buf = append(buf, " rx="...)
	buf = strconv.AppendUint(buf, uint64(drv.GetRxCount()), 10)
	buf = append(buf, " act="...)
	buf = appendBit(buf, st.TxActive)
	buf = appendBit(buf, st.RxActive)
	buf = append(buf, " codec_err="...)
	buf = strconv.AppendUint(buf, uint64(eng.PortErrors()), 10)
	buf = append(buf, " heap="...)
	buf = strconv.AppendUint(buf, ms.HeapInuse, 10)
	return append(buf, "\r\n"...)
}

func appendBit(buf []byte, on bool) []byte {
	if on {
		return append(buf, '1')
	}
	return append(buf, '0')
}
