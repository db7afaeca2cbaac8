// Command audio-loopback runs the audio service on the host with a clocked
// engine. Transmitted blocks (a test tone) are captured to a WAV file and
// looped back into the receiver, or the receiver is fed from a WAV file.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"audiodrv-go/bus"
	"audiodrv-go/drivers/audiodrv"
	"audiodrv-go/drivers/audiodrv/engines"
	"audiodrv-go/services/audio"
	"audiodrv-go/services/config"
	"audiodrv-go/types"
	"audiodrv-go/x/pcmx"
)

// hostFormat matches the "host" entry of the embedded config.
var hostFormat = audiodrv.Format{Channels: 2, Bits: 16, Rate: 48000}

func main() {
	out := flag.String("out", "capture.wav", "WAV file receiving transmitted blocks")
	in := flag.String("in", "", "WAV file feeding the receiver (default: loopback)")
	tone := flag.Float64("tone", 440, "test tone frequency in Hz")
	dur := flag.Duration("dur", 0, "stop after this long (0: until interrupted)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *dur > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *dur)
		defer cancel()
	}

	outFile, err := os.Create(*out)
	if err != nil {
		println("[main] create", *out, "failed:", err.Error())
		os.Exit(1)
	}
	defer outFile.Close()
	sink, err := engines.NewWAVSink(outFile, hostFormat)
	if err != nil {
		println("[main] wav sink:", err.Error())
		os.Exit(1)
	}

	cfg := engines.ClockedConfig{Sink: sink, Loopback: true}
	if *in != "" {
		inFile, err := os.Open(*in)
		if err != nil {
			println("[main] open", *in, "failed:", err.Error())
			os.Exit(1)
		}
		defer inFile.Close()
		src, err := engines.NewWAVSource(inFile, hostFormat)
		if err != nil {
			println("[main] wav source:", err.Error())
			os.Exit(1)
		}
		src.Loop = true
		cfg.Source, cfg.Loopback = src, false
	}
	eng := engines.NewClocked(cfg)

	println("[main] bootstrapping bus …")
	b := bus.NewBus(16)

	svc, err := audio.New(eng)
	if err != nil {
		println("[main] audio init:", err.Error())
		os.Exit(1)
	}
	svc.Start(ctx, b.NewConnection("audio"))
	config.NewConfigService().Start(config.WithDevice(ctx, "host"), b.NewConnection("config"))

	ui := b.NewConnection("ui")
	events := ui.Subscribe(bus.T("audio", "event"))
	states := ui.Subscribe(bus.T("audio", "state"))
	faults := ui.Subscribe(bus.T("audio", "fault"))

	drv := svc.Driver()
	gen := pcmx.Sine{Freq: *tone, Rate: float64(hostFormat.Rate), Level: 0.5}
	peak := 0
	report := time.NewTicker(time.Second)
	defer report.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop

		case m := <-states.Channel():
			if st, ok := m.Payload.(types.ServiceState); ok {
				println("[main] audio state:", st.Level, st.Status)
				if st.Level == types.LevelReady {
					fillTx(drv, &gen)
				}
			}

		case m := <-events.Channel():
			ev, ok := m.Payload.(types.AudioEvent)
			if !ok {
				continue
			}
			if ev.Mask&uint32(audiodrv.EventTxData) != 0 {
				fillTx(drv, &gen)
			}
			if ev.Mask&uint32(audiodrv.EventRxData) != 0 {
				if p := drainRx(drv); p > peak {
					peak = p
				}
			}

		case m := <-faults.Channel():
			if f, ok := m.Payload.(types.AudioFault); ok {
				println("[main] fault:", f.Iface, f.Kind, f.State)
			}

		case <-report.C:
			st := drv.GetStatus()
			println("[main] tx", drv.GetTxCount(), "rx", drv.GetRxCount(),
				"active", st.TxActive, st.RxActive, "rx peak", peak)
			peak = 0
		}
	}

	println("[main] shutting down …")
	<-svc.Done()
	eng.Wait(audiodrv.TX)
	eng.Wait(audiodrv.RX)
	if err := sink.Close(); err != nil {
		println("[main] wav close:", err.Error())
	}
	println("[main] wrote", sink.Frames(), "frames to", *out, "sink errors", eng.SinkErrors())
}

// fillTx commits tone blocks until the transmit ring is full.
func fillTx(drv *audiodrv.Driver, gen *pcmx.Sine) {
	for {
		blk, ok := drv.TxBlock()
		if !ok {
			return
		}
		gen.Fill(blk, int(hostFormat.Channels))
		if err := drv.CommitTx(); err != nil {
			return
		}
	}
}

// drainRx releases every received block and returns their peak level.
func drainRx(drv *audiodrv.Driver) int {
	peak := 0
	for {
		blk, ok := drv.RxBlock()
		if !ok {
			return peak
		}
		if p := pcmx.Peak(blk); p > peak {
			peak = p
		}
		if err := drv.ReleaseRx(); err != nil {
			return peak
		}
	}
}
