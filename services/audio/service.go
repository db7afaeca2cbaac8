// Package audio runs one audiodrv.Driver as a bus service.
//
// Topics:
//
//	config/audio              (sub, retained)  types.AudioConfig
//	audio/control/<verb>      (sub, request)   enable | disable | status | stats
//	audio/event               (pub)            types.AudioEvent
//	audio/status              (pub, retained)  types.AudioStatus
//	audio/state               (pub, retained)  types.ServiceState
//	audio/fault               (pub)            types.AudioFault
package audio

import (
	"context"
	"sync/atomic"
	"time"

	"audiodrv-go/bus"
	"audiodrv-go/drivers/audiodrv"
	"audiodrv-go/errcode"
	"audiodrv-go/types"
	"audiodrv-go/x/timex"
)

var (
	topicConfig  = bus.T("config", "audio")
	topicControl = bus.T("audio", "control", bus.SingleWild)
	topicEvent   = bus.T("audio", "event")
	topicStatus  = bus.T("audio", "status")
	topicState   = bus.T("audio", "state")
	topicFault   = bus.T("audio", "fault")
)

const (
	faultQueue = 8

	// drainTimeout bounds how long shutdown waits for directions to go idle.
	drainTimeout = 500 * time.Millisecond
)

type Service struct {
	drv  *audiodrv.Driver
	conn *bus.Connection

	// completion -> service handoff
	notify chan struct{}
	mask   atomic.Uint32
	faults chan audiodrv.Fault
	drops  atomic.Uint32

	bufs  [2][]byte
	cfg   types.AudioConfig
	level string

	tick    *time.Ticker
	stopped chan struct{}
}

// New claims eng for a new driver owned by the service.
func New(eng audiodrv.Engine) (*Service, error) {
	s := &Service{
		notify:  make(chan struct{}, 1),
		faults:  make(chan audiodrv.Fault, faultQueue),
		stopped: make(chan struct{}),
		level:   types.LevelIdle,
	}
	drv, err := audiodrv.Initialize(eng, s.onEvent)
	if err != nil {
		return nil, err
	}
	drv.SetFaultHook(s.onFault)
	s.drv = drv
	return s, nil
}

// Driver exposes the driver for data-path access (TxBlock/RxBlock).
func (s *Service) Driver() *audiodrv.Driver { return s.drv }

// Done is closed once Run has released the driver.
func (s *Service) Done() <-chan struct{} { return s.stopped }

// onEvent runs in completion context: record and poke, never block.
func (s *Service) onEvent(mask audiodrv.Event) {
	s.mask.Or(uint32(mask))
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Service) onFault(f audiodrv.Fault) {
	select {
	case s.faults <- f:
	default:
		s.drops.Add(1)
	}
}

// Start runs the service in a goroutine.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	go s.Run(ctx, conn)
}

// Run serves until ctx is cancelled, then stops both directions and
// uninitializes the driver.
func (s *Service) Run(ctx context.Context, conn *bus.Connection) {
	defer close(s.stopped)
	s.conn = conn

	cfgSub := conn.Subscribe(topicConfig)
	ctlSub := conn.Subscribe(topicControl)
	defer conn.Unsubscribe(cfgSub)
	defer conn.Unsubscribe(ctlSub)

	s.publishState(types.LevelIdle, "started")
	s.publishStatus()

	for {
		var tickC <-chan time.Time
		if s.tick != nil {
			tickC = s.tick.C
		}
		select {
		case <-ctx.Done():
			s.shutdown()
			return

		case m := <-cfgSub.Channel():
			if m == nil {
				continue
			}
			if err := s.applyConfig(m.Payload); err != nil {
				println("[audio] config rejected:", err.Error())
				s.publishState(types.LevelError, string(errcode.Of(err)))
			}

		case m := <-ctlSub.Channel():
			if m == nil {
				continue
			}
			s.handleControl(m)

		case <-s.notify:
			mask := s.mask.Swap(0)
			if mask == 0 {
				continue
			}
			s.conn.Publish(s.conn.NewMessage(topicEvent, types.AudioEvent{
				Mask:    mask,
				TxCount: s.drv.GetTxCount(),
				RxCount: s.drv.GetRxCount(),
				TS:      timex.NowMs(),
			}, false))
			s.publishStatus()

		case f := <-s.faults:
			println("[audio] fault:", f.Iface.String(), f.Kind.String(), "in", f.State.String())
			s.conn.Publish(s.conn.NewMessage(topicFault, types.AudioFault{
				Iface: f.Iface.String(),
				Kind:  f.Kind.String(),
				State: f.State.String(),
				TS:    timex.NowMs(),
			}, false))

		case <-tickC:
			s.publishStatus()
		}
	}
}

func (s *Service) shutdown() {
	if s.tick != nil {
		s.tick.Stop()
		s.tick = nil
	}
	_ = s.drv.Control(audiodrv.TxDisable | audiodrv.RxDisable)
	deadline := time.Now().Add(drainTimeout)
	for {
		st := s.drv.GetStatus()
		if !st.TxActive && !st.RxActive {
			break
		}
		if time.Now().After(deadline) {
			println("[audio] shutdown: directions still draining")
			break
		}
		time.Sleep(time.Millisecond)
	}
	if err := s.drv.Uninitialize(); err != nil {
		println("[audio] uninitialize:", err.Error())
	}
	s.publishState(types.LevelStopped, "shutdown")
}

func (s *Service) publishState(level, status string) {
	s.level = level
	s.conn.Publish(s.conn.NewMessage(topicState, types.ServiceState{
		Level:  level,
		Status: status,
		TS:     timex.NowMs(),
	}, true))
}

func (s *Service) status() types.AudioStatus {
	st := s.drv.GetStatus()
	return types.AudioStatus{
		TxActive: st.TxActive,
		RxActive: st.RxActive,
		TxState:  s.drv.State(audiodrv.TX).String(),
		RxState:  s.drv.State(audiodrv.RX).String(),
		TxCount:  s.drv.GetTxCount(),
		RxCount:  s.drv.GetRxCount(),
		TS:       timex.NowMs(),
	}
}

func (s *Service) publishStatus() {
	s.conn.Publish(s.conn.NewMessage(topicStatus, s.status(), true))
}

func (s *Service) stats() types.AudioStats {
	conv := func(st audiodrv.Stats) types.DirStats {
		return types.DirStats{
			Blocks:    st.Blocks,
			Overruns:  st.Overruns,
			Underruns: st.Underruns,
			Faults:    st.Faults,
		}
	}
	return types.AudioStats{
		TX:            conv(s.drv.Stats(audiodrv.TX)),
		RX:            conv(s.drv.Stats(audiodrv.RX)),
		Notifications: s.drv.Notifications(),
	}
}
