package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"audiodrv-go/types"
)

var (
	audioStatus  = T("audio", "status")
	audioState   = T("audio", "state")
	audioEvent   = T("audio", "event")
	audioControl = T("audio", "control", SingleWild)
)

func recv(t *testing.T, sub *Subscription) *Message {
	t.Helper()
	select {
	case m, ok := <-sub.Channel():
		if !ok {
			t.Fatalf("%v: channel closed", sub.Topic())
		}
		return m
	case <-time.After(time.Second):
		t.Fatalf("%v: timeout waiting for message", sub.Topic())
		return nil
	}
}

func quiet(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case m := <-sub.Channel():
		t.Fatalf("%v: unexpected message on %v: %#v", sub.Topic(), m.Topic, m.Payload)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRetainedStatusLatestWins(t *testing.T) {
	b := NewBus(4)
	svc := b.NewConnection("audio")
	for n := uint32(1); n <= 3; n++ {
		svc.Publish(svc.NewMessage(audioStatus, types.AudioStatus{TxActive: true, TxCount: n}, true))
	}

	ui := b.NewConnection("ui")
	sub := ui.Subscribe(audioStatus)
	st, ok := recv(t, sub).Payload.(types.AudioStatus)
	if !ok || st.TxCount != 3 {
		t.Fatalf("late subscriber got %#v, want the last status", st)
	}
	quiet(t, sub)

	// Live subscribers see every update as it happens.
	svc.Publish(svc.NewMessage(audioStatus, types.AudioStatus{TxCount: 4}, true))
	if st := recv(t, sub).Payload.(types.AudioStatus); st.TxCount != 4 || st.TxActive {
		t.Fatalf("update %#v", st)
	}
}

func TestRetainedStateClearedByNil(t *testing.T) {
	b := NewBus(4)
	svc := b.NewConnection("audio")
	ui := b.NewConnection("ui")
	live := ui.Subscribe(audioState)

	svc.Publish(svc.NewMessage(audioState, types.ServiceState{Level: types.LevelReady}, true))
	if st := recv(t, live).Payload.(types.ServiceState); st.Level != types.LevelReady {
		t.Fatalf("state %#v", st)
	}
	svc.Publish(svc.NewMessage(audioState, nil, true))
	quiet(t, live)

	late := ui.Subscribe(audioState)
	quiet(t, late)
}

func TestWildcardReplaysRetainedAudioTopics(t *testing.T) {
	b := NewBus(8)
	svc := b.NewConnection("audio")
	svc.Publish(svc.NewMessage(audioStatus, types.AudioStatus{}, true))
	svc.Publish(svc.NewMessage(audioState, types.ServiceState{Level: types.LevelIdle}, true))
	svc.Publish(svc.NewMessage(audioEvent, types.AudioEvent{Mask: 1}, false))

	ui := b.NewConnection("ui")
	for _, pattern := range []Topic{T("audio", SingleWild), T("audio", MultiWild), T(MultiWild)} {
		sub := ui.Subscribe(pattern)
		seen := map[string]bool{}
		for i := 0; i < 2; i++ {
			seen[recv(t, sub).Topic.String()] = true
		}
		if !seen["audio/status"] || !seen["audio/state"] {
			t.Fatalf("%v replayed %v", pattern, seen)
		}
		// Events are not retained.
		quiet(t, sub)
		sub.Unsubscribe()
	}
}

func TestEventQueueDropsOldest(t *testing.T) {
	b := NewBus(2)
	svc := b.NewConnection("audio")
	ui := b.NewConnection("ui")
	sub := ui.Subscribe(audioEvent)

	// A slow reader must never stall the publisher.
	done := make(chan struct{})
	go func() {
		for n := uint32(1); n <= 5; n++ {
			svc.Publish(svc.NewMessage(audioEvent, types.AudioEvent{Mask: 1, TxCount: n}, false))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}

	for _, want := range []uint32{4, 5} {
		if ev := recv(t, sub).Payload.(types.AudioEvent); ev.TxCount != want {
			t.Fatalf("event count %d, want %d", ev.TxCount, want)
		}
	}
	quiet(t, sub)
}

// serveControl answers every audio/control/<verb> request with its verb.
func serveControl(b *Bus) (*Connection, <-chan struct{}) {
	srv := b.NewConnection("audio")
	sub := srv.Subscribe(audioControl)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for m := range sub.Channel() {
			srv.Reply(m, m.Topic.At(2), false)
		}
	}()
	return srv, done
}

func TestControlRequestReply(t *testing.T) {
	b := NewBus(4)
	srv, done := serveControl(b)
	client := b.NewConnection("ui")

	for _, verb := range []string{"enable", "status", "stats"} {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		reply, err := client.RequestWait(ctx, client.NewMessage(T("audio", "control", verb), nil, false))
		cancel()
		if err != nil {
			t.Fatalf("%s: %v", verb, err)
		}
		if reply.Payload != verb {
			t.Fatalf("%s: reply %#v", verb, reply.Payload)
		}
		if reply.Topic.Len() != 3 || reply.Topic.At(0) != "_reply" || reply.Topic.At(1) != "ui" {
			t.Fatalf("%s: reply topic %v", verb, reply.Topic)
		}
	}

	// Deeper topics do not reach a single-level server.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := client.RequestWait(ctx, client.NewMessage(T("audio", "control", "tx", "enable"), nil, false))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline", err)
	}

	srv.Disconnect()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("server loop still running after Disconnect")
	}
}

func TestControlRequestWithoutServerTimesOut(t *testing.T) {
	b := NewBus(4)
	client := b.NewConnection("ui")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.RequestWait(ctx, client.NewMessage(T("audio", "control", "status"), nil, false))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestPlainPublishToControlGetsNoReply(t *testing.T) {
	b := NewBus(4)
	_, _ = serveControl(b)
	ui := b.NewConnection("ui")
	all := ui.Subscribe(T(MultiWild))

	ui.Publish(ui.NewMessage(T("audio", "control", "disable"), nil, false))
	if m := recv(t, all); !m.Topic.Equal(T("audio", "control", "disable")) || m.CanReply() {
		t.Fatalf("got %v", m.Topic)
	}
	quiet(t, all)
}

func TestDisconnectClosesEverySubscription(t *testing.T) {
	b := NewBus(2)
	ui := b.NewConnection("ui")
	status := ui.Subscribe(audioStatus)
	events := ui.Subscribe(audioEvent)

	status.Unsubscribe()
	status.Unsubscribe()
	if _, ok := <-status.Channel(); ok {
		t.Fatal("status channel open after Unsubscribe")
	}
	ui.Disconnect()
	if _, ok := <-events.Channel(); ok {
		t.Fatal("event channel open after Disconnect")
	}

	// Publishing after the reader left is harmless.
	svc := b.NewConnection("audio")
	svc.Publish(svc.NewMessage(audioEvent, types.AudioEvent{}, false))
}

func TestTopicTokens(t *testing.T) {
	if s := T("_reply", "ui", 7).String(); s != "_reply/ui/7" {
		t.Fatalf("String = %q", s)
	}
	if !audioControl.Append().Equal(audioControl) || audioStatus.Equal(audioState) {
		t.Fatal("Equal")
	}
	defer func() {
		if recover() == nil {
			t.Fatal("slice token accepted")
		}
	}()
	_ = T("audio", []byte("status"))
}
