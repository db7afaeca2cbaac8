package engines

import (
	"testing"
	"time"

	"audiodrv-go/drivers/audiodrv"
	"audiodrv-go/errcode"
)

func newManualDriver(t *testing.T) (*audiodrv.Driver, *Manual, chan audiodrv.Event) {
	t.Helper()
	m := NewManual()
	events := make(chan audiodrv.Event, 64)
	d, err := audiodrv.Initialize(m, func(mask audiodrv.Event) {
		select {
		case events <- mask:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	return d, m, events
}

func waitInactive(t *testing.T, d *audiodrv.Driver, iface audiodrv.Interface) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s := d.GetStatus()
		if (iface == audiodrv.TX && !s.TxActive) || (iface == audiodrv.RX && !s.RxActive) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("%v did not go idle", iface)
}

func TestManualTransmitCarriesCommittedData(t *testing.T) {
	d, m, events := newManualDriver(t)
	defer d.Uninitialize()

	buf := make([]byte, 4*4)
	if err := d.Configure(audiodrv.TX, 1, 8, 8000); err != nil {
		t.Fatal(err)
	}
	if err := d.SetBuf(audiodrv.TX, buf, 4, 4); err != nil {
		t.Fatal(err)
	}
	for i := byte(1); i <= 2; i++ {
		blk, ok := d.TxBlock()
		if !ok {
			t.Fatal("no TX block")
		}
		for j := range blk {
			blk[j] = i
		}
		if err := d.CommitTx(); err != nil {
			t.Fatal(err)
		}
	}
	if err := d.Control(audiodrv.TxEnable); err != nil {
		t.Fatal(err)
	}

	var sent []byte
	for i := 0; i < 3; i++ {
		m.Fire(audiodrv.TX, func(b []byte) { sent = append(sent, b[0]) })
	}
	if string(sent) != "\x01\x02\x00" {
		t.Fatalf("sent %v, want [1 2 0]", sent)
	}
	// Slots 2, 3 and then 0 again were queued with nothing committed.
	if d.GetTxCount() != 3 || d.Stats(audiodrv.TX).Underruns != 3 {
		t.Fatalf("count=%d stats=%+v", d.GetTxCount(), d.Stats(audiodrv.TX))
	}
	select {
	case ev := <-events:
		if ev&audiodrv.EventTxData == 0 {
			t.Fatalf("event %v", ev)
		}
	default:
		t.Fatal("no event")
	}
	if m.Pending(audiodrv.TX) != 2 {
		t.Fatalf("pending = %d, want two blocks armed", m.Pending(audiodrv.TX))
	}

	if err := d.Control(audiodrv.TxDisable); err != nil {
		t.Fatal(err)
	}
	waitInactive(t, d, audiodrv.TX)
	if m.Running(audiodrv.TX) {
		t.Fatal("engine still running")
	}
}

func TestManualReceiveFillsRing(t *testing.T) {
	d, m, _ := newManualDriver(t)
	defer d.Uninitialize()

	if err := d.Configure(audiodrv.RX, 2, 16, 16000); err != nil {
		t.Fatal(err)
	}
	if err := d.SetBuf(audiodrv.RX, make([]byte, 2*8*2), 2, 8); err != nil {
		t.Fatal(err)
	}
	if err := d.Control(audiodrv.RxEnable); err != nil {
		t.Fatal(err)
	}
	// A two-block ring keeps one block for the engine and one for the reader.
	for _, want := range []byte{0xAA, 0xBB} {
		m.Fire(audiodrv.RX, func(b []byte) { b[0] = want })
		blk, ok := d.RxBlock()
		if !ok || blk[0] != want {
			t.Fatalf("RxBlock = %v %v, want %#x", blk, ok, want)
		}
		if err := d.ReleaseRx(); err != nil {
			t.Fatal(err)
		}
	}
	if n := d.Stats(audiodrv.RX).Overruns; n != 0 {
		t.Fatalf("overruns = %d", n)
	}
}

func TestManualReceiveFireAfterArmDoesNotTouchUnreadBlock(t *testing.T) {
	d, m, _ := newManualDriver(t)
	defer d.Uninitialize()

	_ = d.Configure(audiodrv.RX, 1, 8, 8000)
	_ = d.SetBuf(audiodrv.RX, make([]byte, 2*4), 2, 4)
	if err := d.Control(audiodrv.RxEnable); err != nil {
		t.Fatal(err)
	}
	if m.Pending(audiodrv.RX) != 1 {
		t.Fatalf("pending = %d, want one block armed", m.Pending(audiodrv.RX))
	}
	m.Fire(audiodrv.RX, func(b []byte) { b[0] = 'A' })
	blk, ok := d.RxBlock()
	if !ok || blk[0] != 'A' {
		t.Fatalf("RxBlock = %v %v", blk, ok)
	}
	// The engine fills the other slot and leaves the unread one alone.
	m.Fire(audiodrv.RX, func(b []byte) {
		if &b[0] == &blk[0] {
			t.Error("engine wrote into the block being read")
		}
		b[0] = 'B'
	})
	if blk[0] != 'A' {
		t.Fatalf("unread block overwritten with %q", blk[0])
	}
	if n := d.Stats(audiodrv.RX).Overruns; n != 1 {
		t.Fatalf("overruns = %d, want the unread block dropped once", n)
	}
}

func TestManualLateCommitNeverAliasesBegunBlock(t *testing.T) {
	d, m, _ := newManualDriver(t)
	defer d.Uninitialize()

	_ = d.Configure(audiodrv.TX, 1, 8, 8000)
	_ = d.SetBuf(audiodrv.TX, make([]byte, 4*4), 4, 4)
	if err := d.Control(audiodrv.TxEnable); err != nil {
		t.Fatal(err)
	}
	if !m.Begin(audiodrv.TX) {
		t.Fatal("Begin failed")
	}
	blk, ok := d.TxBlock()
	if !ok {
		t.Fatal("no TX block")
	}
	for i := range blk {
		blk[i] = 0x7E
	}
	if err := d.CommitTx(); err != nil {
		t.Fatal(err)
	}
	var sent [][]byte
	for i := 0; i < 3; i++ {
		m.Fire(audiodrv.TX, func(b []byte) { sent = append(sent, b) })
	}
	if &sent[0][0] == &blk[0] || &sent[1][0] == &blk[0] {
		t.Fatal("committed block went out in a slot the engine already held")
	}
	if sent[2][0] != 0x7E {
		t.Fatalf("third block = %v, want the committed data", sent[2])
	}
	// Both priming blocks left without a commit.
	if n := d.Stats(audiodrv.TX).Underruns; n < 2 {
		t.Fatalf("underruns = %d", n)
	}
}

func TestManualStopDrainsBegunBlock(t *testing.T) {
	d, m, _ := newManualDriver(t)
	defer d.Uninitialize()

	_ = d.Configure(audiodrv.RX, 1, 16, 8000)
	_ = d.SetBuf(audiodrv.RX, make([]byte, 4*2*2), 4, 2)
	_ = d.Control(audiodrv.RxEnable)

	if !m.Begin(audiodrv.RX) {
		t.Fatal("Begin failed")
	}
	if err := d.Control(audiodrv.RxDisable); err != nil {
		t.Fatal(err)
	}
	if !d.GetStatus().RxActive {
		t.Fatal("inactive before the begun block finished")
	}
	m.Fire(audiodrv.RX, nil)
	if d.GetStatus().RxActive || d.GetRxCount() != 1 {
		t.Fatalf("active=%v count=%d", d.GetStatus().RxActive, d.GetRxCount())
	}
	if m.Fire(audiodrv.RX, nil) {
		t.Fatal("Fire after idle completed a block")
	}
	// Second round without reconfiguring.
	if err := d.Control(audiodrv.RxEnable); err != nil {
		t.Fatal(err)
	}
	m.Fire(audiodrv.RX, nil)
	if d.GetRxCount() != 2 {
		t.Fatalf("count = %d", d.GetRxCount())
	}
	_ = d.Control(audiodrv.RxDisable)
	waitInactive(t, d, audiodrv.RX)
}

func TestManualRejectRate(t *testing.T) {
	m := NewManual()
	m.RejectRate = 44100
	d, err := audiodrv.Initialize(m, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Uninitialize()
	err = d.Configure(audiodrv.TX, 2, 16, 44100)
	if errcode.Of(err) != errcode.Unsupported || audiodrv.StatusOf(err) != -4 {
		t.Fatalf("err = %v", err)
	}
	if d.State(audiodrv.TX) != audiodrv.StateUninitialized {
		t.Fatal("rejected format changed the state")
	}
}

func TestManualInjectedSignalIsFault(t *testing.T) {
	d, m, _ := newManualDriver(t)
	defer d.Uninitialize()
	var got []audiodrv.Fault
	d.SetFaultHook(func(f audiodrv.Fault) { got = append(got, f) })
	m.Signal(audiodrv.RX, audiodrv.SignalBlockDone)
	if len(got) != 1 || got[0].Kind != audiodrv.FaultSpuriousBlock || got[0].Iface != audiodrv.RX {
		t.Fatalf("faults = %+v", got)
	}
	if d.GetRxCount() != 0 {
		t.Fatal("spurious completion counted")
	}
}
