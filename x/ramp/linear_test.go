package ramp

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLinearUp(t *testing.T) {
	var got []uint16
	err := Linear(context.Background(), 0, 100, 10*time.Millisecond, 4, func(l uint16) error {
		got = append(got, l)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []uint16{25, 50, 75, 100}
	if len(got) != len(want) {
		t.Fatalf("levels %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("levels %v, want %v", got, want)
		}
	}
}

func TestLinearDownSkipsRepeats(t *testing.T) {
	var got []uint16
	_ = Linear(context.Background(), 3, 0, 8*time.Millisecond, 8, func(l uint16) error {
		got = append(got, l)
		return nil
	})
	for i := 1; i < len(got); i++ {
		if got[i] >= got[i-1] {
			t.Fatalf("not strictly decreasing: %v", got)
		}
	}
	if got[len(got)-1] != 0 {
		t.Fatalf("did not end at 0: %v", got)
	}
}

func TestLinearSnaps(t *testing.T) {
	var got []uint16
	_ = Linear(context.Background(), 10, 90, 0, 16, func(l uint16) error {
		got = append(got, l)
		return nil
	})
	if len(got) != 1 || got[0] != 90 {
		t.Fatalf("levels %v, want [90]", got)
	}
}

func TestLinearCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n := 0
	err := Linear(ctx, 0, 100, time.Second, 10, func(uint16) error { n++; return nil })
	if !errors.Is(err, context.Canceled) || n != 0 {
		t.Fatalf("err=%v calls=%d", err, n)
	}
}

func TestLinearStepError(t *testing.T) {
	boom := errors.New("bus")
	err := Linear(context.Background(), 0, 100, 4*time.Millisecond, 4, func(uint16) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
}
