package server

import (
	"context"
	"testing"
	"time"

	"ecosim/internal/ecology"
)

func testConfig() ecology.Config {
	return ecology.Config{Height: 10, Width: 10, Prey: 20, Predators: 7, Poachers: 3, Seed: 42}
}

func newTestBroadcaster(t *testing.T, opts Options) *Broadcaster {
	t.Helper()
	b, err := NewBroadcaster(testConfig(), opts)
	if err != nil {
		t.Fatalf("new broadcaster: %v", err)
	}
	return b
}

func TestNewBroadcasterRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Prey = 500
	if _, err := NewBroadcaster(cfg, Options{}); err == nil {
		t.Fatal("expected capacity error")
	}
}

func TestBroadcasterInitialFrame(t *testing.T) {
	b := newTestBroadcaster(t, Options{})
	frame := b.Frame()
	if frame.Type != "frame" || frame.Tick != 0 || frame.Height != 10 || frame.Width != 10 {
		t.Fatalf("unexpected frame header: %+v", frame)
	}
	if frame.Counts != (ecology.Counts{Prey: 20, Predators: 7, Poachers: 3}) {
		t.Fatalf("unexpected counts: %+v", frame.Counts)
	}
	if len(frame.Cells) != 30 {
		t.Fatalf("expected 30 occupied cells, got %d", len(frame.Cells))
	}
	if frame.Speed != 1 || frame.Paused {
		t.Fatalf("unexpected controls: %+v", frame)
	}
}

func TestBroadcasterStepWhilePaused(t *testing.T) {
	b := newTestBroadcaster(t, Options{StartPaused: true})
	if _, advanced := b.advance(false); advanced {
		t.Fatal("paused broadcaster should not advance on the ticker")
	}
	frame := b.Step()
	if frame.Tick != 1 || !frame.Paused {
		t.Fatalf("expected a single forced tick while paused: %+v", frame)
	}
	b.Resume()
	if _, advanced := b.advance(false); !advanced {
		t.Fatal("resumed broadcaster should advance")
	}
	if b.Frame().Tick != 2 {
		t.Fatalf("expected tick 2, got %d", b.Frame().Tick)
	}
}

func TestBroadcasterResetRestoresSeededState(t *testing.T) {
	b := newTestBroadcaster(t, Options{})
	initial := b.Frame()
	b.Step()
	b.Step()
	if err := b.Reset(nil); err != nil {
		t.Fatalf("reset: %v", err)
	}
	after := b.Frame()
	if after.Tick != 0 || after.Counts != initial.Counts || len(after.Cells) != len(initial.Cells) {
		t.Fatalf("reset did not restore seeded state: %+v", after)
	}
	for i := range initial.Cells {
		if initial.Cells[i].Pos != after.Cells[i].Pos {
			t.Fatalf("same seed should reproduce placement, cell %d differs", i)
		}
	}

	seed := int64(7)
	if err := b.Reset(&seed); err != nil {
		t.Fatalf("reset with seed: %v", err)
	}
	if b.Frame().Seed != 7 {
		t.Fatalf("expected seed 7, got %d", b.Frame().Seed)
	}
}

func TestBroadcasterSpeed(t *testing.T) {
	b := newTestBroadcaster(t, Options{BaseInterval: 100 * time.Millisecond})
	if err := b.SetSpeed(0); err == nil {
		t.Fatal("expected error for zero speed")
	}
	if err := b.SetSpeed(2); err != nil {
		t.Fatalf("set speed: %v", err)
	}
	if got := b.interval(); got != 50*time.Millisecond {
		t.Fatalf("expected 50ms interval, got %v", got)
	}
	if err := b.SetSpeed(1000); err != nil {
		t.Fatalf("set speed: %v", err)
	}
	if got := b.interval(); got != minTickInterval {
		t.Fatalf("expected clamp to %v, got %v", minTickInterval, got)
	}
	if err := b.SetSpeed(0.0001); err != nil {
		t.Fatalf("set speed: %v", err)
	}
	if got := b.interval(); got != maxTickInterval {
		t.Fatalf("expected clamp to %v, got %v", maxTickInterval, got)
	}
}

func TestBroadcasterRunAdvancesOnTicker(t *testing.T) {
	b := newTestBroadcaster(t, Options{BaseInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for b.Frame().Tick < 3 {
		if time.Now().After(deadline) {
			t.Fatal("ticker did not advance the model")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop on cancel")
	}
}

func TestApplyUnknownAction(t *testing.T) {
	b := newTestBroadcaster(t, Options{})
	if err := b.apply(Action{Action: "explode"}); err == nil {
		t.Fatal("expected unknown action error")
	}
	if err := b.apply(Action{Action: "pause"}); err != nil || !b.Paused() {
		t.Fatalf("pause failed: err=%v paused=%t", err, b.Paused())
	}
}
