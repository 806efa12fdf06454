package transport

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestInFlightRegistry_TrackAndCancel(t *testing.T) {
	r := NewInFlightRegistry()

	ctx, release := r.Track(context.Background(), "call_1")
	defer release()

	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
	if !r.Cancel("call_1") {
		t.Fatal("Cancel should return true for a tracked id")
	}
	if ctx.Err() == nil {
		t.Error("context should be cancelled")
	}
	if r.Cancel("call_1") {
		t.Error("second Cancel should return false")
	}
}

func TestInFlightRegistry_ReleaseRemoves(t *testing.T) {
	r := NewInFlightRegistry()

	ctx, release := r.Track(context.Background(), "call_1")
	release()

	if r.Len() != 0 {
		t.Errorf("Len = %d after release, want 0", r.Len())
	}
	if r.Cancel("call_1") {
		t.Error("Cancel after release should return false")
	}
	if ctx.Err() == nil {
		t.Error("release should cancel the derived context")
	}
}

func TestInFlightRegistry_ParentCancellation(t *testing.T) {
	r := NewInFlightRegistry()
	parent, cancel := context.WithCancel(context.Background())

	ctx, release := r.Track(parent, "call_1")
	defer release()

	cancel()
	if ctx.Err() == nil {
		t.Error("client disconnect should propagate to the tracked context")
	}
}

func TestInFlightRegistry_CancelAllConcurrent(t *testing.T) {
	r := NewInFlightRegistry()

	var wg sync.WaitGroup
	ctxs := make([]context.Context, 20)
	for i := range ctxs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, _ := r.Track(context.Background(), fmt.Sprintf("call_%d", i))
			ctxs[i] = ctx
		}()
	}
	wg.Wait()

	if n := r.CancelAll(); n != 20 {
		t.Errorf("CancelAll = %d, want 20", n)
	}
	for i, ctx := range ctxs {
		if ctx.Err() == nil {
			t.Errorf("ctx %d not cancelled", i)
		}
	}
}
