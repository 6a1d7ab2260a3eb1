package channel_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/glizzus/au-stream/internal/channel"
	"github.com/google/go-cmp/cmp"
)

func mustNew[T any](t *testing.T, capacity int) (*channel.Sink[T], *channel.Source[T]) {
	t.Helper()
	sink, source, err := channel.New[T](capacity)
	if err != nil {
		t.Fatalf("New(%d) returned error: %v", capacity, err)
	}
	return sink, source
}

func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		if _, _, err := channel.New[int](capacity); err == nil {
			t.Errorf("New(%d) expected error but got none", capacity)
		}
	}
}

func TestFIFOAndEndOfStream(t *testing.T) {
	ctx := t.Context()
	sink, source := mustNew[int](t, 16)

	go func() {
		defer sink.Close()
		for i := range 100 {
			if err := sink.Send(ctx, i); err != nil {
				t.Errorf("Send(%d) returned error: %v", i, err)
				return
			}
		}
	}()

	var got []int
	for {
		v, err := source.Recv(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv returned error: %v", err)
		}
		got = append(got, v)
	}

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("received values mismatch (-want +got):\n%s", diff)
	}

	if _, err := source.Recv(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after end of stream, got %v", err)
	}
}

func TestSendBlocksWhileFull(t *testing.T) {
	ctx := t.Context()
	const capacity = 2
	sink, source := mustNew[int](t, capacity)

	for i := range capacity {
		if err := sink.Send(ctx, i); err != nil {
			t.Fatalf("Send(%d) returned error: %v", i, err)
		}
	}
	if sink.Len() != capacity {
		t.Fatalf("expected %d pending values, got %d", capacity, sink.Len())
	}

	sent := make(chan error, 1)
	go func() {
		sent <- sink.Send(ctx, capacity)
	}()

	select {
	case err := <-sent:
		t.Fatalf("send into a full queue returned early with %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if v, err := source.Recv(ctx); err != nil || v != 0 {
		t.Fatalf("Recv() = %d, %v; want 0, nil", v, err)
	}

	select {
	case err := <-sent:
		if err != nil {
			t.Fatalf("blocked send returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("send did not unblock after a receive")
	}

	if source.Len() > source.Cap() {
		t.Errorf("queue holds %d values, more than its capacity %d", source.Len(), source.Cap())
	}
}

func TestProducerNeverRunsAheadOfCapacity(t *testing.T) {
	ctx := t.Context()
	const capacity = 3
	const total = 50
	sink, source := mustNew[int](t, capacity)

	go func() {
		defer sink.Close()
		for i := range total {
			if err := sink.Send(ctx, i); err != nil {
				return
			}
		}
	}()

	received := 0
	for {
		if n := source.Len(); n > capacity {
			t.Fatalf("queue holds %d values with capacity %d", n, capacity)
		}
		v, err := source.Recv(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv returned error: %v", err)
		}
		if v != received {
			t.Fatalf("Recv() = %d; want %d", v, received)
		}
		received++
	}
	if received != total {
		t.Errorf("received %d values; want %d", received, total)
	}
}

func TestSourceCloseUnblocksSender(t *testing.T) {
	ctx := t.Context()
	sink, source := mustNew[int](t, 1)

	if err := sink.Send(ctx, 1); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	sent := make(chan error, 1)
	go func() {
		sent <- sink.Send(ctx, 2)
	}()

	source.Close()

	select {
	case err := <-sent:
		if !errors.Is(err, channel.ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("send stayed blocked after the source was closed")
	}

	if err := sink.Send(ctx, 3); !errors.Is(err, channel.ErrClosed) {
		t.Errorf("expected ErrClosed for send after close, got %v", err)
	}
}

func TestSendAfterSinkClose(t *testing.T) {
	sink, _ := mustNew[int](t, 1)
	sink.Close()
	sink.Close()

	if err := sink.Send(t.Context(), 1); !errors.Is(err, channel.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := sink.WriteWith(t.Context(), func(*int) error { return nil }); !errors.Is(err, channel.ErrClosed) {
		t.Errorf("expected ErrClosed from WriteWith, got %v", err)
	}
}

func TestRecvHonorsContext(t *testing.T) {
	_, source := mustNew[int](t, 1)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	if _, err := source.Recv(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestWriteWithReusesRecycledValues(t *testing.T) {
	ctx := t.Context()
	sink, source := mustNew[[]byte](t, 1)

	err := sink.WriteWith(ctx, func(buf *[]byte) error {
		if *buf != nil {
			t.Errorf("expected a zero value for the first write, got %v", *buf)
		}
		*buf = make([]byte, 4, 64)
		return nil
	})
	if err != nil {
		t.Fatalf("WriteWith returned error: %v", err)
	}

	first, err := source.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv returned error: %v", err)
	}
	source.Recycle(first)

	err = sink.WriteWith(ctx, func(buf *[]byte) error {
		if cap(*buf) != 64 {
			t.Errorf("expected the recycled buffer with capacity 64, got capacity %d", cap(*buf))
		}
		*buf = (*buf)[:8]
		return nil
	})
	if err != nil {
		t.Fatalf("WriteWith returned error: %v", err)
	}

	second, err := source.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv returned error: %v", err)
	}
	if len(second) != 8 {
		t.Errorf("expected a value of length 8, got %d", len(second))
	}
}

func TestWriteWithFillErrorSendsNothing(t *testing.T) {
	ctx := t.Context()
	sink, source := mustNew[int](t, 1)

	fillErr := errors.New("fill failed")
	err := sink.WriteWith(ctx, func(v *int) error {
		*v = 42
		return fillErr
	})
	if !errors.Is(err, fillErr) {
		t.Fatalf("expected fill error, got %v", err)
	}
	if source.Len() != 0 {
		t.Errorf("expected nothing to be sent, queue holds %d values", source.Len())
	}
}
