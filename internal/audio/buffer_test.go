package audio

import (
	"sync"
	"testing"
	"time"
)

func testFrame(tag byte) Frame {
	return Frame{
		Samples:    []byte{tag, 0},
		SampleRate: 8000,
		Channels:   1,
		Arrived:    time.Now(),
	}
}

func TestFrameBufferFIFO(t *testing.T) {
	buf := NewFrameBuffer(4)
	for i := byte(1); i <= 3; i++ {
		if !buf.Push(testFrame(i)) {
			t.Fatalf("push %d should be accepted", i)
		}
	}

	for i := byte(1); i <= 3; i++ {
		f, ok := buf.Pop(10 * time.Millisecond)
		if !ok {
			t.Fatalf("expected frame %d", i)
		}
		if f.Samples[0] != i {
			t.Errorf("expected frame %d, got %d", i, f.Samples[0])
		}
	}
}

func TestFrameBufferPopTimeout(t *testing.T) {
	buf := NewFrameBuffer(2)

	start := time.Now()
	if _, ok := buf.Pop(20 * time.Millisecond); ok {
		t.Fatal("pop on empty buffer should time out")
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("pop returned too early: %v", elapsed)
	}
}

func TestFrameBufferPopWakesOnPush(t *testing.T) {
	buf := NewFrameBuffer(2)

	go func() {
		time.Sleep(10 * time.Millisecond)
		buf.Push(testFrame(7))
	}()

	f, ok := buf.Pop(time.Second)
	if !ok {
		t.Fatal("expected frame before timeout")
	}
	if f.Samples[0] != 7 {
		t.Errorf("unexpected frame %d", f.Samples[0])
	}
}

func TestFrameBufferOverflowDropsOldest(t *testing.T) {
	buf := NewFrameBuffer(3)

	var lastDropped uint64
	for i := byte(1); i <= 10; i++ {
		accepted := buf.Push(testFrame(i))
		if buf.Len() > buf.Cap() {
			t.Fatalf("buffer size %d exceeds capacity %d", buf.Len(), buf.Cap())
		}
		if i > 3 {
			if accepted {
				t.Errorf("push %d should report an overflow", i)
			}
			if buf.Dropped() <= lastDropped {
				t.Errorf("dropped counter did not increase on push %d", i)
			}
		}
		lastDropped = buf.Dropped()
	}

	if buf.Dropped() != 7 {
		t.Errorf("expected 7 dropped frames, got %d", buf.Dropped())
	}

	for _, want := range []byte{8, 9, 10} {
		f, ok := buf.Pop(10 * time.Millisecond)
		if !ok || f.Samples[0] != want {
			t.Errorf("expected frame %d, got %v (ok=%v)", want, f.Samples, ok)
		}
	}
}

func TestFrameBufferPushNeverBlocks(t *testing.T) {
	buf := NewFrameBuffer(8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			buf.Push(testFrame(byte(i)))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("push blocked without a consumer")
	}
	if buf.Len() != buf.Cap() {
		t.Errorf("expected full buffer, got %d", buf.Len())
	}
}

func TestFrameBufferClose(t *testing.T) {
	buf := NewFrameBuffer(4)
	buf.Push(testFrame(1))
	buf.Close()

	if buf.Push(testFrame(2)) {
		t.Error("push after close should be refused")
	}
	if buf.Drained() {
		t.Error("buffer with a queued frame is not drained")
	}

	if f, ok := buf.Pop(time.Second); !ok || f.Samples[0] != 1 {
		t.Fatalf("queued frame should survive close, got %v ok=%v", f.Samples, ok)
	}

	start := time.Now()
	if _, ok := buf.Pop(time.Second); ok {
		t.Fatal("pop on drained buffer should fail")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("pop on drained buffer should return immediately")
	}
}

func TestFrameBufferCloseWakesWaiters(t *testing.T) {
	buf := NewFrameBuffer(4)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf.Pop(5 * time.Second)
		}()
	}

	time.Sleep(10 * time.Millisecond)
	buf.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close did not wake blocked pops")
	}
}
