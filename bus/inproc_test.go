package bus

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360/tradeline/errors"
)

func TestInProcPublishSubscribe(t *testing.T) {
	b := NewInProc()
	defer b.Close()

	var (
		mu       sync.Mutex
		received [][]byte
	)

	_, err := b.Subscribe("test.subject", func(_ string, data []byte) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, data)
	})
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	if err := b.Publish("test.subject", []byte("hello")); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("Expected 1 delivery, got %d", len(received))
	}
	if string(received[0]) != "hello" {
		t.Errorf("Expected 'hello', got %q", received[0])
	}
}

func TestInProcOrderedDelivery(t *testing.T) {
	b := NewInProc(WithBufferSize(1024))
	defer b.Close()

	const n = 500

	var (
		mu       sync.Mutex
		received []int
	)

	_, err := b.Subscribe("ordered", func(_ string, data []byte) {
		var i int
		if _, err := fmt.Sscanf(string(data), "%d", &i); err != nil {
			t.Errorf("Bad payload %q: %v", data, err)
			return
		}
		mu.Lock()
		received = append(received, i)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	for i := 0; i < n; i++ {
		if err := b.Publish("ordered", []byte(fmt.Sprintf("%d", i))); err != nil {
			t.Fatalf("Failed to publish %d: %v", i, err)
		}
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != n {
		t.Fatalf("Expected %d deliveries, got %d", n, len(received))
	}
	for i, got := range received {
		if got != i {
			t.Fatalf("Delivery %d out of order: got %d", i, got)
		}
	}
}

func TestInProcFanOut(t *testing.T) {
	b := NewInProc()
	defer b.Close()

	var first, second atomic.Int32

	if _, err := b.Subscribe("fan", func(string, []byte) { first.Add(1) }); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	if _, err := b.Subscribe("fan", func(string, []byte) { second.Add(1) }); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	for i := 0; i < 10; i++ {
		if err := b.Publish("fan", []byte("x")); err != nil {
			t.Fatalf("Failed to publish: %v", err)
		}
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	if first.Load() != 10 {
		t.Errorf("First subscriber got %d deliveries, expected 10", first.Load())
	}
	if second.Load() != 10 {
		t.Errorf("Second subscriber got %d deliveries, expected 10", second.Load())
	}
}

func TestInProcSubjectIsolation(t *testing.T) {
	b := NewInProc()
	defer b.Close()

	var a, other atomic.Int32

	if _, err := b.Subscribe("subject.a", func(string, []byte) { a.Add(1) }); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	if _, err := b.Subscribe("subject.b", func(string, []byte) { other.Add(1) }); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	if err := b.Publish("subject.a", []byte("x")); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	if a.Load() != 1 {
		t.Errorf("subject.a got %d deliveries, expected 1", a.Load())
	}
	if other.Load() != 0 {
		t.Errorf("subject.b got %d deliveries, expected 0", other.Load())
	}
}

func TestInProcDropOnOverflow(t *testing.T) {
	var drops atomic.Int32
	var startedOnce sync.Once
	started := make(chan struct{})
	release := make(chan struct{})

	b := NewInProc(
		WithBufferSize(1),
		WithDropHandler(func(subject string) {
			if subject != "slow" {
				t.Errorf("Drop reported for wrong subject %q", subject)
			}
			drops.Add(1)
		}),
	)
	defer b.Close()

	_, err := b.Subscribe("slow", func(string, []byte) {
		startedOnce.Do(func() { close(started) })
		<-release
	})
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	// Occupy the pump with the first delivery, then fill the buffer with
	// the second. Everything after that must drop.
	if err := b.Publish("slow", []byte("x")); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("Handler never started")
	}

	if err := b.Publish("slow", []byte("x")); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := b.Publish("slow", []byte("x")); err != nil {
			t.Fatalf("Failed to publish: %v", err)
		}
	}

	// Drops fire synchronously inside Publish.
	if got := drops.Load(); got != 4 {
		t.Errorf("Expected exactly 4 drops, got %d", got)
	}

	close(release)
	if err := b.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}
}

func TestInProcUnsubscribe(t *testing.T) {
	b := NewInProc()
	defer b.Close()

	var count atomic.Int32
	sub, err := b.Subscribe("unsub", func(string, []byte) { count.Add(1) })
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	if err := b.Publish("unsub", []byte("x")); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Failed to unsubscribe: %v", err)
	}

	if err := b.Publish("unsub", []byte("x")); err != nil {
		t.Fatalf("Failed to publish after unsubscribe: %v", err)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	if count.Load() != 1 {
		t.Errorf("Expected 1 delivery, got %d", count.Load())
	}

	// Unsubscribing twice is harmless.
	if err := sub.Unsubscribe(); err != nil {
		t.Errorf("Second unsubscribe failed: %v", err)
	}
}

func TestInProcClose(t *testing.T) {
	b := NewInProc()

	if _, err := b.Subscribe("x", func(string, []byte) {}); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	// All operations fail closed after Close.
	if err := b.Publish("x", []byte("y")); !errors.Is(err, errors.ErrTransportClosed) {
		t.Errorf("Expected ErrTransportClosed on publish, got %v", err)
	}
	if _, err := b.Subscribe("x", func(string, []byte) {}); !errors.Is(err, errors.ErrTransportClosed) {
		t.Errorf("Expected ErrTransportClosed on subscribe, got %v", err)
	}
	if err := b.Flush(); !errors.Is(err, errors.ErrTransportClosed) {
		t.Errorf("Expected ErrTransportClosed on flush, got %v", err)
	}

	// Closing twice is harmless.
	if err := b.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}

func TestInProcSubscribeValidation(t *testing.T) {
	b := NewInProc()
	defer b.Close()

	if _, err := b.Subscribe("", func(string, []byte) {}); err == nil {
		t.Error("Expected error for empty subject")
	}
	if _, err := b.Subscribe("x", nil); err == nil {
		t.Error("Expected error for nil handler")
	}
}

func TestInProcConcurrentPublish(t *testing.T) {
	b := NewInProc(WithBufferSize(4096))
	defer b.Close()

	var count atomic.Int32
	if _, err := b.Subscribe("concurrent", func(string, []byte) { count.Add(1) }); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	const (
		publishers = 8
		perPub     = 100
	)

	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perPub; j++ {
				if err := b.Publish("concurrent", []byte("x")); err != nil {
					t.Errorf("Publish failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if err := b.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	if got := count.Load(); got != publishers*perPub {
		t.Errorf("Expected %d deliveries, got %d", publishers*perPub, got)
	}
}
