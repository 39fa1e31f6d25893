package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Push / Pop ordering
// =============================================================================

func TestCommandQueue_WhenPushedInOrder_ShouldPopInSameOrder(t *testing.T) {
	q := NewCommandQueue()
	for _, c := range []string{"n\n", "s\n", "p foo\n"} {
		q.Push(c)
	}
	for _, want := range []string{"n\n", "s\n", "p foo\n"} {
		got, ok := q.Pop(time.Second)
		if !ok {
			t.Fatalf("Pop: expected %q, queue empty", want)
		}
		if got != want {
			t.Errorf("Pop: want %q, got %q", want, got)
		}
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
}

func TestCommandQueue_WhenEmpty_ShouldTimeOut(t *testing.T) {
	q := NewCommandQueue()
	start := time.Now()
	_, ok := q.Pop(30 * time.Millisecond)
	if ok {
		t.Fatal("expected timeout on empty queue")
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Error("Pop returned before timeout")
	}
}

func TestCommandQueue_WhenPushedWhileWaiting_ShouldWakeConsumer(t *testing.T) {
	q := NewCommandQueue()
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push("c\n")
	}()
	got, ok := q.Pop(2 * time.Second)
	if !ok || got != "c\n" {
		t.Errorf("Pop: want c, got %q ok=%v", got, ok)
	}
}

func TestCommandQueue_TryPop_WhenEmpty_ShouldReturnFalse(t *testing.T) {
	q := NewCommandQueue()
	if _, ok := q.TryPop(); ok {
		t.Error("TryPop on empty queue should report false")
	}
}

// =============================================================================
// Close
// =============================================================================

func TestCommandQueue_WhenClosed_ShouldRejectPush(t *testing.T) {
	q := NewCommandQueue()
	q.Close()
	if q.Push("n\n") {
		t.Error("Push after Close should report false")
	}
	_, err := q.PopContext(context.Background())
	if !errors.Is(err, ErrClosed) {
		t.Errorf("PopContext after Close: want ErrClosed, got %v", err)
	}
}

func TestCommandQueue_WhenClosedWithItems_ShouldDrainFirst(t *testing.T) {
	q := NewCommandQueue()
	q.Push("a")
	q.Close()
	got, err := q.PopContext(context.Background())
	if err != nil || got != "a" {
		t.Fatalf("want a, got %q err=%v", got, err)
	}
	if _, err := q.PopContext(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("want ErrClosed, got %v", err)
	}
	q.Close()
}

func TestCommandQueue_PopContext_WhenCancelled_ShouldReturnCtxErr(t *testing.T) {
	q := NewCommandQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.PopContext(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}
}

// =============================================================================
// Concurrency
// =============================================================================

func TestCommandQueue_WhenManyProducers_ShouldDeliverEveryCommandOnce(t *testing.T) {
	q := NewCommandQueue()
	const producers, each = 8, 100
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				q.Push(fmt.Sprintf("%d-%d", p, i))
			}
		}(p)
	}
	seen := make(map[string]bool)
	lastByProducer := make(map[int]int)
	for len(seen) < producers*each {
		cmd, ok := q.Pop(2 * time.Second)
		if !ok {
			t.Fatalf("timed out after %d commands", len(seen))
		}
		if seen[cmd] {
			t.Fatalf("command %q delivered twice", cmd)
		}
		seen[cmd] = true
		var p, i int
		fmt.Sscanf(cmd, "%d-%d", &p, &i)
		if last, ok := lastByProducer[p]; ok && i <= last {
			t.Fatalf("producer %d out of order: %d after %d", p, i, last)
		}
		lastByProducer[p] = i
	}
	wg.Wait()
}
