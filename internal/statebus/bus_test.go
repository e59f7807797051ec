package statebus

import (
	"sync"
	"testing"
	"time"
)

func TestSubscribeReplaysCurrentValue(t *testing.T) {
	b := New("initial")
	b.Publish("second")

	ch, cancel := b.Subscribe()
	defer cancel()

	select {
	case got := <-ch:
		if got != "second" {
			t.Fatalf("expected replay of latest value, got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("expected replayed value")
	}
}

func TestSlowSubscriberSeesOnlyNewest(t *testing.T) {
	b := New(0)
	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 1; i <= 10; i++ {
		b.Publish(i)
	}

	got := <-ch
	if got != 10 {
		t.Fatalf("expected coalesced value 10, got %d", got)
	}
	select {
	case extra := <-ch:
		t.Fatalf("expected empty channel, got %d", extra)
	default:
	}
}

func TestWatchSeesEveryPublishInOrder(t *testing.T) {
	b := New(0)

	var (
		mu  sync.Mutex
		got []int
	)
	stop := b.Watch(func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})

	for i := 1; i <= 5; i++ {
		b.Publish(i)
	}
	stop()
	b.Publish(6)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 5 {
		t.Fatalf("expected 5 values, got %v", got)
	}
	for i, v := range got {
		if v != i+1 {
			t.Fatalf("expected ordered values, got %v", got)
		}
	}
}

func TestWatcherCanReadValue(t *testing.T) {
	b := New("a")
	seen := ""
	b.Watch(func(string) { seen = b.Value() })

	b.Publish("b")
	if seen != "b" {
		t.Fatalf("expected watcher to observe published value, got %q", seen)
	}
}

func TestCancelClosesChannel(t *testing.T) {
	b := New(1)
	ch, cancel := b.Subscribe()
	<-ch

	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}
	b.Publish(2)
}

func TestCloseClosesSubscribersAndIgnoresPublish(t *testing.T) {
	b := New(1)
	ch, cancel := b.Subscribe()
	defer cancel()
	<-ch

	b.Close()
	b.Close()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after Close")
	}

	b.Publish(2)
	if got := b.Value(); got != 1 {
		t.Fatalf("expected value unchanged after Close, got %d", got)
	}

	late, lateCancel := b.Subscribe()
	defer lateCancel()
	if v, ok := <-late; !ok || v != 1 {
		t.Fatalf("expected late subscriber to receive final value, got %d ok=%v", v, ok)
	}
	if _, ok := <-late; ok {
		t.Fatal("expected late subscriber channel closed")
	}
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	b := New(0)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ch, cancel := b.Subscribe()
				<-ch
				cancel()
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Publish(base + j)
			}
		}(i * 1000)
	}
	wg.Wait()
}
