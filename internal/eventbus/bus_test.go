package eventbus

import (
	"sync"
	"testing"
	"time"
)

type event struct {
	Seq int
}

// TestBasicPublishSubscribe verifies basic functionality.
func TestBasicPublishSubscribe(t *testing.T) {
	bus := New[event]()
	defer bus.Close()

	ch := make(chan event, 10)
	if err := bus.Subscribe("test", ch); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	bus.Publish(event{Seq: 1})

	select {
	case got := <-ch:
		if got.Seq != 1 {
			t.Errorf("Expected seq 1, got %d", got.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for event")
	}
}

// TestNonBlockingPublish verifies a full subscriber drops instead of blocking.
func TestNonBlockingPublish(t *testing.T) {
	bus := New[event]()
	defer bus.Close()

	ch := make(chan event, 1)
	bus.Subscribe("slow", ch)

	done := make(chan struct{})
	go func() {
		bus.Publish(event{Seq: 1})
		bus.Publish(event{Seq: 2}) // buffer full
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Publish blocked (should be non-blocking)")
	}

	if got := <-ch; got.Seq != 1 {
		t.Errorf("Expected seq 1, got %d", got.Seq)
	}

	st := bus.Stats()
	if st.TotalPublished != 2 {
		t.Errorf("TotalPublished = %d, want 2", st.TotalPublished)
	}
	if sub := st.Subscribers["slow"]; sub.Sent != 1 || sub.Dropped != 1 {
		t.Errorf("slow stats = %+v, want 1 sent 1 dropped", sub)
	}
}

// TestSlowSubscriberIsolation verifies one slow subscriber does not cost
// a fast one any events.
func TestSlowSubscriberIsolation(t *testing.T) {
	bus := New[event]()
	defer bus.Close()

	slow := make(chan event)
	fast := make(chan event, 100)
	bus.Subscribe("slow", slow)
	bus.Subscribe("fast", fast)

	for i := 0; i < 50; i++ {
		bus.Publish(event{Seq: i})
	}

	st := bus.Stats()
	if st.Subscribers["fast"].Sent != 50 || st.Subscribers["fast"].Dropped != 0 {
		t.Errorf("fast stats = %+v, want all 50 sent", st.Subscribers["fast"])
	}
	if st.Subscribers["slow"].Dropped != 50 {
		t.Errorf("slow stats = %+v, want all 50 dropped", st.Subscribers["slow"])
	}
}

func TestSubscribeErrors(t *testing.T) {
	bus := New[event]()

	if err := bus.Subscribe("nil", nil); err != ErrNilChannel {
		t.Errorf("Subscribe(nil) = %v, want ErrNilChannel", err)
	}
	ch := make(chan event, 1)
	bus.Subscribe("dup", ch)
	if err := bus.Subscribe("dup", ch); err != ErrSubscriberExists {
		t.Errorf("duplicate Subscribe = %v, want ErrSubscriberExists", err)
	}
	if err := bus.Unsubscribe("missing"); err != ErrSubscriberNotFound {
		t.Errorf("Unsubscribe(missing) = %v, want ErrSubscriberNotFound", err)
	}
	if err := bus.Unsubscribe("dup"); err != nil {
		t.Errorf("Unsubscribe(dup) = %v", err)
	}

	bus.Close()
	bus.Close()
	if err := bus.Subscribe("late", ch); err != ErrBusClosed {
		t.Errorf("Subscribe after Close = %v, want ErrBusClosed", err)
	}
}

// TestCloseStopsDelivery verifies channels can be closed safely after Close
// while publishers keep running.
func TestCloseStopsDelivery(t *testing.T) {
	bus := New[event]()
	ch := make(chan event, 1000)
	bus.Subscribe("sub", ch)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					bus.Emit(event{})
				}
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	bus.Close()
	close(ch) // panics if Publish could still send
	close(stop)
	wg.Wait()
}
