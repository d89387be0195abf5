package analysis

import "testing"

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("job-1")
	defer cancel()

	hub.Publish(ProgressEvent{JobID: "job-1", Step: StepDiscovery, ProgressPercent: 40})
	hub.Publish(ProgressEvent{JobID: "other", Step: StepInit, ProgressPercent: 2})

	select {
	case ev := <-ch:
		if ev.Step != StepDiscovery || ev.ProgressPercent != 40 {
			t.Fatalf("event = %+v", ev)
		}
	default:
		t.Fatalf("expected a delivered event")
	}
	select {
	case ev := <-ch:
		t.Fatalf("received event for another job: %+v", ev)
	default:
	}
}

func TestHubDropsWhenSubscriberBufferFull(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("job-1")
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Publish(ProgressEvent{JobID: "job-1", ProgressPercent: i})
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}
	if received != subscriberBuffer {
		t.Fatalf("received %d events, want buffer size %d", received, subscriberBuffer)
	}
}

func TestHubCloseJobClosesSubscribers(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("job-1")
	defer cancel()

	hub.CloseJob("job-1")
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}

	// cancel after close must not panic
	cancel()
}

func TestHubCancelIsIdempotent(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe("job-1")
	cancel()
	cancel()
}
