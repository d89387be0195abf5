package analysis

import "sync"

const subscriberBuffer = 16

// Hub fans progress events out to per-job subscribers. Delivery is best
// effort: a subscriber whose buffer is full misses the event, and the job
// record remains the source of truth.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan ProgressEvent
	nextID int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan ProgressEvent)}
}

// Subscribe registers a listener for one job. The returned cancel func must
// be called when the listener goes away; the channel is closed either by
// cancel or when the job reaches a terminal state.
func (h *Hub) Subscribe(jobID string) (<-chan ProgressEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan ProgressEvent, subscriberBuffer)
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[int]chan ProgressEvent)
	}
	id := h.nextID
	h.nextID++
	h.subs[jobID][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[jobID][id]; ok {
			delete(h.subs[jobID], id)
			if len(h.subs[jobID]) == 0 {
				delete(h.subs, jobID)
			}
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every current subscriber without blocking.
func (h *Hub) Publish(ev ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[ev.JobID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// CloseJob closes and removes every subscriber of a finished job.
func (h *Hub) CloseJob(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[jobID] {
		close(ch)
	}
	delete(h.subs, jobID)
}
