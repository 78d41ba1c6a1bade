package usecase

import (
	"sync"
	"time"

	"fixifox/internal/domain/entity"
)

// JobEvent is a status change of one job.
type JobEvent struct {
	JobID  string           `json:"job_id"`
	Status entity.JobStatus `json:"status"`
	Error  string           `json:"error,omitempty"`
	At     time.Time        `json:"at"`
}

const eventBuffer = 16

// JobEvents fans job status changes out to watchers. Slow watchers drop
// events instead of blocking publishers.
type JobEvents struct {
	mu   sync.Mutex
	subs map[string]map[chan JobEvent]struct{}
}

func NewJobEvents() *JobEvents {
	return &JobEvents{subs: make(map[string]map[chan JobEvent]struct{})}
}

// Subscribe returns a channel of events for jobID and a cancel func that
// closes it.
func (b *JobEvents) Subscribe(jobID string) (<-chan JobEvent, func()) {
	ch := make(chan JobEvent, eventBuffer)

	b.mu.Lock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[chan JobEvent]struct{})
	}
	b.subs[jobID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[jobID]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(b.subs, jobID)
				}
			}
		})
	}
}

func (b *JobEvents) Publish(ev JobEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[ev.JobID] {
		select {
		case ch <- ev:
		default:
		}
	}
	if ev.Status.Terminal() {
		for ch := range b.subs[ev.JobID] {
			close(ch)
		}
		delete(b.subs, ev.JobID)
	}
}

// Watchers returns the number of open subscriptions for jobID.
func (b *JobEvents) Watchers(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[jobID])
}
