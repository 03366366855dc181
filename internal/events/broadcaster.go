package events

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"crucible/internal/logging"
	"crucible/internal/metrics"
	"crucible/internal/tasks"
)

// SnapshotFunc resolves the current state of a task, typically backed by the
// registry.
type SnapshotFunc func(taskID string) (tasks.Task, error)

// Broadcaster fans task events out to per-task subscribers. Publishing never
// blocks on a slow consumer; a subscriber whose buffer fills receives a final
// overflow notice and is disconnected.
type Broadcaster struct {
	mu         sync.Mutex
	topics     map[string]*topic
	snapshot   SnapshotFunc
	bufferSize int
	logger     *slog.Logger
	now        func() time.Time
	closed     bool
}

type topic struct {
	mu      sync.Mutex
	subs    map[int]*subscriber
	nextSub int
	nextSeq uint64
	done    bool
}

type subscriber struct {
	ch   chan Event
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

const defaultBufferSize = 64

// NewBroadcaster wires a broadcaster to a snapshot source. bufferSize is the
// per-subscriber channel capacity; values below 2 fall back to the default
// so the overflow notice always has a slot.
func NewBroadcaster(snapshot SnapshotFunc, bufferSize int, logger *slog.Logger) *Broadcaster {
	if bufferSize < 2 {
		bufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Broadcaster{
		topics:     make(map[string]*topic),
		snapshot:   snapshot,
		bufferSize: bufferSize,
		logger:     logger.With(logging.String(logging.FieldComponent, "events")),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe returns a consistent snapshot of the task plus a stream of every
// event published after that snapshot. The cancel function releases the
// subscription and is safe to call more than once. Subscribing to a task in
// a terminal state yields the snapshot and an already closed stream.
func (b *Broadcaster) Subscribe(taskID string) (tasks.Task, <-chan Event, func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return tasks.Task{}, nil, nil, fmt.Errorf("broadcaster is shut down")
	}
	tp, ok := b.topics[taskID]
	if !ok {
		tp = &topic{subs: make(map[int]*subscriber)}
		b.topics[taskID] = tp
	}
	b.mu.Unlock()

	// Snapshot under the topic lock so no event can slip between the
	// snapshot and the registration.
	tp.mu.Lock()
	defer tp.mu.Unlock()

	snapshot, err := b.snapshot(taskID)
	if err != nil {
		return tasks.Task{}, nil, nil, err
	}

	sub := &subscriber{ch: make(chan Event, b.bufferSize)}
	if tp.done || snapshot.Terminal() {
		sub.close()
		return snapshot, sub.ch, func() {}, nil
	}

	id := tp.nextSub
	tp.nextSub++
	tp.subs[id] = sub
	metrics.Subscribers.Inc()

	cancel := func() {
		tp.mu.Lock()
		if _, ok := tp.subs[id]; ok {
			delete(tp.subs, id)
			metrics.Subscribers.Dec()
		}
		tp.mu.Unlock()
		sub.close()
	}
	return snapshot, sub.ch, cancel, nil
}

// Publish delivers an event to all subscribers of its task. The broadcaster
// assigns the sequence number and timestamp. After a terminal event every
// subscriber stream is closed and the topic stops accepting events.
func (b *Broadcaster) Publish(evt Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	tp, ok := b.topics[evt.TaskID]
	if !ok {
		tp = &topic{subs: make(map[int]*subscriber)}
		b.topics[evt.TaskID] = tp
	}
	b.mu.Unlock()

	tp.mu.Lock()
	defer tp.mu.Unlock()
	if tp.done {
		return
	}

	tp.nextSeq++
	evt.Seq = tp.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = b.now()
	}

	for id, sub := range tp.subs {
		if len(sub.ch) >= cap(sub.ch)-1 {
			// Keep the last slot for the notice so the consumer can
			// tell a disconnect from normal stream end.
			notice := Event{
				TaskID:     evt.TaskID,
				Seq:        evt.Seq,
				Type:       TypeNotice,
				StageIndex: -1,
				Error:      NoticeOverflow,
				Timestamp:  evt.Timestamp,
			}
			sub.ch <- notice
			sub.close()
			delete(tp.subs, id)
			metrics.Subscribers.Dec()
			metrics.SubscriberOverflows.Inc()
			b.logger.Warn("subscriber disconnected on overflow",
				logging.String(logging.FieldTaskID, evt.TaskID))
			continue
		}
		sub.ch <- evt
	}

	if evt.Terminal {
		tp.done = true
		for id, sub := range tp.subs {
			sub.close()
			delete(tp.subs, id)
			metrics.Subscribers.Dec()
		}
	}
}

// SubscriberCount reports the number of live subscribers for a task.
func (b *Broadcaster) SubscriberCount(taskID string) int {
	b.mu.Lock()
	tp, ok := b.topics[taskID]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return len(tp.subs)
}

// Close disconnects every subscriber and rejects further use.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	topics := b.topics
	b.topics = make(map[string]*topic)
	b.mu.Unlock()

	for _, tp := range topics {
		tp.mu.Lock()
		tp.done = true
		for id, sub := range tp.subs {
			sub.close()
			delete(tp.subs, id)
			metrics.Subscribers.Dec()
		}
		tp.mu.Unlock()
	}
}
