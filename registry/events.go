package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ruteri/threshold-secret-registry/interfaces"
	"github.com/ruteri/threshold-secret-registry/metrics"
)

// EventLog is the append-only, sequence-numbered record of registry
// transitions. Subscribers are notified best-effort: a full subscriber
// channel drops the event for that subscriber only.
type EventLog struct {
	mu     sync.RWMutex
	events []interfaces.Event
	subs   map[int]chan interfaces.Event
	nextID int
	log    *slog.Logger
}

func NewEventLog(logger *slog.Logger) *EventLog {
	return &EventLog{
		subs: make(map[int]chan interfaces.Event),
		log:  logger,
	}
}

// Append assigns the next sequence number and fans the event out.
func (l *EventLog) Append(ev interfaces.Event) interfaces.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev.Seq = uint64(len(l.events))
	l.events = append(l.events, ev)

	for id, ch := range l.subs {
		select {
		case ch <- ev:
		default:
			metrics.EventsDropped.Inc()
			l.log.Warn("Dropping event for slow subscriber",
				slog.Int("subscriber", id),
				slog.Uint64("seq", ev.Seq),
				slog.String("type", string(ev.Type)))
		}
	}
	return ev
}

// Events returns all events with Seq >= from.
func (l *EventLog) Events(ctx context.Context, from uint64) ([]interfaces.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if from >= uint64(len(l.events)) {
		return []interfaces.Event{}, nil
	}
	out := make([]interfaces.Event, len(l.events)-int(from))
	copy(out, l.events[from:])
	return out, nil
}

// Subscribe returns a channel receiving future events and a function
// releasing it.
func (l *EventLog) Subscribe(buffer int) (<-chan interfaces.Event, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	ch := make(chan interfaces.Event, buffer)
	l.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(ch)
		})
	}
}
