// Package bus provides the in-process broadcast channel that carries station
// state events from the pipeline and supervisor to every UI subscriber.
//
// Each subscriber owns a bounded mailbox. When a mailbox is full the oldest
// event is dropped; a reconnecting browser recovers by fetching the latest
// status snapshot over HTTP.
package bus

import (
	"sync"
	"time"
)

// State tags an [Event] with its position in the station protocol. Clients
// must tolerate tags they do not recognise.
type State string

const (
	StateReady           State = "ready"
	StateProcessing      State = "processing"
	StateVoiceRecording  State = "voice_recording"
	StateVoiceProcessing State = "voice_processing"
	StateVoiceUser       State = "voice_user"
	StateVoiceResponse   State = "voice_response"
	StateVoiceError      State = "voice_error"
	StateComplete        State = "complete"
	StateError           State = "error"
	StateControl         State = "control"
)

// Event is one timestamped station state change.
type Event struct {
	State     State          `json:"state"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp float64        `json:"timestamp"`
}

// DefaultMailboxSize bounds each subscriber's queue.
const DefaultMailboxSize = 64

// Bus is a single-producer-friendly, multi-subscriber broadcast. All methods
// are safe for concurrent use.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int

	latest    Event
	hasLatest bool

	now func() time.Time
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]chan Event),
		now:  time.Now,
	}
}

// Publish stamps ev with the current time and delivers it to every subscriber
// mailbox. On a full mailbox the oldest queued event is discarded first so the
// newest state always gets through.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ev.Timestamp = float64(b.now().UnixMilli()) / 1000.0
	b.latest = ev
	b.hasLatest = true

	for _, ch := range b.subs {
		for {
			select {
			case ch <- ev:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Subscription is one subscriber's view of the bus.
type Subscription struct {
	C      <-chan Event
	id     int
	bus    *Bus
	cancel sync.Once
}

// Subscribe registers a new subscriber with a mailbox of
// [DefaultMailboxSize] events. The caller must Cancel the subscription when
// done or the mailbox leaks.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, DefaultMailboxSize)
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	return &Subscription{C: ch, id: id, bus: b}
}

// Cancel removes the subscription from the bus. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.cancel.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
	})
}

// Latest returns the most recently published event, if any. Late subscribers
// use this to render the current status before the next event arrives.
func (b *Bus) Latest() (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, b.hasLatest
}

// SubscriberCount reports how many mailboxes are currently registered.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
