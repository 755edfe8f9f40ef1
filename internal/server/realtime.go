package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/notevault/internal/presentation"
)

const (
	RealtimeEventNotes     = "notes"
	realtimeEventHeartbeat = "heartbeat"
	realtimeSourceBackend  = "notevault"
)

// RealtimeMessage carries one published view state to stream clients.
type RealtimeMessage struct {
	EventType string
	State     presentation.State
	Timestamp time.Time
}

// StateDispatcher fans controller states out to every connected stream client. A client
// that falls behind by more than its buffer misses intermediate states, never the connection.
type StateDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewStateDispatcher() *StateDispatcher {
	return &StateDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Run forwards every state from states until the channel closes or ctx is done.
func (d *StateDispatcher) Run(ctx context.Context, states <-chan presentation.State) {
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			d.Publish(RealtimeMessage{
				EventType: RealtimeEventNotes,
				State:     state,
				Timestamp: time.Now().UTC(),
			})
		}
	}
}

func (d *StateDispatcher) Subscribe(ctx context.Context) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unregisterSubscriber(subscriber.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *StateDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	d.mu.RLock()
	if len(d.subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *StateDispatcher) subscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (d *StateDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *StateDispatcher) registerSubscriber(subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[subscriber.id] = subscriber
}

func (d *StateDispatcher) unregisterSubscriber(subscriberID int64) {
	d.mu.Lock()
	delete(d.subscribers, subscriberID)
	d.mu.Unlock()
}
