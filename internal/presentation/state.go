package presentation

import (
	"context"
	"sync"

	"github.com/MarcoPoloResearchLab/notevault/internal/notes"
)

// State is one published snapshot of the note view.
type State struct {
	Notes  []notes.Note `json:"notes"`
	Query  string       `json:"query"`
	Notice string       `json:"notice,omitempty"`
}

func (s State) clone() State {
	cloned := State{Query: s.Query, Notice: s.Notice, Notes: make([]notes.Note, 0, len(s.Notes))}
	for _, note := range s.Notes {
		cloned.Notes = append(cloned.Notes, note.Clone())
	}
	return cloned
}

// broadcaster holds the latest State and replays it to every new subscriber. A slow
// subscriber only ever sees the newest snapshot.
type broadcaster struct {
	mu          sync.Mutex
	current     State
	nextID      int
	subscribers map[int]chan State
}

func newBroadcaster() *broadcaster {
	return &broadcaster{
		current:     State{Notes: []notes.Note{}},
		subscribers: make(map[int]chan State),
	}
}

func (b *broadcaster) Current() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current.clone()
}

func (b *broadcaster) publish(state State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = state
	for _, ch := range b.subscribers {
		offerLatest(ch, state.clone())
	}
}

func (b *broadcaster) subscribe(ctx context.Context) <-chan State {
	ch := make(chan State, 1)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	ch <- b.current.clone()
	b.mu.Unlock()

	out := make(chan State)
	go func() {
		defer close(out)
		defer func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case state := <-ch:
				select {
				case <-ctx.Done():
					return
				case out <- state:
				}
			}
		}
	}()
	return out
}

// offerLatest replaces any undelivered snapshot in ch with state. Callers hold the broadcaster lock.
func offerLatest(ch chan State, state State) {
	select {
	case <-ch:
	default:
	}
	ch <- state
}
