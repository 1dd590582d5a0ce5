package app

import (
	"sync"

	"draw-class-service/internal/domain"
)

// session fans classroom change events out to in-process subscribers.
// The store stays authoritative; a session holds no state of its own
// beyond the subscriber set.
type session struct {
	id          string
	mu          sync.Mutex
	subscribers map[chan domain.Event]struct{}
}

func newSession(id string) *session {
	return &session{
		id:          id,
		subscribers: make(map[chan domain.Event]struct{}),
	}
}

func (s *session) subscribe() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 16)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// broadcast delivers the event to every subscriber. A full buffer sheds
// the oldest pending event so slow clients cannot block the round; they
// recover missed state from the snapshot on resubscribe.
func (s *session) broadcast(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
