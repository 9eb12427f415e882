package websocket

import (
	riot "github.com/bjoelf/riot-adapter/adapter"
)

// subscriptionSet is the set of events the caller intends to stay subscribed to.
// It is the source of truth replayed after a reconnect, not a cache of server state,
// and it keeps insertion order so replays are deterministic.
type subscriptionSet struct {
	order []riot.Event
	index map[riot.Event]struct{}
}

func newSubscriptionSet() *subscriptionSet {
	return &subscriptionSet{
		index: make(map[riot.Event]struct{}),
	}
}

// Add inserts event; adding a present event keeps its original position
func (s *subscriptionSet) Add(event riot.Event) {
	if _, ok := s.index[event]; ok {
		return
	}
	s.index[event] = struct{}{}
	s.order = append(s.order, event)
}

// Remove deletes event if present
func (s *subscriptionSet) Remove(event riot.Event) {
	if _, ok := s.index[event]; !ok {
		return
	}
	delete(s.index, event)
	for i, e := range s.order {
		if e == event {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Contains reports membership
func (s *subscriptionSet) Contains(event riot.Event) bool {
	_, ok := s.index[event]
	return ok
}

// Len returns the number of intended subscriptions
func (s *subscriptionSet) Len() int {
	return len(s.order)
}

// Events returns a copy of the set in insertion order
func (s *subscriptionSet) Events() []riot.Event {
	return append([]riot.Event(nil), s.order...)
}
