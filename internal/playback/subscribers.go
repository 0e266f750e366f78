package playback

import (
	"runtime/debug"
	"sync"

	"github.com/samber/lo"
)

// Subscription identifies a registered callback
type Subscription struct {
	id uint64
}

type subscriber struct {
	id uint64
	cb Callback
}

type subscriberSet struct {
	mu      sync.Mutex
	entries []subscriber
	nextID  uint64
}

func (s *subscriberSet) add(cb Callback) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.entries = append(s.entries, subscriber{id: s.nextID, cb: cb})
	return Subscription{id: s.nextID}
}

func (s *subscriberSet) remove(sub Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.entries)
	s.entries = lo.Filter(s.entries, func(item subscriber, _ int) bool {
		return item.id != sub.id
	})
	return len(s.entries) != before
}

// snapshot returns the subscribers in registration order. The returned
// slice is never modified afterwards.
func (s *subscriberSet) snapshot() []subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]subscriber, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *subscriberSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *subscriberSet) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// Subscribe registers cb for future state changes. Past events are not
// replayed. Subscribing to a destroyed engine does nothing.
func (e *Engine) Subscribe(cb Callback) Subscription {
	if cb == nil || e.destroyed.Load() {
		return Subscription{}
	}
	return e.subs.add(cb)
}

// Unsubscribe removes a callback. It is safe to call during delivery; the
// event being delivered still reaches the rest of the original list.
func (e *Engine) Unsubscribe(sub Subscription) {
	if sub.id == 0 {
		return
	}
	e.subs.remove(sub)
}

func (e *Engine) notify(ev StateChangeEvent) {
	for _, s := range e.subs.snapshot() {
		if e.destroyed.Load() {
			return
		}
		e.deliver(s, ev)
	}
}

func (e *Engine) deliver(s subscriber, ev StateChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Printf("Error in state change callback: %v\n%s", r, debug.Stack())
		}
	}()
	s.cb(ev)
}
