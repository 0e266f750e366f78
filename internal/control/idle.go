package control

import (
	"log"
)

// idleConnection represents a connection waiting in idle mode
type idleConnection struct {
	notify  chan string   // Receives the new state name
	cancel  chan struct{} // Closed by noidle or shutdown
	stopped bool          // Guarded by the server's idleMu
}

func newIdleConnection() *idleConnection {
	return &idleConnection{
		notify: make(chan string, 1),
		cancel: make(chan struct{}),
	}
}

// stop ends the wait. Caller must hold the server's idleMu.
func (i *idleConnection) stop() {
	if i.stopped {
		return
	}
	i.stopped = true
	close(i.cancel)
}

// registerIdle registers an idle connection to receive notifications
func (s *Server) registerIdle(idle *idleConnection) {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	s.idleConns[idle] = true
	log.Printf("Registered idle connection (total: %d)", len(s.idleConns))
}

// unregisterIdle removes an idle connection from notifications
func (s *Server) unregisterIdle(idle *idleConnection) {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	delete(s.idleConns, idle)
	log.Printf("Unregistered idle connection (total: %d)", len(s.idleConns))
}

// cancelIdle releases every idle connection
func (s *Server) cancelIdle() {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	for idle := range s.idleConns {
		idle.stop()
	}
}

// endIdle cancels one idle wait
func (s *Server) endIdle(idle *idleConnection) {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	idle.stop()
}

// notifyIdle hands state to every idle connection
func (s *Server) notifyIdle(state string) {
	s.idleMu.RLock()
	defer s.idleMu.RUnlock()

	if len(s.idleConns) > 0 {
		log.Printf("Notifying %d idle connections of %s", len(s.idleConns), state)
	}

	for idle := range s.idleConns {
		// Send notification (non-blocking); a pending one already wakes it
		select {
		case idle.notify <- state:
		default:
		}
	}
}
