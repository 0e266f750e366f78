package control

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/famish99/vidstated/internal/player"
	"github.com/famish99/vidstated/internal/playback"
)

// protocolVersion is announced in the greeting line
const protocolVersion = "0.1.0"

// Server implements the control protocol server and the events feed
type Server struct {
	mu       sync.Mutex
	listener net.Listener
	player   *player.Player
	addr     string
	running  bool

	eventsAddr   string
	eventsServer *http.Server
	hub          *eventHub

	// Idle connection management
	idleMu    sync.RWMutex
	idleConns map[*idleConnection]bool
}

// NewServer creates a control server for p. eventsAddr is the HTTP address
// of the websocket feed; empty disables it.
func NewServer(addr, eventsAddr string, p *player.Player) *Server {
	s := &Server{
		addr:       addr,
		eventsAddr: eventsAddr,
		player:     p,
		hub:        newEventHub(),
		idleConns:  make(map[*idleConnection]bool),
	}

	// Set up player notification callback for idle connections and the feed
	p.SetNotify(s.NotifyStateChange)

	return s
}

// Start starts the control server, and the events feed when configured
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start control server: %w", err)
	}

	if s.eventsAddr != "" {
		eventsListener, err := net.Listen("tcp", s.eventsAddr)
		if err != nil {
			listener.Close()
			return fmt.Errorf("failed to start events feed: %w", err)
		}
		s.eventsServer = &http.Server{Handler: s.Handler()}
		go func() {
			if err := s.eventsServer.Serve(eventsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Events feed error: %v", err)
			}
		}()
		log.Printf("Events feed listening on http://%s/events", eventsListener.Addr())
	}

	s.listener = listener
	s.running = true

	log.Printf("Control server listening on %s", listener.Addr())

	go s.acceptLoop()

	return nil
}

// Addr returns the control listener address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops the control server and the events feed
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false
	s.cancelIdle()
	s.hub.closeAll()
	if s.eventsServer != nil {
		s.eventsServer.Close()
		s.eventsServer = nil
	}
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()
			if !running {
				return
			}
			log.Printf("Accept error: %v", err)
			continue
		}

		go s.handleConnection(conn)
	}
}

// NotifyStateChange wakes idle connections and pushes ev to feed clients.
// The player calls it for every transition of the current session.
func (s *Server) NotifyStateChange(ev playback.StateChangeEvent) {
	s.notifyIdle(ev.Current.State.String())
	s.hub.broadcast(ev)
}
