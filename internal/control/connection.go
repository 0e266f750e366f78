package control

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// clientConn serializes writes to one client
type clientConn struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *clientConn) write(response string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.w, response)
}

// finishIdle writes the idle response and marks the wait finished in one
// step, so a client that reacts to the response never sees the wait pending
func (c *clientConn) finishIdle(response string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.w, response)
	close(done)
}

// idleFinished reports whether the idle wait behind done has answered
func (c *clientConn) idleFinished(done chan struct{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// handleConnection handles a single control client connection
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	id := uuid.New().String()[:8]
	log.Printf("New control client connected: %s [%s]", conn.RemoteAddr(), id)

	c := &clientConn{w: conn}
	c.write(fmt.Sprintf("OK VIDSTATED %s\n", protocolVersion))

	// Connection-specific idle state
	var idle *idleConnection
	var idleDone chan struct{}

	defer func() {
		if idle != nil {
			s.endIdle(idle)
			<-idleDone
		}
	}()

	scanner := bufio.NewScanner(conn)
	inCommandList := false
	commandListOk := false // Track if we need list_OK after each command
	var commandList []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		log.Printf("Control command [%s]: %s", id, line)

		if idle != nil {
			if c.idleFinished(idleDone) {
				idle = nil
			} else if strings.EqualFold(line, "noidle") {
				s.endIdle(idle)
				<-idleDone
				idle = nil
				continue
			} else {
				log.Printf("Ignoring %q from idle client [%s]", line, id)
				continue
			}
		}

		// Handle command list mode
		switch line {
		case "command_list_begin", "command_list_ok_begin":
			inCommandList = true
			commandListOk = line == "command_list_ok_begin"
			commandList = commandList[:0]
			continue

		case "command_list_end":
			if !inCommandList {
				c.write(ack(ackNotList, "command_list_end", "not in command list"))
				continue
			}
			c.write(s.runCommandList(commandList, commandListOk))
			inCommandList = false
			commandListOk = false
			commandList = commandList[:0]
			continue
		}

		if inCommandList {
			commandList = append(commandList, line)
			continue
		}

		// idle, noidle and close act on the connection itself
		switch strings.ToLower(strings.Fields(line)[0]) {
		case "idle":
			idle = newIdleConnection()
			idleDone = make(chan struct{})
			s.registerIdle(idle)
			go s.waitIdle(c, idle, idleDone)
			continue

		case "noidle":
			// Not idle (or the wait already answered): nothing to cancel
			continue

		case "close":
			log.Printf("Control client closed connection: %s [%s]", conn.RemoteAddr(), id)
			return
		}

		c.write(s.handleCommand(line))
	}

	if err := scanner.Err(); err != nil {
		log.Printf("Connection error [%s]: %v", id, err)
	}

	log.Printf("Control client disconnected: %s [%s]", conn.RemoteAddr(), id)
}

// waitIdle blocks until the next state change or until the wait is cancelled
func (s *Server) waitIdle(c *clientConn, idle *idleConnection, done chan struct{}) {
	defer s.unregisterIdle(idle)

	select {
	case state := <-idle.notify:
		c.finishIdle(fmt.Sprintf("changed: %s\nOK\n", state), done)
	case <-idle.cancel:
		c.finishIdle("OK\n", done)
	}
}

// runCommandList executes buffered commands, stopping at the first error.
// The error reports the failing command's position in the list.
func (s *Server) runCommandList(commands []string, listOk bool) string {
	var out strings.Builder
	for i, line := range commands {
		var response string
		switch strings.ToLower(strings.Fields(line)[0]) {
		case "idle", "noidle", "close":
			response = ack(ackArg, strings.Fields(line)[0], "not allowed in command list")
		default:
			response = s.handleCommand(line)
		}

		if strings.HasPrefix(response, "ACK ") {
			out.WriteString(strings.Replace(response, "@0]", fmt.Sprintf("@%d]", i), 1))
			return out.String()
		}

		// Buffer response (strip the final OK)
		out.WriteString(strings.TrimSuffix(response, "OK\n"))
		if listOk {
			out.WriteString("list_OK\n")
		}
	}
	out.WriteString("OK\n")
	return out.String()
}
