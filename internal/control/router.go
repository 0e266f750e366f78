package control

import (
	"strings"
)

// handleCommand processes a single control command
func (s *Server) handleCommand(line string) string {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return "OK\n"
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "ping":
		return "OK\n"

	case "status":
		return s.cmdStatus(args)

	case "debug":
		return s.cmdDebug(args)

	case "sources":
		return s.cmdSources(args)

	case "select":
		return s.cmdSelect(args)

	case "clear":
		return s.cmdClear(args)

	case "play":
		return s.cmdPlay(args)

	case "pause":
		return s.cmdPause(args)

	case "seek":
		return s.cmdSeek(args)

	default:
		return ack(ackUnknown, command, "unknown command")
	}
}
