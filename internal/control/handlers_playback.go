package control

import (
	"context"
	"errors"
	"log"
	"strconv"

	"github.com/famish99/vidstated/internal/catalog"
)

// playerAck maps a player error to a protocol error
func playerAck(command string, err error) string {
	if errors.Is(err, catalog.ErrNoSource) {
		return ack(ackNoExist, command, err.Error())
	}
	return ack(ackSystem, command, err.Error())
}

// cmdSelect handles the 'select' command
// select INDEX - attach the catalog source at INDEX
func (s *Server) cmdSelect(args []string) string {
	if len(args) == 0 {
		return ack(ackArg, "select", "missing source index")
	}
	index, err := strconv.Atoi(unquote(args[0]))
	if err != nil {
		return ack(ackArg, "select", "invalid source index")
	}

	if err := s.player.Select(context.Background(), index); err != nil {
		log.Printf("Select %d failed: %v", index, err)
		return playerAck("select", err)
	}
	return "OK\n"
}

// cmdClear handles the 'clear' command
func (s *Server) cmdClear(_ []string) string {
	s.player.Clear()
	return "OK\n"
}

// cmdPlay handles the 'play' command
func (s *Server) cmdPlay(_ []string) string {
	if err := s.player.Play(); err != nil {
		return playerAck("play", err)
	}
	return "OK\n"
}

// cmdPause handles the 'pause' command
// pause 0 = resume, pause 1 = pause, no arg = toggle
func (s *Server) cmdPause(args []string) string {
	var shouldPause bool

	if len(args) > 0 {
		arg := unquote(args[0])

		// Validate argument (0 or 1)
		if arg != "0" && arg != "1" {
			return ack(ackArg, "pause", "invalid argument")
		}
		shouldPause = arg == "1"
	} else {
		shouldPause = !s.player.Element().Paused()
	}

	var err error
	if shouldPause {
		err = s.player.Pause()
	} else {
		err = s.player.Play()
	}
	if err != nil {
		return playerAck("pause", err)
	}
	return "OK\n"
}

// cmdSeek handles the 'seek' command
// seek SECONDS - move the playback position
func (s *Server) cmdSeek(args []string) string {
	if len(args) == 0 {
		return ack(ackArg, "seek", "missing position")
	}
	pos, err := strconv.ParseFloat(unquote(args[0]), 64)
	if err != nil || pos < 0 {
		return ack(ackArg, "seek", "invalid position")
	}

	if err := s.player.Seek(pos); err != nil {
		return playerAck("seek", err)
	}
	return "OK\n"
}
