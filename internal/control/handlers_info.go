package control

import (
	"encoding/json"
	"fmt"
	"strings"
)

// cmdStatus handles the 'status' command
func (s *Server) cmdStatus(_ []string) string {
	st := s.player.Status()

	var status strings.Builder
	field(&status, "state", st.State)
	if st.Source != nil {
		field(&status, "source", st.Source.Index)
		field(&status, "title", st.Source.Title)
		field(&status, "url", st.Source.URL)
		field(&status, "kind", st.Source.Kind())
	}
	if st.Backend != "" {
		field(&status, "backend", st.Backend)
		field(&status, "live", boolField(st.Info.Live))
		for _, level := range st.Info.Levels {
			field(&status, "level", level)
		}
	}
	field(&status, "elapsed", fmt.Sprintf("%.3f", st.Elapsed))
	field(&status, "duration", fmt.Sprintf("%.3f", st.Duration))
	field(&status, "muted", boolField(st.Muted))
	field(&status, "autoplay_blocked", boolField(st.AutoplayBlocked))
	if st.Message != "" {
		field(&status, "message", st.Message)
	}
	if st.Error != "" {
		field(&status, "error", st.Error)
	}

	status.WriteString("OK\n")
	return status.String()
}

// cmdDebug handles the 'debug' command: the engine diagnostics as one JSON line
func (s *Server) cmdDebug(_ []string) string {
	info, ok := s.player.DebugInfo()
	if !ok {
		return ack(ackNoExist, "debug", "no source selected")
	}
	data, err := json.Marshal(info)
	if err != nil {
		return ack(ackSystem, "debug", err.Error())
	}
	return fmt.Sprintf("debug: %s\nOK\n", data)
}

// cmdSources handles the 'sources' command
func (s *Server) cmdSources(_ []string) string {
	cat := s.player.Catalog()

	var out strings.Builder
	for _, src := range cat.All() {
		field(&out, "source", src.Index)
		field(&out, "title", src.Title)
		field(&out, "url", src.URL)
		field(&out, "kind", src.Kind())
	}
	if current := cat.CurrentIndex(); current >= 0 {
		field(&out, "current", current)
	}
	out.WriteString("OK\n")
	return out.String()
}
