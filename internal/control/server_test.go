package control

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/famish99/vidstated/internal/catalog"
	"github.com/famish99/vidstated/internal/media"
	"github.com/famish99/vidstated/internal/player"
	"github.com/famish99/vidstated/internal/playback"
)

func newTestServer(t *testing.T) (*Server, *player.Player, *media.VirtualElement) {
	t.Helper()
	el := media.NewVirtualElement()
	cat := catalog.New()
	cat.Add("Bunny", "https://example.com/bunny.mp4", "")
	cat.Add("Sintel", "https://example.com/sintel.webm", "")

	p := player.NewPlayer(el, cat, player.DefaultRegistry(nil, nil), playback.Options{
		PollInterval: time.Hour,
		Clock:        playback.NewManualClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
		Logger:       log.New(io.Discard, "", 0),
	})
	t.Cleanup(p.Close)

	return NewServer("127.0.0.1:0", "", p), p, el
}

// testClient talks to handleConnection over an in-memory pipe
type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, s *Server) *testClient {
	t.Helper()
	server, client := net.Pipe()
	go s.handleConnection(server)
	t.Cleanup(func() { client.Close() })

	client.SetDeadline(time.Now().Add(5 * time.Second))
	c := &testClient{t: t, conn: client, r: bufio.NewReader(client)}
	if greeting := c.line(); greeting != "OK VIDSTATED "+protocolVersion {
		t.Fatalf("greeting = %q", greeting)
	}
	return c
}

func (c *testClient) send(lines ...string) {
	c.t.Helper()
	for _, line := range lines {
		if _, err := fmt.Fprintf(c.conn, "%s\n", line); err != nil {
			c.t.Fatalf("failed to send %q: %v", line, err)
		}
	}
}

func (c *testClient) line() string {
	c.t.Helper()
	line, err := c.r.ReadString('\n')
	if err != nil {
		c.t.Fatalf("failed to read response: %v", err)
	}
	return strings.TrimSuffix(line, "\n")
}

// response reads up to and including the terminating OK or ACK line
func (c *testClient) response() []string {
	c.t.Helper()
	var lines []string
	for {
		line := c.line()
		lines = append(lines, line)
		if line == "OK" || strings.HasPrefix(line, "ACK ") {
			return lines
		}
	}
}

func (c *testClient) call(line string) []string {
	c.t.Helper()
	c.send(line)
	return c.response()
}

func contains(lines []string, want string) bool {
	for _, l := range lines {
		if l == want {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func (s *Server) idleCount() int {
	s.idleMu.RLock()
	defer s.idleMu.RUnlock()
	return len(s.idleConns)
}

func TestServer_PingAndUnknown(t *testing.T) {
	s, _, _ := newTestServer(t)
	c := dial(t, s)

	if got := c.call("ping"); len(got) != 1 || got[0] != "OK" {
		t.Errorf("ping = %v", got)
	}
	if got := c.call("bogus 1 2"); got[0] != "ACK [5@0] {bogus} unknown command" {
		t.Errorf("bogus = %v", got)
	}
}

func TestServer_SelectAndStatus(t *testing.T) {
	s, p, _ := newTestServer(t)
	c := dial(t, s)

	got := c.call("status")
	if !contains(got, "state: IDLE") || contains(got, "backend: mp4") {
		t.Errorf("status without session = %v", got)
	}

	if got := c.call("select 0"); got[0] != "OK" {
		t.Fatalf("select 0 = %v", got)
	}
	if p.State() != playback.StateLoading {
		t.Errorf("State() = %v, want LOADING", p.State())
	}

	got = c.call("status")
	for _, want := range []string{"state: LOADING", "source: 0", "title: Bunny", "kind: mp4", "backend: mp4", "message: MP4 video loading..."} {
		if !contains(got, want) {
			t.Errorf("status missing %q: %v", want, got)
		}
	}

	got = c.call("sources")
	if !contains(got, "title: Sintel") || !contains(got, "current: 0") {
		t.Errorf("sources = %v", got)
	}
}

func TestServer_ArgumentErrors(t *testing.T) {
	s, _, _ := newTestServer(t)
	c := dial(t, s)

	tests := []struct {
		command string
		prefix  string
	}{
		{"select", "ACK [2@0] {select}"},
		{"select x", "ACK [2@0] {select}"},
		{"select 9", "ACK [50@0] {select}"},
		{"play", "ACK [50@0] {play}"},
		{"pause 2", "ACK [2@0] {pause}"},
		{"seek", "ACK [2@0] {seek}"},
		{"seek -1", "ACK [2@0] {seek}"},
		{"seek 3", "ACK [50@0] {seek}"},
		{"debug", "ACK [50@0] {debug}"},
		{"command_list_end", "ACK [1@0] {command_list_end}"},
	}
	for _, tt := range tests {
		got := c.call(tt.command)
		if len(got) != 1 || !strings.HasPrefix(got[0], tt.prefix) {
			t.Errorf("%q = %v, want prefix %q", tt.command, got, tt.prefix)
		}
	}
}

func TestServer_PlayPauseSeek(t *testing.T) {
	s, p, el := newTestServer(t)
	c := dial(t, s)
	c.call("select 0")

	if got := c.call("play"); got[0] != "OK" {
		t.Fatalf("play = %v", got)
	}
	// Nothing is buffered yet, so the element waits
	if p.State() != playback.StateBuffering {
		t.Errorf("State() after play = %v, want BUFFERING", p.State())
	}

	if got := c.call("pause"); got[0] != "OK" {
		t.Fatalf("pause = %v", got)
	}
	if !el.Paused() || p.State() != playback.StatePaused {
		t.Errorf("pause toggle: paused=%v state=%v", el.Paused(), p.State())
	}

	el.SetDuration(60)
	if got := c.call(`seek "12.5"`); got[0] != "OK" {
		t.Fatalf("seek = %v", got)
	}
	if el.CurrentTime() != 12.5 || p.State() != playback.StateSeeking {
		t.Errorf("seek: time=%v state=%v", el.CurrentTime(), p.State())
	}
}

func TestServer_Debug(t *testing.T) {
	s, _, _ := newTestServer(t)
	c := dial(t, s)
	c.call("select 1")

	got := c.call("debug")
	if len(got) != 2 || !strings.HasPrefix(got[0], "debug: ") {
		t.Fatalf("debug = %v", got)
	}
	var info map[string]any
	if err := json.Unmarshal([]byte(strings.TrimPrefix(got[0], "debug: ")), &info); err != nil {
		t.Fatalf("debug payload is not JSON: %v", err)
	}
	if info["currentState"] != "LOADING" {
		t.Errorf("currentState = %v, want LOADING", info["currentState"])
	}
}

func TestServer_IdleWakesOnStateChange(t *testing.T) {
	s, _, el := newTestServer(t)
	c := dial(t, s)
	c.call("select 0")

	c.send("idle")
	waitFor(t, "idle registration", func() bool { return s.idleCount() == 1 })

	el.Dispatch(media.EventCanPlay)
	if got := c.response(); len(got) != 2 || got[0] != "changed: READY" {
		t.Fatalf("idle = %v", got)
	}
	waitFor(t, "idle cleanup", func() bool { return s.idleCount() == 0 })

	if got := c.call("ping"); got[0] != "OK" {
		t.Errorf("ping after idle = %v", got)
	}
}

func TestServer_NoIdle(t *testing.T) {
	s, _, _ := newTestServer(t)
	c := dial(t, s)

	c.send("idle")
	waitFor(t, "idle registration", func() bool { return s.idleCount() == 1 })

	if got := c.call("noidle"); len(got) != 1 || got[0] != "OK" {
		t.Fatalf("noidle = %v", got)
	}
	if s.idleCount() != 0 {
		t.Errorf("idleCount() = %d after noidle", s.idleCount())
	}
	if got := c.call("ping"); got[0] != "OK" {
		t.Errorf("ping after noidle = %v", got)
	}
}

func TestServer_CommandList(t *testing.T) {
	s, _, _ := newTestServer(t)
	c := dial(t, s)

	c.send("command_list_ok_begin", "ping", "select 1", "command_list_end")
	got := c.response()
	want := []string{"list_OK", "list_OK", "OK"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("command list = %v, want %v", got, want)
	}

	c.send("command_list_begin", "ping", "seek -1", "ping", "command_list_end")
	got = c.response()
	if len(got) != 1 || !strings.HasPrefix(got[0], "ACK [2@1] {seek}") {
		t.Errorf("failing command list = %v", got)
	}
}

func TestServer_Close(t *testing.T) {
	s, _, _ := newTestServer(t)
	c := dial(t, s)

	c.send("close")
	if _, err := c.r.ReadString('\n'); err != io.EOF {
		t.Errorf("read after close = %v, want EOF", err)
	}
}

func TestServer_EventsFeed(t *testing.T) {
	s, p, el := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer conn.Close()
	waitFor(t, "events client", func() bool { return s.hub.count() == 1 })

	if err := p.Select(context.Background(), 0); err != nil {
		t.Fatalf("Select error: %v", err)
	}
	el.Dispatch(media.EventCanPlay)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for _, want := range []string{"LOADING", "READY"} {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage error: %v", err)
		}
		var ev struct {
			Current struct {
				State string `json:"state"`
			} `json:"currentState"`
			Previous *struct {
				State string `json:"state"`
			} `json:"previousState"`
		}
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("event is not JSON: %v", err)
		}
		if ev.Current.State != want || ev.Previous == nil {
			t.Errorf("event = %s, want %s", data, want)
		}
	}

	conn.Close()
	waitFor(t, "events client removal", func() bool { return s.hub.count() == 0 })
}

func TestServer_StartStop(t *testing.T) {
	s, _, _ := newTestServer(t)
	s.eventsAddr = "127.0.0.1:0"
	if err := s.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start succeeded")
	}

	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	greeting, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil || greeting != "OK VIDSTATED "+protocolVersion+"\n" {
		t.Errorf("greeting = %q, %v", greeting, err)
	}

	if err := s.Stop(); err != nil {
		t.Errorf("Stop error: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop error: %v", err)
	}
}
