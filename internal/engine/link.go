package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

const (
	restartBackoff = 1 * time.Second
	connectBackoff = 1 * time.Second
	launchSettle   = 2 * time.Second
	pollInterval   = 2 * time.Second

	DefaultVolume = 100
)

type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

// Link owns the mpv process and its IPC socket. It is the only writer of State;
// everything else observes snapshots through the event channel.
type Link struct {
	mpvPath    string
	socketPath string
	settings   SettingsStore

	mu    sync.Mutex
	conn  net.Conn
	state State

	events chan Event
}

func NewLink(mpvPath, socketPath string, settings SettingsStore) *Link {
	return &Link{
		mpvPath:    mpvPath,
		socketPath: socketPath,
		settings:   settings,
		state:      State{Volume: DefaultVolume},
		events:     make(chan Event, 64),
	}
}

// Events delivers normalized state changes and end-of-track signals in the
// order they were observed on the socket.
func (l *Link) Events() <-chan Event { return l.events }

// Run supervises the engine process and its socket until ctx is canceled.
// Neither loop ever gives up; crashes and disconnects retry on a fixed backoff.
func (l *Link) Run(ctx context.Context) {
	vol := l.savedVolume(ctx)
	l.mu.Lock()
	l.state.Volume = vol
	l.mu.Unlock()

	go l.superviseProcess(ctx, vol)
	go l.maintainSocket(ctx)
	go l.pollPosition(ctx)

	<-ctx.Done()
	l.mu.Lock()
	if l.conn != nil {
		l.conn.Close()
	}
	l.mu.Unlock()
}

func (l *Link) savedVolume(ctx context.Context) float64 {
	raw, ok, err := l.settings.GetSetting(ctx, SettingKeyVolume)
	if err != nil || !ok {
		return DefaultVolume
	}
	vol, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return DefaultVolume
	}
	return vol
}

func (l *Link) superviseProcess(ctx context.Context, vol float64) {
	for {
		// A stale socket file from a previous run blocks mpv's bind.
		_ = os.Remove(l.socketPath)

		cmd := exec.CommandContext(ctx, l.mpvPath,
			"--idle",
			"--no-video",
			"--force-window=no",
			"--input-ipc-server="+l.socketPath,
			fmt.Sprintf("--volume=%g", vol),
		)
		if err := cmd.Start(); err != nil {
			slog.Error("engine launch", "err", err)
		} else {
			slog.Info("engine started", "pid", cmd.Process.Pid, "socket", l.socketPath)
			_ = cmd.Wait()
		}
		if ctx.Err() != nil {
			return
		}
		slog.Warn("engine exited, relaunching")
		select {
		case <-ctx.Done():
			return
		case <-time.After(restartBackoff):
		}
	}
}

func (l *Link) maintainSocket(ctx context.Context) {
	// mpv needs a moment after launch to create the socket.
	select {
	case <-ctx.Done():
		return
	case <-time.After(launchSettle):
	}

	for {
		conn, err := net.Dial("unix", l.socketPath)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(connectBackoff):
			}
			continue
		}

		l.attach(conn)
		l.readLines(conn)
		l.detach(conn)

		if ctx.Err() != nil {
			return
		}
		slog.Warn("engine socket lost, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(connectBackoff):
		}
	}
}

func (l *Link) attach(conn net.Conn) {
	l.mu.Lock()
	l.conn = conn
	vol := l.state.Volume
	l.mu.Unlock()

	slog.Info("engine socket connected")
	l.registerObservers()
	l.Send("set_property", "volume", vol)
}

func (l *Link) detach(conn net.Conn) {
	conn.Close()
	l.mu.Lock()
	if l.conn == conn {
		l.conn = nil
	}
	l.mu.Unlock()
}

func (l *Link) registerObservers() {
	props := []string{"time-pos", "volume", "pause", "duration", "idle-active"}
	for i, p := range props {
		l.Send("observe_property", i+1, p)
	}
}

func (l *Link) readLines(conn net.Conn) {
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		l.handleLine(sc.Bytes())
	}
}

// Send serializes one command line of the engine protocol. Commands against a
// down link are dropped; the transport is best effort by contract.
func (l *Link) Send(tokens ...any) {
	payload, err := json.Marshal(map[string]any{"command": tokens})
	if err != nil {
		return
	}
	payload = append(payload, '\n')

	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		slog.Debug("engine command dropped, link down", "command", tokens[0])
		return
	}
	if _, err := conn.Write(payload); err != nil {
		slog.Debug("engine command write", "err", err)
	}
}

func (l *Link) pollPosition(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			connected := l.conn != nil
			l.mu.Unlock()
			if connected {
				l.Send("get_property", "time-pos")
			}
		}
	}
}

// handleLine applies one newline-delimited protocol message. Malformed lines
// and unrecognized events are dropped without touching the connection.
func (l *Link) handleLine(line []byte) {
	if len(line) == 0 {
		return
	}
	var msg struct {
		Event string          `json:"event"`
		Name  string          `json:"name"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(line, &msg); err != nil {
		return
	}
	if msg.Event != "property-change" {
		return
	}

	l.mu.Lock()
	ended := false
	switch msg.Name {
	case "time-pos":
		var v float64
		if json.Unmarshal(msg.Data, &v) != nil {
			l.mu.Unlock()
			return
		}
		l.state.Position = v
		l.state.Loading = false
	case "duration":
		var v float64
		if json.Unmarshal(msg.Data, &v) != nil {
			l.mu.Unlock()
			return
		}
		l.state.Duration = v
	case "volume":
		var v float64
		if json.Unmarshal(msg.Data, &v) != nil {
			l.mu.Unlock()
			return
		}
		l.state.Volume = v
	case "pause":
		var v bool
		if json.Unmarshal(msg.Data, &v) != nil {
			l.mu.Unlock()
			return
		}
		l.state.Paused = v
	case "idle-active":
		var v bool
		if json.Unmarshal(msg.Data, &v) != nil || !v {
			l.mu.Unlock()
			return
		}
		l.resetLocked()
		ended = true
	default:
		l.mu.Unlock()
		return
	}
	snapshot := l.state
	l.mu.Unlock()

	if ended {
		l.events <- Event{Kind: EventTrackEnded, State: snapshot}
	}
	l.publishState(snapshot)
}

// ResetState marks the player as loading a new track: position and duration
// zeroed, volume untouched.
func (l *Link) ResetState() {
	l.mu.Lock()
	l.resetLocked()
	snapshot := l.state
	l.mu.Unlock()
	l.publishState(snapshot)
}

func (l *Link) resetLocked() {
	l.state.Position = 0
	l.state.Duration = 0
	l.state.Loading = true
}

func (l *Link) publishState(s State) {
	select {
	case l.events <- Event{Kind: EventState, State: s}:
	default:
		// A full channel means the consumer is behind; a newer snapshot
		// will supersede this one.
	}
}

// Snapshot returns a copy of the current player state.
func (l *Link) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
