// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	xglog "github.com/ManuGH/playbackd/internal/log"
	"github.com/ManuGH/playbackd/internal/player/model"
	"github.com/ManuGH/playbackd/internal/procgroup"
	"github.com/rs/zerolog"
)

const (
	mpvSocketRetries  = 50
	mpvSocketInterval = 100 * time.Millisecond
	mpvQueryTimeout   = 3 * time.Second
)

// MPVOptions configures the general-purpose native engine.
type MPVOptions struct {
	// Bin is the player binary, "mpv" when empty.
	Bin string
	// SocketDir is where the IPC socket is created, os.TempDir() when empty.
	SocketDir string
	// Video disables video output when false; headless hosts run audio-only.
	Video bool
}

// MPV drives the mpv player over its JSON IPC socket. One instance is scoped
// to a single Load; retry flows construct a fresh one.
type MPV struct {
	opts MPVOptions
	log  zerolog.Logger

	events chan Event
	inbox  chan mpvMessage

	mu      sync.Mutex
	cmd     *exec.Cmd
	conn    net.Conn
	sockDir string
	loaded  bool
	closed  bool

	reqID   atomic.Int64
	pending sync.Map // request id -> chan mpvMessage

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewMPV constructs an unattached mpv engine.
func NewMPV(opts MPVOptions) *MPV {
	return &MPV{
		opts:   opts,
		log:    xglog.WithComponent("engine.mpv"),
		events: make(chan Event, 16),
		inbox:  make(chan mpvMessage, 64),
	}
}

// MPVFactory returns a Factory producing fresh MPV engines.
func MPVFactory(opts MPVOptions) Factory {
	return func(model.Backend) (Engine, error) {
		return NewMPV(opts), nil
	}
}

// Name implements Engine.
func (e *MPV) Name() model.Backend { return model.BackendMPV }

// Events implements Engine.
func (e *MPV) Events() <-chan Event { return e.events }

type mpvCommand struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id,omitempty"`
}

type mpvMessage struct {
	Event     string          `json:"event"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data"`
	RequestID int64           `json:"request_id"`
	Error     string          `json:"error"`
	Reason    string          `json:"reason"`
}

// Load implements Engine. It spawns the player process, connects to its IPC
// socket and issues the load command; readiness and failures are reported on
// the event channel.
func (e *MPV) Load(ctx context.Context, src model.Source) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.loaded {
		e.mu.Unlock()
		return fmt.Errorf("mpv: engine already attached")
	}
	e.loaded = true
	e.mu.Unlock()

	baseDir := e.opts.SocketDir
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	sockDir, err := os.MkdirTemp(baseDir, "playbackd-mpv-")
	if err != nil {
		e.abortLoad()
		return fmt.Errorf("mpv: socket dir: %w", err)
	}
	socket := filepath.Join(sockDir, "ipc.sock")

	bin := e.opts.Bin
	if bin == "" {
		bin = "mpv"
	}
	args := []string{
		"--idle=yes",
		"--pause",
		"--no-terminal",
		"--no-config",
		"--input-ipc-server=" + socket,
	}
	if !e.opts.Video {
		args = append(args, "--vo=null")
	}

	cmd := exec.Command(bin, args...) // #nosec G204 -- binary comes from operator config
	procgroup.Set(cmd)
	if err := cmd.Start(); err != nil {
		_ = os.RemoveAll(sockDir)
		e.abortLoad()
		return fmt.Errorf("mpv: start: %w", err)
	}

	conn, err := waitForSocket(ctx, socket)
	if err != nil {
		_ = procgroup.Kill(cmd, syscall.SIGKILL)
		_ = cmd.Wait()
		_ = os.RemoveAll(sockDir)
		e.abortLoad()
		return fmt.Errorf("mpv: ipc socket: %w", err)
	}

	e.mu.Lock()
	e.cmd = cmd
	e.conn = conn
	e.sockDir = sockDir
	e.mu.Unlock()

	e.wg.Add(2)
	go e.readLoop(conn)
	go e.handleLoop(src)

	for _, prop := range []string{"time-pos", "paused-for-cache", "eof-reached"} {
		if err := e.send(mpvCommand{Command: []any{"observe_property", e.reqID.Add(1), prop}}); err != nil {
			return fmt.Errorf("mpv: observe %s: %w", prop, err)
		}
	}
	if err := e.send(mpvCommand{Command: []any{"loadfile", src.URL}}); err != nil {
		return fmt.Errorf("mpv: loadfile: %w", err)
	}
	return nil
}

func (e *MPV) abortLoad() {
	e.mu.Lock()
	e.loaded = false
	e.mu.Unlock()
}

func waitForSocket(ctx context.Context, path string) (net.Conn, error) {
	for i := 0; i < mpvSocketRetries; i++ {
		if conn, err := net.Dial("unix", path); err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(mpvSocketInterval):
		}
	}
	return nil, fmt.Errorf("socket %s did not appear", path)
}

// readLoop decodes IPC lines and routes replies to pending requests and
// events to the handler. It exits when the connection closes.
func (e *MPV) readLoop(conn net.Conn) {
	defer e.wg.Done()
	defer close(e.inbox)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg mpvMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			e.log.Debug().Err(err).Msg("undecodable ipc line")
			continue
		}
		if msg.RequestID != 0 && msg.Event == "" {
			if ch, ok := e.pending.LoadAndDelete(msg.RequestID); ok {
				ch.(chan mpvMessage) <- msg
			}
			continue
		}
		e.inbox <- msg
	}
}

// handleLoop is the sole writer of the event channel. It processes IPC events
// sequentially and closes the channel when the inbox drains after teardown.
func (e *MPV) handleLoop(src model.Source) {
	defer e.wg.Done()
	defer close(e.events)

	errored := false
	for msg := range e.inbox {
		switch msg.Event {
		case "file-loaded":
			e.onFileLoaded()
		case "property-change":
			e.onProperty(msg)
		case "end-file":
			if msg.Reason == "error" && !errored {
				errored = true
				e.events <- Event{Kind: EvError, Err: fmt.Errorf("mpv: playback failed for %s", src.ContentType)}
			} else if msg.Reason == "eof" {
				e.events <- Event{Kind: EvEnded}
			}
		}
	}
}

func (e *MPV) onFileLoaded() {
	var duration *float64
	if d, err := e.queryFloat("duration"); err == nil {
		duration = &d
	}
	audio, subs := e.queryTracks()
	e.events <- Event{Kind: EvLoaded, Duration: duration, Audio: audio, Subtitles: subs}
}

func (e *MPV) onProperty(msg mpvMessage) {
	switch msg.Name {
	case "time-pos":
		var pos float64
		if err := json.Unmarshal(msg.Data, &pos); err == nil {
			e.events <- Event{Kind: EvProgress, Position: pos}
		}
	case "paused-for-cache":
		var stalled bool
		if err := json.Unmarshal(msg.Data, &stalled); err == nil {
			e.events <- Event{Kind: EvBuffering, Buffering: stalled}
		}
	}
}

// queryFloat performs a synchronous get_property round-trip.
func (e *MPV) queryFloat(prop string) (float64, error) {
	msg, err := e.request([]any{"get_property", prop})
	if err != nil {
		return 0, err
	}
	var v float64
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		return 0, fmt.Errorf("mpv: property %s: %w", prop, err)
	}
	return v, nil
}

type mpvTrack struct {
	ID       int    `json:"id"`
	Type     string `json:"type"`
	Lang     string `json:"lang"`
	Title    string `json:"title"`
	External bool   `json:"external"`
}

func (e *MPV) queryTracks() ([]model.AudioTrack, []model.SubtitleTrack) {
	msg, err := e.request([]any{"get_property", "track-list"})
	if err != nil {
		e.log.Warn().Err(err).Msg("track-list query failed")
		return nil, nil
	}
	var tracks []mpvTrack
	if err := json.Unmarshal(msg.Data, &tracks); err != nil {
		e.log.Warn().Err(err).Msg("track-list decode failed")
		return nil, nil
	}

	var audio []model.AudioTrack
	var subs []model.SubtitleTrack
	for _, t := range tracks {
		id := strconv.Itoa(t.ID)
		switch t.Type {
		case "audio":
			audio = append(audio, model.AudioTrack{ID: id, Language: t.Lang, Label: t.Title})
		case "sub":
			subs = append(subs, model.SubtitleTrack{ID: id, Language: t.Lang, Label: t.Title, Sideloaded: t.External})
		}
	}
	return audio, subs
}

// request sends a command and waits for its tagged reply.
func (e *MPV) request(command []any) (mpvMessage, error) {
	id := e.reqID.Add(1)
	ch := make(chan mpvMessage, 1)
	e.pending.Store(id, ch)
	defer e.pending.Delete(id)

	if err := e.send(mpvCommand{Command: command, RequestID: id}); err != nil {
		return mpvMessage{}, err
	}
	select {
	case msg := <-ch:
		if msg.Error != "" && msg.Error != "success" {
			return mpvMessage{}, fmt.Errorf("mpv: %s", msg.Error)
		}
		return msg, nil
	case <-time.After(mpvQueryTimeout):
		return mpvMessage{}, fmt.Errorf("mpv: request timed out")
	}
}

func (e *MPV) send(cmd mpvCommand) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.conn == nil {
		return ErrClosed
	}
	buf, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	buf = append(buf, '\n')
	_, err = e.conn.Write(buf)
	return err
}

func (e *MPV) setProperty(name string, value any) error {
	return e.send(mpvCommand{Command: []any{"set_property", name, value}})
}

// Play implements Engine.
func (e *MPV) Play() error { return e.setProperty("pause", false) }

// Pause implements Engine.
func (e *MPV) Pause() error { return e.setProperty("pause", true) }

// Seek implements Engine.
func (e *MPV) Seek(seconds float64) error {
	return e.send(mpvCommand{Command: []any{"seek", seconds, "absolute"}})
}

// SetVolume implements Engine. The [0,1] range maps to mpv's 0-100 scale.
func (e *MPV) SetVolume(v float64) error {
	return e.setProperty("volume", v*100)
}

// SetMuted implements Engine.
func (e *MPV) SetMuted(muted bool) error { return e.setProperty("mute", muted) }

// SelectAudioTrack implements Engine.
func (e *MPV) SelectAudioTrack(id string) error {
	n, err := strconv.Atoi(id)
	if err != nil {
		return fmt.Errorf("mpv: audio track id %q: %w", id, err)
	}
	return e.setProperty("aid", n)
}

// SelectSubtitleTrack implements Engine. An empty id disables subtitles.
func (e *MPV) SelectSubtitleTrack(id string) error {
	if id == "" {
		return e.setProperty("sid", "no")
	}
	n, err := strconv.Atoi(id)
	if err != nil {
		return fmt.Errorf("mpv: subtitle track id %q: %w", id, err)
	}
	return e.setProperty("sid", n)
}

// AddSubtitleTrack implements Engine by sideloading the artifact at sub.Path.
func (e *MPV) AddSubtitleTrack(sub SideloadedSubtitle) error {
	title := sub.Label
	if title == "" {
		title = sub.Language
	}
	return e.send(mpvCommand{Command: []any{"sub-add", sub.Path, "auto", title, sub.Language}})
}

// Close implements Engine. It stops the player process, closes the IPC
// connection and removes the socket directory. Safe to call mid-load and more
// than once; teardown failures are logged, never returned.
func (e *MPV) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		conn := e.conn
		cmd := e.cmd
		sockDir := e.sockDir
		loaded := e.loaded
		e.mu.Unlock()

		if !loaded {
			close(e.events)
			return
		}

		if conn != nil {
			// Best effort: ask the player to quit before killing it.
			_, _ = conn.Write([]byte(`{"command":["quit"]}` + "\n"))
			_ = conn.Close()
		}
		if cmd != nil && cmd.Process != nil {
			waitCh := make(chan error, 1)
			go func() { waitCh <- cmd.Wait() }()
			grace := 2 * time.Second
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < grace {
					grace = rem
				}
			}
			_ = procgroup.Terminate(cmd, waitCh, grace)
		}
		e.wg.Wait()
		if sockDir != "" {
			if err := os.RemoveAll(sockDir); err != nil {
				e.log.Warn().Err(err).Str(xglog.FieldPath, sockDir).Msg("socket dir cleanup failed")
			}
		}
	})
	return nil
}
