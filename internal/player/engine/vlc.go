// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	xglog "github.com/ManuGH/playbackd/internal/log"
	"github.com/ManuGH/playbackd/internal/player/model"
	"github.com/ManuGH/playbackd/internal/procgroup"
	"github.com/rs/zerolog"
)

const (
	vlcConnectRetries  = 50
	vlcConnectInterval = 100 * time.Millisecond
	vlcReplyTimeout    = 3 * time.Second
	vlcPollInterval    = 500 * time.Millisecond
)

// ErrUnsupported marks operations a backend cannot perform. Callers treat it
// as a soft failure, not an engine error.
var ErrUnsupported = errors.New("engine: operation not supported by backend")

// VLCOptions configures the dedicated matroska engine.
type VLCOptions struct {
	// Bin is the player binary, "vlc" when empty.
	Bin string
	// Host is the RC interface listen address, "127.0.0.1:4212" when empty.
	Host string
}

// VLC drives the VLC player over its remote-control interface. The RC
// protocol has no request tagging, so command replies are matched by reading
// the next line that parses; asynchronous "status change" lines are folded
// into events. Progress is polled, matroska decoding stays inside VLC.
type VLC struct {
	opts VLCOptions
	log  zerolog.Logger

	events chan Event

	mu       sync.Mutex
	cmd      *exec.Cmd
	conn     net.Conn
	replies  chan string
	loaded   bool
	closed   bool
	playing  bool
	endFlag  bool
	duration float64
	hasDur   bool

	pollStop  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewVLC constructs an unattached VLC engine.
func NewVLC(opts VLCOptions) *VLC {
	return &VLC{
		opts:     opts,
		log:      xglog.WithComponent("engine.vlc"),
		events:   make(chan Event, 16),
		replies:  make(chan string, 64),
		pollStop: make(chan struct{}),
	}
}

// VLCFactory returns a Factory producing fresh VLC engines.
func VLCFactory(opts VLCOptions) Factory {
	return func(model.Backend) (Engine, error) {
		return NewVLC(opts), nil
	}
}

// Name implements Engine.
func (e *VLC) Name() model.Backend { return model.BackendVLC }

// Events implements Engine.
func (e *VLC) Events() <-chan Event { return e.events }

// Load implements Engine.
func (e *VLC) Load(ctx context.Context, src model.Source) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.loaded {
		e.mu.Unlock()
		return fmt.Errorf("vlc: engine already attached")
	}
	e.loaded = true
	e.mu.Unlock()

	host := e.opts.Host
	if host == "" {
		host = "127.0.0.1:4212"
	}
	bin := e.opts.Bin
	if bin == "" {
		bin = "vlc"
	}

	cmd := exec.Command(bin, // #nosec G204 -- binary comes from operator config
		"--intf", "rc",
		"--rc-host", host,
		"--no-video-title-show",
		"--play-and-pause",
	)
	procgroup.Set(cmd)
	if err := cmd.Start(); err != nil {
		e.abortLoad()
		return fmt.Errorf("vlc: start: %w", err)
	}

	var conn net.Conn
	var err error
	for i := 0; i < vlcConnectRetries; i++ {
		if conn, err = net.Dial("tcp", host); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = procgroup.Kill(cmd, syscall.SIGKILL)
			_ = cmd.Wait()
			e.abortLoad()
			return ctx.Err()
		case <-time.After(vlcConnectInterval):
		}
	}
	if conn == nil {
		_ = procgroup.Kill(cmd, syscall.SIGKILL)
		_ = cmd.Wait()
		e.abortLoad()
		return fmt.Errorf("vlc: rc interface not reachable at %s: %w", host, err)
	}

	e.mu.Lock()
	e.cmd = cmd
	e.conn = conn
	e.mu.Unlock()

	e.wg.Add(2)
	go e.readLoop(conn)
	go e.pollLoop()

	if err := e.writeLine("add " + src.URL); err != nil {
		return fmt.Errorf("vlc: add: %w", err)
	}
	// Loading starts paused; the facade decides when playback begins.
	if err := e.writeLine("pause"); err != nil {
		return fmt.Errorf("vlc: pause: %w", err)
	}
	return nil
}

func (e *VLC) abortLoad() {
	e.mu.Lock()
	e.loaded = false
	e.mu.Unlock()
}

// readLoop splits RC output into command replies and asynchronous status
// lines. Status lines become events; everything else feeds the reply queue.
func (e *VLC) readLoop(conn net.Conn) {
	defer e.wg.Done()
	defer close(e.replies)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ">") {
			continue
		}
		if strings.HasPrefix(line, "status change:") {
			e.onStatusLine(line)
			continue
		}
		select {
		case e.replies <- line:
		default:
			// reply queue full: stale reply nobody is waiting for
		}
	}
}

// onStatusLine records state transitions; pollLoop is the sole event emitter,
// so end-of-stream is flagged here and surfaced on the next poll tick.
func (e *VLC) onStatusLine(line string) {
	switch {
	case strings.Contains(line, "stop state"):
		e.mu.Lock()
		if e.playing {
			e.endFlag = true
		}
		e.playing = false
		e.mu.Unlock()
	case strings.Contains(line, "play state"):
		e.mu.Lock()
		e.playing = true
		e.mu.Unlock()
	}
}

// pollLoop drives loaded/progress events off get_length and get_time, since
// the RC interface pushes no timeline updates of its own.
func (e *VLC) pollLoop() {
	defer e.wg.Done()
	defer close(e.events)

	reportedLoad := false
	ticker := time.NewTicker(vlcPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.pollStop:
			return
		case <-ticker.C:
		}

		e.mu.Lock()
		ended := e.endFlag
		e.endFlag = false
		e.mu.Unlock()
		if ended {
			e.emit(Event{Kind: EvEnded})
			continue
		}

		length, lerr := e.queryNumber("get_length")
		pos, perr := e.queryNumber("get_time")
		if lerr != nil && perr != nil {
			continue
		}

		if !reportedLoad && lerr == nil && length > 0 {
			reportedLoad = true
			e.mu.Lock()
			e.duration = length
			e.hasDur = true
			e.mu.Unlock()
			d := length
			e.emit(Event{Kind: EvLoaded, Duration: &d})
		}
		if perr == nil && reportedLoad {
			ev := Event{Kind: EvProgress, Position: pos}
			e.mu.Lock()
			if e.hasDur {
				d := e.duration
				ev.Duration = &d
			}
			e.mu.Unlock()
			e.emit(ev)
		}
	}
}

func (e *VLC) emit(ev Event) {
	select {
	case e.events <- ev:
	case <-e.pollStop:
	}
}

// queryNumber issues an RC command whose reply is a bare integer.
func (e *VLC) queryNumber(command string) (float64, error) {
	e.mu.Lock()
	if e.closed || e.conn == nil {
		e.mu.Unlock()
		return 0, ErrClosed
	}
	conn := e.conn
	e.mu.Unlock()

	// Drain stale replies before issuing the command.
	for {
		select {
		case <-e.replies:
			continue
		default:
		}
		break
	}

	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		return 0, err
	}

	deadline := time.After(vlcReplyTimeout)
	for {
		select {
		case line, ok := <-e.replies:
			if !ok {
				return 0, ErrClosed
			}
			n, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
			if err != nil || math.IsNaN(n) {
				continue // chatter, keep waiting for the numeric reply
			}
			return n, nil
		case <-deadline:
			return 0, fmt.Errorf("vlc: no reply to %q", command)
		}
	}
}

func (e *VLC) writeLine(line string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.conn == nil {
		return ErrClosed
	}
	_, err := e.conn.Write([]byte(line + "\n"))
	return err
}

// Play implements Engine.
func (e *VLC) Play() error {
	e.mu.Lock()
	playing := e.playing
	e.mu.Unlock()
	if playing {
		return nil
	}
	// RC "pause" toggles; track commanded state to keep it directional.
	if err := e.writeLine("pause"); err != nil {
		return err
	}
	e.mu.Lock()
	e.playing = true
	e.mu.Unlock()
	return nil
}

// Pause implements Engine.
func (e *VLC) Pause() error {
	e.mu.Lock()
	playing := e.playing
	e.mu.Unlock()
	if !playing {
		return nil
	}
	if err := e.writeLine("pause"); err != nil {
		return err
	}
	e.mu.Lock()
	e.playing = false
	e.mu.Unlock()
	return nil
}

// Seek implements Engine.
func (e *VLC) Seek(seconds float64) error {
	if seconds < 0 {
		seconds = 0
	}
	return e.writeLine(fmt.Sprintf("seek %d", int64(seconds)))
}

// SetVolume implements Engine. The [0,1] range maps to VLC's 0-256 scale.
func (e *VLC) SetVolume(v float64) error {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return e.writeLine(fmt.Sprintf("volume %d", int(v*256)))
}

// SetMuted implements Engine. RC has no mute primitive, so mute is volume 0.
func (e *VLC) SetMuted(muted bool) error {
	if muted {
		return e.writeLine("volume 0")
	}
	return e.writeLine("volume 256")
}

// SelectAudioTrack implements Engine.
func (e *VLC) SelectAudioTrack(id string) error {
	n, err := strconv.Atoi(id)
	if err != nil {
		return fmt.Errorf("vlc: audio track id %q: %w", id, err)
	}
	return e.writeLine(fmt.Sprintf("atrack %d", n))
}

// SelectSubtitleTrack implements Engine. An empty id disables subtitles.
func (e *VLC) SelectSubtitleTrack(id string) error {
	if id == "" {
		return e.writeLine("strack -1")
	}
	n, err := strconv.Atoi(id)
	if err != nil {
		return fmt.Errorf("vlc: subtitle track id %q: %w", id, err)
	}
	return e.writeLine(fmt.Sprintf("strack %d", n))
}

// AddSubtitleTrack implements Engine. The RC interface cannot sideload
// caption files at runtime; the caller falls back to embedded tracks.
func (e *VLC) AddSubtitleTrack(SideloadedSubtitle) error {
	return ErrUnsupported
}

// Close implements Engine.
func (e *VLC) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		conn := e.conn
		cmd := e.cmd
		loaded := e.loaded
		e.mu.Unlock()

		close(e.pollStop)
		if !loaded {
			close(e.events)
			return
		}

		if conn != nil {
			_, _ = conn.Write([]byte("quit\n"))
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
	})
	return nil
}
