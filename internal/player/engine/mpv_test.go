// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build unix

package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/playbackd/internal/player/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ipcPeer stands in for the player's IPC endpoint. The engine creates the
// socket directory itself, so the peer watches for it and listens on the
// socket before the engine's dial retries run out.
func ipcPeer(t *testing.T, socketDir string) <-chan string {
	t.Helper()
	ch := make(chan string, 16)
	go func() {
		var sock string
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) && sock == "" {
			if matches, _ := filepath.Glob(filepath.Join(socketDir, "playbackd-mpv-*")); len(matches) > 0 {
				sock = filepath.Join(matches[0], "ipc.sock")
			}
			time.Sleep(10 * time.Millisecond)
		}
		if sock == "" {
			return
		}
		ln, err := net.Listen("unix", sock)
		if err != nil {
			return
		}
		defer func() { _ = ln.Close() }()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

func TestMPVLoadIssuesInitialCommandsAndReturns(t *testing.T) {
	socketDir := t.TempDir()
	lines := ipcPeer(t, socketDir)

	// The stub binary exits immediately; Load only needs the IPC socket.
	e := NewMPV(MPVOptions{Bin: "sleep", SocketDir: socketDir})
	src := model.Source{URL: "http://provider.example/movie/u/p/9.mkv", ContentType: model.ContentMovie}

	done := make(chan error, 1)
	go func() { done <- e.Load(context.Background(), src) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(8 * time.Second):
		t.Fatal("Load did not return")
	}
	defer func() { _ = e.Close(context.Background()) }()

	var commands []string
	for i := 0; i < 4; i++ {
		var cmd struct {
			Command []any `json:"command"`
		}
		require.NoError(t, json.Unmarshal([]byte(recvLine(t, lines)), &cmd))
		require.NotEmpty(t, cmd.Command)
		commands = append(commands, cmd.Command[0].(string))
	}
	assert.Equal(t, []string{"observe_property", "observe_property", "observe_property", "loadfile"}, commands)
}

func TestMPVLoadFailureResetsAttachGuard(t *testing.T) {
	e := NewMPV(MPVOptions{Bin: "/nonexistent-player-binary", SocketDir: t.TempDir()})
	err := e.Load(context.Background(), model.Source{URL: "http://x/y.ts", ContentType: model.ContentMovie})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "already attached")

	err = e.Load(context.Background(), model.Source{URL: "http://x/y.ts", ContentType: model.ContentMovie})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "already attached")
	_ = e.Close(context.Background())
}
