package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

// startWatchLoop runs watchLoop against a temp directory and returns the
// descriptor path plus a cancel that waits for the loop to exit.
func startWatchLoop(t *testing.T, evaluate func()) (string, func()) {
	t.Helper()
	dir := t.TempDir()

	descPath := filepath.Join(dir, "env.cue")
	if err := os.WriteFile(descPath, []byte("description: \"v0\"\n"), 0o644); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := watcher.Add(dir); err != nil {
		t.Fatalf("watcher.Add: %v", err)
	}

	reload := make(chan struct{}, 1)
	signalReload := func() {
		select {
		case reload <- struct{}{}:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watchLoop(ctx, watcher, reload, signalReload, evaluate) }()

	stop := func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("watchLoop: %v", err)
		}
		watcher.Close()
	}
	return descPath, stop
}

func TestWatchLoopSerializesEvaluations(t *testing.T) {
	var runs, overlaps, busy int32
	evaluate := func() {
		if !atomic.CompareAndSwapInt32(&busy, 0, 1) {
			atomic.AddInt32(&overlaps, 1)
			return
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&runs, 1)
		atomic.StoreInt32(&busy, 0)
	}

	descPath, stop := startWatchLoop(t, evaluate)

	// A burst of rapid rewrites must never produce overlapping runs.
	for i := 1; i <= 5; i++ {
		content := fmt.Sprintf("description: \"v%d\"\n", i)
		if err := os.WriteFile(descPath, []byte(content), 0o644); err != nil {
			t.Fatalf("rewrite descriptor: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(700 * time.Millisecond)
	stop()

	if atomic.LoadInt32(&runs) == 0 {
		t.Fatal("expected at least one evaluation")
	}
	if n := atomic.LoadInt32(&overlaps); n != 0 {
		t.Errorf("%d overlapping evaluations", n)
	}
}

func TestWatchLoopRunsOnReloadSignal(t *testing.T) {
	var runs int32
	evaluate := func() { atomic.AddInt32(&runs, 1) }

	dir := t.TempDir()
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		t.Fatalf("watcher.Add: %v", err)
	}

	reload := make(chan struct{}, 1)
	reload <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watchLoop(ctx, watcher, reload, func() {}, evaluate) }()

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&runs) == 0 {
		select {
		case <-deadline:
			t.Fatal("reload signal did not trigger an evaluation")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("watchLoop: %v", err)
	}
}
