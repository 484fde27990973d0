//go:build !windows

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/asheshgoplani/shelldeck/internal/logging"
)

// watchDumpSignal writes the log ring buffer to dir on SIGUSR1.
func watchDumpSignal(dir string) func() {
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-usr1:
				path := filepath.Join(dir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
				if err := logging.DumpRingBuffer(path); err != nil {
					logging.ForComponent(logging.CompWeb).Error("crash_dump_failed", slog.String("error", err.Error()))
				} else {
					logging.ForComponent(logging.CompWeb).Info("crash_dump_written", slog.String("path", path))
				}
			}
		}
	}()
	return func() {
		signal.Stop(usr1)
		close(done)
	}
}
