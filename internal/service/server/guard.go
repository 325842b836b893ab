package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/lockdown/internal/logger"
)

// processInfo is the part of a process table entry the guard needs.
type processInfo struct {
	// pid is the process identifier.
	pid int
	// executable is the base executable name.
	executable string
}

// processLister snapshots the process table.
type processLister func() ([]processInfo, error)

// runningProcesses lists host processes via go-ps.
func runningProcesses() ([]processInfo, error) {
	processList, err := ps.Processes()
	if err != nil {
		return nil, err
	}

	result := make([]processInfo, 0, len(processList))
	for _, process := range processList {
		result = append(result, processInfo{pid: process.Pid(), executable: process.Executable()})
	}

	return result, nil
}

// ensureSingleInstance fails when another process runs the same executable.
// A process table that cannot be read is logged and ignored.
func ensureSingleInstance(ctx context.Context, list processLister) error {
	self, err := os.Executable()
	if err != nil {
		logger.WarnKV(ctx, "Unable to resolve own executable, skipping instance check", "error", err)

		return nil
	}

	processes, err := list()
	if err != nil {
		logger.WarnKV(ctx, "Unable to list processes, skipping instance check", "error", err)

		return nil
	}

	if pid, found := findOther(processes, os.Getpid(), filepath.Base(self)); found {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}

	return nil
}

// findOther returns the first process other than selfPID running name.
func findOther(processes []processInfo, selfPID int, name string) (int, bool) {
	for _, process := range processes {
		if process.pid == selfPID {
			continue
		}

		if sameExecutable(process.executable, name) {
			return process.pid, true
		}
	}

	return 0, false
}

// sameExecutable compares names, ignoring case on Windows.
func sameExecutable(a, b string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}

	return a == b
}
