package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const (
	pidFilePermissions = 0o644
	pidDirPermissions  = 0o755
)

// hubRecord is what a running serve leaves in its PID file: the process to
// signal and the address it serves on.
type hubRecord struct {
	PID    int
	Listen string
}

// acquirePIDFile records rec at path under an exclusive flock, so a second
// serve on the same data directory fails fast. release removes the file and
// drops the lock.
func acquirePIDFile(path string, rec hubRecord) (release func(), err error) {
	if path == "" {
		return nil, errors.New("PID file path is empty, cannot determine data directory")
	}

	if err := os.MkdirAll(filepath.Dir(path), pidDirPermissions); err != nil {
		return nil, fmt.Errorf("creating PID file directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening PID file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		held, rerr := readPIDFile(path)
		if rerr == nil && held.Listen != "" {
			return nil, fmt.Errorf("another serve is already running on %s (PID %d)", held.Listen, held.PID)
		}

		return nil, fmt.Errorf("another serve is already running (could not lock %s)", path)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncating PID file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n%s\n", rec.PID, rec.Listen); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing PID file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("syncing PID file: %w", err)
	}

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}

// readPIDFile parses a hub record. The listen line is optional.
func readPIDFile(path string) (hubRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return hubRecord{}, fmt.Errorf("reading PID file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)

	var lines []string
	for sc.Scan() && len(lines) < 2 {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}

	if err := sc.Err(); err != nil {
		return hubRecord{}, fmt.Errorf("reading PID file: %w", err)
	}

	if len(lines) == 0 {
		return hubRecord{}, fmt.Errorf("invalid PID in %s: file is empty", path)
	}

	pid, err := strconv.Atoi(lines[0])
	if err != nil {
		return hubRecord{}, fmt.Errorf("invalid PID in %s: %w", path, err)
	}

	rec := hubRecord{PID: pid}
	if len(lines) > 1 {
		rec.Listen = lines[1]
	}

	return rec, nil
}

// signalHub sends sig to the hub recorded at pidPath. A PID file left behind
// by a dead hub is removed.
func signalHub(pidPath string, sig syscall.Signal) (hubRecord, error) {
	rec, err := readPIDFile(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return hubRecord{}, fmt.Errorf("no running hub found (no PID file at %s)", pidPath)
		}

		return hubRecord{}, err
	}

	proc, err := os.FindProcess(rec.PID)
	if err != nil {
		return rec, fmt.Errorf("finding process %d: %w", rec.PID, err)
	}

	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(pidPath)

		return rec, fmt.Errorf("hub (PID %d) is not running (stale PID file removed)", rec.PID)
	}

	if err := proc.Signal(sig); err != nil {
		return rec, fmt.Errorf("sending %s to hub (PID %d): %w", sig, rec.PID, err)
	}

	return rec, nil
}
