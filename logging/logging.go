// Package logging tees the stdlib logger to stdout and a capped log
// file, so a long-lived daemon can't fill the disk.
package logging

import (
	"io"
	"log"
	"os"
	"sync"
)

// One rotated backup (<path>.1) is kept alongside the live file.
const defaultMaxSize = 2 << 20 // 2MB

// LogFile writes to a single log file and rolls it over to <path>.1
// once it grows past the cap.
type LogFile struct {
	mu      sync.Mutex
	f       *os.File
	path    string
	written int64
	max     int64
}

// Setup points the stdlib logger at stdout plus a rotating file at path.
// The returned LogFile should be closed on shutdown.
func Setup(path string) (*LogFile, error) {
	lf, err := Open(path, defaultMaxSize)
	if err != nil {
		return nil, err
	}
	log.SetOutput(io.MultiWriter(os.Stdout, lf))
	return lf, nil
}

// Open opens path for appending. A leftover file already over the cap is
// rolled to the backup first, so restarts don't inherit a full file.
func Open(path string, maxSize int64) (*LogFile, error) {
	if info, err := os.Stat(path); err == nil && info.Size() > maxSize {
		os.Rename(path, path+".1")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	lf := &LogFile{f: f, path: path, max: maxSize}
	if info, err := f.Stat(); err == nil {
		lf.written = info.Size()
	}
	return lf, nil
}

func (l *LogFile) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := l.f.Write(p)
	l.written += int64(n)
	if l.written > l.max {
		l.rotate()
	}
	return n, err
}

// rotate rolls the live file to the backup. If a fresh file can't be
// opened, the old handle keeps writing so log lines aren't dropped.
func (l *LogFile) rotate() {
	os.Rename(l.path, l.path+".1")

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return
	}

	l.f.Close()
	l.f = f
	l.written = 0
}

func (l *LogFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
