// Operational CSV log
//
// Append-only record of operations, errors and parameter changes, one
// CSV file per category, written off the control task's hot path: the
// coordinator hands records to a buffered channel and a background
// goroutine does the file I/O.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package oplog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"drillctl-go-migration/pkg/log"
)

// recordQueueCap bounds the in-flight record buffer; overflow drops
// the record rather than stall motion.
const recordQueueCap = 256

type record struct {
	file   string
	header []string
	row    []string
}

// Logger writes the operational CSV files.
type Logger struct {
	dir    string
	logger *log.Logger
	now    func() time.Time

	records chan record
	once    sync.Once
	done    chan struct{}

	mu    sync.Mutex
	files map[string]*csv.Writer
	fds   []*os.File
}

// New creates the CSV logger rooted at dir and starts its writer.
func New(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("oplog: %w", err)
	}
	l := &Logger{
		dir:     dir,
		logger:  log.Default().Sub("oplog"),
		now:     time.Now,
		records: make(chan record, recordQueueCap),
		done:    make(chan struct{}),
		files:   make(map[string]*csv.Writer),
	}
	go l.writeLoop()
	return l, nil
}

// SetNowFunc overrides the timestamp source (for testing).
func (l *Logger) SetNowFunc(now func() time.Time) { l.now = now }

func (l *Logger) stamp() string {
	return l.now().Format("2006-01-02 15:04:05")
}

// Operation records a normal machine event.
func (l *Logger) Operation(category, mode, event, result string) {
	l.submit(record{
		file:   "operations.csv",
		header: []string{"timestamp", "category", "mode", "event", "result"},
		row:    []string{l.stamp(), category, mode, event, result},
	})
}

// Error records a fault.
func (l *Logger) Error(category, message, state string) {
	l.submit(record{
		file:   "errors.csv",
		header: []string{"timestamp", "category", "message", "system_state"},
		row:    []string{l.stamp(), category, message, state},
	})
}

// ParameterChange records an engineering parameter edit.
func (l *Logger) ParameterChange(name, oldValue, newValue, user string) {
	l.submit(record{
		file:   "parameters.csv",
		header: []string{"timestamp", "parameter", "old_value", "new_value", "user"},
		row:    []string{l.stamp(), name, oldValue, newValue, user},
	})
}

func (l *Logger) submit(r record) {
	select {
	case l.records <- r:
	default:
		l.logger.Warn("record queue full, dropping %s entry", r.file)
	}
}

func (l *Logger) writeLoop() {
	defer close(l.done)
	for r := range l.records {
		if err := l.write(r); err != nil {
			l.logger.Error("write %s: %v", r.file, err)
		}
	}
}

func (l *Logger) write(r record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.files[r.file]
	if !ok {
		path := filepath.Join(l.dir, r.file)
		_, statErr := os.Stat(path)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		w = csv.NewWriter(f)
		if statErr != nil {
			if err := w.Write(r.header); err != nil {
				f.Close()
				return err
			}
		}
		l.files[r.file] = w
		l.fds = append(l.fds, f)
	}

	if err := w.Write(r.row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Close drains pending records and closes the files.
func (l *Logger) Close() error {
	l.once.Do(func() { close(l.records) })
	<-l.done

	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, f := range l.fds {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.fds = nil
	l.files = make(map[string]*csv.Writer)
	return firstErr
}
