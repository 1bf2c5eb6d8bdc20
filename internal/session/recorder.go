package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Recorder writes an asciicast v2 terminal recording (spec §4.1,
// §6). It is grounded on the teacher's internal/ssh/recorder.go
// per-session file-and-mutex shape, rewritten to emit the asciicast
// header/event format the spec requires instead of a plain-text log.
type Recorder struct {
	mu        sync.Mutex
	file      *os.File
	w         *bufio.Writer
	startTime time.Time
	buffer    []castEvent
}

type castHeader struct {
	Version   int               `json:"version"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Timestamp int64             `json:"timestamp"`
	Title     string            `json:"title"`
	Env       map[string]string `json:"env"`
}

// castEvent is [elapsed_seconds, "o", data].
type castEvent struct {
	elapsed float64
	data    string
}

func (e castEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.elapsed, "o", e.data})
}

// FlushThreshold is the buffered-event count at which the backend
// read loop forces a flush mid-session (spec §8 testable property 3).
const FlushThreshold = 50

// RecordingWidth/RecordingHeight are the asciicast header's fixed
// geometry (spec §4.1): the header always reports this size regardless
// of the PTY's actual negotiated dimensions.
const (
	RecordingWidth  = 220
	RecordingHeight = 100
)

// RecordingPath builds <record_root>/<username>/<asset_ip>.<timestamp>.cast
// (spec §4.1).
func RecordingPath(recordRoot, username, assetIP string, at time.Time) string {
	filename := fmt.Sprintf("%s.%s.cast", assetIP, at.Format("20060102150405"))
	return filepath.Join(recordRoot, username, filename)
}

// NewRecorder creates the recording file at path (creating parent
// directories as needed) and writes the asciicast header.
func NewRecorder(path string, width, height int, term, shell string) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording file: %w", err)
	}

	w := bufio.NewWriter(file)
	header := castHeader{
		Version:   2,
		Width:     width,
		Height:    height,
		Timestamp: time.Now().Unix(),
		Title:     "ssh",
		Env:       map[string]string{"TERM": term, "SHELL": shell},
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("marshal recording header: %w", err)
	}
	if _, err := w.Write(headerBytes); err != nil {
		file.Close()
		return nil, fmt.Errorf("write recording header: %w", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		file.Close()
		return nil, fmt.Errorf("write recording header: %w", err)
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return nil, fmt.Errorf("flush recording header: %w", err)
	}

	return &Recorder{file: file, w: w, startTime: time.Now()}, nil
}

// Append buffers one backend output chunk, flushing automatically
// once FlushThreshold events have accumulated.
func (r *Recorder) Append(data string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, castEvent{
		elapsed: time.Since(r.startTime).Seconds(),
		data:    data,
	})

	if len(r.buffer) >= FlushThreshold {
		return r.flushLocked()
	}
	return nil
}

// Flush writes any buffered events to disk immediately.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked()
}

func (r *Recorder) flushLocked() error {
	for _, ev := range r.buffer {
		line, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal recording event: %w", err)
		}
		if _, err := r.w.Write(line); err != nil {
			return fmt.Errorf("write recording event: %w", err)
		}
		if err := r.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write recording event: %w", err)
		}
	}
	r.buffer = r.buffer[:0]
	return r.w.Flush()
}

// Close flushes remaining events and closes the file.
func (r *Recorder) Close() error {
	if err := r.Flush(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}
