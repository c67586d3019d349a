package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// StampLayout formats the run stamp embedded in subject log names.
const StampLayout = "20060102-150405"

// SubjectLog is the append-only, per-subject, per-run log file. Tool output
// is written through Write; Step and Note add timestamped marker lines.
type SubjectLog struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// SubjectLogPath returns <dir>/<key>_<stamp>.log.
func SubjectLogPath(dir, key string, stamp time.Time) string {
	return filepath.Join(dir, key+"_"+stamp.Format(StampLayout)+".log")
}

// OpenSubjectLog creates dir if needed and opens the log for appending.
func OpenSubjectLog(dir, key string, stamp time.Time) (*SubjectLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := SubjectLogPath(dir, key, stamp)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open subject log: %w", err)
	}
	return &SubjectLog{path: path, file: f}, nil
}

// Path returns the file backing this log.
func (s *SubjectLog) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Write appends raw tool output.
func (s *SubjectLog) Write(p []byte) (int, error) {
	if s == nil {
		return len(p), nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return 0, os.ErrClosed
	}
	return s.file.Write(p)
}

// Step writes a "=== [label] event" marker line.
func (s *SubjectLog) Step(label, event string) {
	s.Note("=== [%s] %s", label, event)
}

// Note writes one timestamped line.
func (s *SubjectLog) Note(format string, args ...any) {
	if s == nil {
		return
	}
	line := fmt.Sprintf("%s %s\n",
		time.Now().UTC().Format(time.RFC3339),
		strings.TrimSpace(fmt.Sprintf(format, args...)),
	)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		_, _ = s.file.WriteString(line)
	}
}

// Close closes the underlying file. Further writes fail.
func (s *SubjectLog) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
