// Package spool keeps the output of recent collection cycles on disk.
// Each cycle is written as a timestamped file; the oldest files are dropped
// when the spool exceeds its size or file count limit.
package spool

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sectionagent/internal/srv"
)

const fileExt = ".out"

// Spool provides local file-based storage of agent output.
type Spool struct {
	dir       string
	maxSizeMB int
	keep      int
	logger    *zap.Logger
	mu        sync.Mutex
	now       func() time.Time
}

// New creates a spool at the given directory path.
// The directory is created if it does not exist.
func New(dir string, maxSizeMB, keep int, logger *zap.Logger) (*Spool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating spool directory: %w", err)
	}
	return &Spool{
		dir:       dir,
		maxSizeMB: maxSizeMB,
		keep:      keep,
		logger:    logger.Named("spool"),
		now:       time.Now,
	}, nil
}

// Store writes one cycle of output atomically and enforces the limits.
// Empty output is not stored.
func (s *Spool) Store(output string) error {
	if output == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	name := filepath.Join(s.dir, s.now().UTC().Format("20060102T150405.000000000")+fileExt)
	if err := srv.WriteFileAtomic(name, []byte(output)); err != nil {
		return err
	}
	s.enforceLimits()
	return nil
}

// Latest returns the most recent stored output.
func (s *Spool) Latest() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.files()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", os.ErrNotExist
	}
	data, err := os.ReadFile(files[len(files)-1])
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Count returns the number of spooled files.
func (s *Spool) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	files, _ := s.files()
	return len(files)
}

// files returns the spool files oldest first. Names sort chronologically.
// Must be called with s.mu held.
func (s *Spool) files() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, filepath.Join(s.dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// enforceLimits drops the oldest files beyond keep or maxSizeMB. The newest
// file is always kept.
// Must be called with s.mu held.
func (s *Spool) enforceLimits() {
	files, err := s.files()
	if err != nil {
		return
	}
	var total int64
	sizes := make([]int64, len(files))
	for i, f := range files {
		if info, err := os.Stat(f); err == nil {
			sizes[i] = info.Size()
			total += info.Size()
		}
	}

	limit := int64(s.maxSizeMB) * 1024 * 1024
	for i := 0; i < len(files)-1; i++ {
		overCount := s.keep > 0 && len(files)-i > s.keep
		overSize := s.maxSizeMB > 0 && total > limit
		if !overCount && !overSize {
			return
		}
		if err := os.Remove(files[i]); err != nil {
			s.logger.Warn("Failed to remove old spool file",
				zap.String("file", files[i]),
				zap.Error(err))
			continue
		}
		total -= sizes[i]
	}
}
