package srv

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/natefinch/atomic"
)

// ErrSinkWrite is returned when produced content could not be delivered.
var ErrSinkWrite = errors.New("srv: sink write failed")

// FilePrefix marks a target that names a file.
const FilePrefix = "file:"

// FileTarget reports whether target names a file and returns its path. A
// "file:" target without a path is still a file target; writing it fails.
func FileTarget(target string) (string, bool) {
	if !strings.HasPrefix(target, FilePrefix) {
		return "", false
	}
	return strings.TrimPrefix(target, FilePrefix), true
}

// WriteFileAtomic replaces path with data so a reader never sees a partial
// section. An existing file keeps its permissions.
func WriteFileAtomic(path string, data []byte) error {
	if path == "" {
		return fmt.Errorf("%w: empty file path", ErrSinkWrite)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkWrite, err)
	}
	return nil
}

func writeAll(w io.Writer, data []byte) error {
	if w == nil {
		return fmt.Errorf("%w: no sink", ErrSinkWrite)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkWrite, err)
	}
	return nil
}
