package childproc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/multierr"
)

// sameExecutable compares process names case-insensitively, ignoring any
// directory and a trailing ".exe".
func sameExecutable(a, b string) bool {
	norm := func(s string) string {
		s = strings.ToLower(filepath.Base(s))
		return strings.TrimSuffix(s, ".exe")
	}
	return norm(a) == norm(b)
}

// matching returns every process named name, except the current one.
func matching(ctx context.Context, name string) ([]*process.Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}
	self := int32(os.Getpid())
	var out []*process.Process
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		pname, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if sameExecutable(pname, name) {
			out = append(out, p)
		}
	}
	return out, nil
}

// CountByName returns how many processes run the named executable.
func CountByName(ctx context.Context, name string) (int, error) {
	procs, err := matching(ctx, name)
	if err != nil {
		return 0, err
	}
	return len(procs), nil
}

// KillByName kills every process running the named executable and returns
// how many were killed. Stray helpers left by a crashed agent are removed
// this way before a new one is started.
func KillByName(ctx context.Context, name string) (int, error) {
	procs, err := matching(ctx, name)
	if err != nil {
		return 0, err
	}
	killed := 0
	var errs error
	for _, p := range procs {
		if err := p.KillWithContext(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("pid %d: %w", p.Pid, err))
			continue
		}
		killed++
	}
	return killed, errs
}
