package srv

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadCommandLine is returned for an empty or malformed command line.
var ErrBadCommandLine = errors.New("srv: bad command line")

// CommandLine is the request metadata "<id> <section> [args...]". It is
// carried through for tracing only and never changes what is produced.
type CommandLine struct {
	ID      string
	Section string
	Args    []string
	Raw     string
}

// ParseCommandLine splits a request command line.
func ParseCommandLine(line string) (CommandLine, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return CommandLine{}, fmt.Errorf("%w: empty", ErrBadCommandLine)
	}
	cl := CommandLine{ID: fields[0], Raw: line}
	if len(fields) > 1 {
		cl.Section = fields[1]
		cl.Args = fields[2:]
	}
	return cl, nil
}

// String returns "<id> <section>" for logging.
func (c CommandLine) String() string {
	return strings.TrimSpace(c.ID + " " + c.Section)
}
