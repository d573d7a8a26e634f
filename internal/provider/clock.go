package provider

import "time"

// Clock supplies the time used by backoff and caching decisions.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock. time.Now carries a monotonic reading, so
// durations between two Now calls are immune to wall clock jumps.
var SystemClock Clock = systemClock{}
