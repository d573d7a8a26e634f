package collector

import (
	"strconv"
	"time"

	"github.com/Guliveer/vitalis/sectionagent/internal/wmi"
)

// ticksPerSecond is the 100ns resolution of WMI time and raw perf counters.
const ticksPerSecond = 10_000_000

// epochDelta is the number of seconds between 1601-01-01 and 1970-01-01.
const epochDelta = 11_644_473_600

func prop(name, value string) wmi.Property {
	return wmi.Property{Name: name, Value: value}
}

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

func i64(v int64) string { return strconv.FormatInt(v, 10) }

func f64(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// sys100ns converts a wall-clock time into 100ns ticks since 1601, the unit
// of Timestamp_Sys100NS.
func sys100ns(t time.Time) string {
	return i64((t.Unix()+epochDelta)*ticksPerSecond + int64(t.Nanosecond()/100))
}

// cimDateTime formats a time as a CIM_DATETIME string
// (yyyymmddHHMMSS.mmmmmmsUUU).
func cimDateTime(t time.Time) string {
	_, offset := t.Zone()
	minutes := offset / 60
	sign := "+"
	if minutes < 0 {
		sign = "-"
		minutes = -minutes
	}
	return t.Format("20060102150405") + "." +
		leftPad(strconv.Itoa(t.Nanosecond()/1000), 6) +
		sign + leftPad(strconv.Itoa(minutes), 3)
}

func leftPad(s string, n int) string {
	for len(s) < n {
		s = "0" + s
	}
	return s
}
