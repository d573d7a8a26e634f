package wmi

// Status is the outcome of one table query.
type Status int

const (
	// StatusOK means the query ran and produced a table.
	StatusOK Status = iota
	// StatusBadParam means the request was malformed; nothing was contacted.
	StatusBadParam
	// StatusError means the namespace was reachable but the query failed.
	StatusError
	// StatusFailConnect means the namespace could not be reached.
	StatusFailConnect
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBadParam:
		return "bad_param"
	case StatusError:
		return "error"
	case StatusFailConnect:
		return "fail_connect"
	default:
		return "unknown"
	}
}

// StatusColumn annotates every row of a table with the outcome of the attempt
// that produced it.
type StatusColumn int

const (
	ColumnOK StatusColumn = iota
	ColumnTimeout
)

// StatusColumnHeader is the header text of the appended column.
const StatusColumnHeader = "WMIStatus"

// Text returns the exact value written into the status column.
func (c StatusColumn) Text() string {
	switch c {
	case ColumnTimeout:
		return "Timeout"
	default:
		return "OK"
	}
}
