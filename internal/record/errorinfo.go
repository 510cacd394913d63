package record

import (
	"runtime"
	"runtime/debug"
)

// ErrorInfo is the error half of a record: what went wrong and where.
type ErrorInfo struct {
	Message string
	Trace   string
	File    string
	Line    int
}

// ErrorInfoFrom describes err as seen from the caller skip frames above
// ErrorInfoFrom (0 = the direct caller). The trace is the current goroutine's
// stack. It returns nil for a nil error.
func ErrorInfoFrom(err error, skip int) *ErrorInfo {
	if err == nil {
		return nil
	}
	info := &ErrorInfo{
		Message: err.Error(),
		Trace:   string(debug.Stack()),
	}
	if _, file, line, ok := runtime.Caller(skip + 1); ok {
		info.File = file
		info.Line = line
	}
	return info
}
