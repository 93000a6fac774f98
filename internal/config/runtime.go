package config

import (
	"os"
	"sync/atomic"
)

// Session settings come from CLI flags for the lifetime of the process and
// are never written to the config file.
var (
	operator atomic.Pointer[string]
	readOnly atomic.Bool
)

// SetReadOnly makes mutating commands and API routes refuse to write.
func SetReadOnly(ro bool) {
	readOnly.Store(ro)
}

// IsReadOnly reports whether writes are disabled.
func IsReadOnly() bool {
	return readOnly.Load()
}

// SetOperator sets the name recorded as the source of change-log entries.
// An empty name falls back to $USER, then $USERNAME.
func SetOperator(op string) {
	if op == "" {
		op = os.Getenv("USER")
	}
	if op == "" {
		op = os.Getenv("USERNAME")
	}
	operator.Store(&op)
}

// GetOperator returns the operator, or "" before SetOperator is called.
func GetOperator() string {
	if op := operator.Load(); op != nil {
		return *op
	}
	return ""
}
