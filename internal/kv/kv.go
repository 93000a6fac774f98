// Package kv provides the durable key-value store used for element backups,
// saved templates and document snapshots.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrNotFound is returned by Get when a key is absent.
var ErrNotFound = errors.New("key not found")

// Store is a string-keyed blob store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists keys with the given prefix in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// StoreError wraps a backend failure with its operation and key.
type StoreError struct {
	Backend   string
	Operation string
	Key       string
	Err       error
	Retryable bool
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("kv %s: %s %q failed: %v", e.Backend, e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("kv %s: %s failed: %v", e.Backend, e.Operation, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the operation may succeed when repeated.
func (e *StoreError) IsRetryable() bool {
	return e.Retryable
}

func newStoreError(backend, op, key string, err error) *StoreError {
	return &StoreError{
		Backend:   backend,
		Operation: op,
		Key:       key,
		Err:       err,
		Retryable: isTransient(err),
	}
}

// CircuitOpenError is returned while a breaker is refusing writes.
type CircuitOpenError struct {
	Name string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("kv %q: circuit breaker open, writes temporarily refused", e.Name)
}

// IsRetryable reports whether err is worth repeating.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) {
		return false
	}
	var open *CircuitOpenError
	if errors.As(err, &open) {
		return false
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Retryable
	}
	return isTransient(err)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"database is locked",
		"busy",
		"timeout",
		"try again",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// GetJSON decodes the value stored under key into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("kv: decode %q: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %q: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
