package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func resetSession(t *testing.T) {
	t.Helper()
	operator.Store(nil)
	readOnly.Store(false)
	t.Cleanup(func() {
		operator.Store(nil)
		readOnly.Store(false)
	})
}

func TestOperator(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		user     string
		username string
		want     string
	}{
		{"explicit", "alice", "bob", "", "alice"},
		{"from USER", "", "bob", "carol", "bob"},
		{"from USERNAME", "", "", "carol", "carol"},
		{"nothing", "", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetSession(t)
			t.Setenv("USER", tt.user)
			t.Setenv("USERNAME", tt.username)
			SetOperator(tt.op)
			assert.Equal(t, tt.want, GetOperator())
		})
	}
}

func TestGetOperatorUnset(t *testing.T) {
	resetSession(t)
	assert.Equal(t, "", GetOperator())
}

func TestReadOnly(t *testing.T) {
	resetSession(t)
	assert.False(t, IsReadOnly())
	SetReadOnly(true)
	assert.True(t, IsReadOnly())
	SetReadOnly(false)
	assert.False(t, IsReadOnly())
}
