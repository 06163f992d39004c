package common

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsConnUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"wrapped unexpected eof", fmt.Errorf("read reply: %w", io.ErrUnexpectedEOF), true},
		{"closed", net.ErrClosed, true},
		{"reset", &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, true},
		{"refused", os.NewSyscallError("connect", syscall.ECONNREFUSED), true},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConnUnavailable(tt.err))
		})
	}
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(os.ErrDeadlineExceeded))
	assert.True(t, IsTimeout(fmt.Errorf("wrapped: %w", os.ErrDeadlineExceeded)))
	assert.False(t, IsTimeout(io.EOF))
}

func TestIsProdRuntime(t *testing.T) {
	t.Setenv(CliRuntime, "PROD")
	assert.True(t, IsProdRuntime())
	t.Setenv(CliRuntime, "dev")
	assert.False(t, IsProdRuntime())
}
