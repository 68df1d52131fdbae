package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"connection refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, true},
		{"broken pipe", fmt.Errorf("write: %w", syscall.EPIPE), true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"net timeout", timeoutErr{}, true},
		{"grpc unavailable", status.Error(grpccodes.Unavailable, "down"), true},
		{"grpc deadline", status.Error(grpccodes.DeadlineExceeded, "slow"), true},
		{"grpc aborted", status.Error(grpccodes.Aborted, "conflict"), true},
		{"grpc exhausted", status.Error(grpccodes.ResourceExhausted, "busy"), true},
		{"grpc invalid argument", status.Error(grpccodes.InvalidArgument, "bad"), false},
		{"grpc not found", status.Error(grpccodes.NotFound, "missing"), false},
		{"canceled", context.Canceled, false},
		{"collection missing", ErrCollectionNotFound, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransientError(tt.err))
		})
	}
}

func TestValidateCollectionName(t *testing.T) {
	for _, name := range []string{"code_chunks", "a", "abc_123"} {
		assert.NoError(t, ValidateCollectionName(name), name)
	}
	for _, name := range []string{"", "Code", "with-dash", "a b", string(make([]byte, 65))} {
		assert.ErrorIs(t, ValidateCollectionName(name), ErrInvalidCollectionName, name)
	}
}
