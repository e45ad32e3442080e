package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	cause := errors.New("connection reset")

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "message only",
			err:      &NotFoundError{Message: "no recording files found"},
			expected: "no recording files found",
		},
		{
			name:     "message with cause",
			err:      &TransferError{Op: "download", Message: "download failed", Err: cause},
			expected: "download failed: connection reset",
		},
		{
			name:     "cause only",
			err:      &AuthError{Err: cause},
			expected: "connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
		{"not found", &NotFoundError{Message: "x"}, KindNotFound},
		{"validation", &ValidationError{Message: "x"}, KindValidation},
		{"transfer", &TransferError{Message: "x"}, KindTransfer},
		{"notification", &NotificationError{Message: "x"}, KindNotification},
		{"wrapped auth", fmt.Errorf("upload: %w", &AuthError{Message: "token revoked"}), KindAuth},
		{"auth inside transfer", &TransferError{Message: "upload failed", Err: &AuthError{Message: "expired"}}, KindAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("step: %w", &TransferError{Message: "write failed", Err: cause})

	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to find the wrapped cause")
	}
	if !IsTransfer(err) {
		t.Error("Expected IsTransfer to be true")
	}
	if IsAuth(err) {
		t.Error("Expected IsAuth to be false")
	}
}
