package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/JonMunkholm/dynforms/internal/form"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "orchestration error wins over wrapped execution error",
			err:         &OrchestrationError{Index: 1, Committed: 1, Err: &ExecutionError{Statement: "INSERT", Err: errors.New("duplicate key")}},
			wantCode:    "ORC001",
			wantMessage: "A child record could not be saved",
		},
		{
			name:        "parent not saved",
			err:         ErrParentNotSaved,
			wantCode:    "ORC002",
			wantMessage: "The record has not been saved yet",
		},
		{
			name:        "missing inserted id",
			err:         &ExecutionError{Statement: "INSERT", Err: ErrNoInsertedID},
			wantCode:    "ORC003",
			wantMessage: "The new record's id was not returned",
		},
		{
			name:        "save in progress",
			err:         ErrSaveInProgress,
			wantCode:    "SES002",
			wantMessage: "A save is already running for this form",
		},
		{
			name:        "save limiter full",
			err:         ErrTooManySaves,
			wantCode:    "SES003",
			wantMessage: "System is busy processing other saves",
		},
		{
			name:        "wrapped session not found",
			err:         fmt.Errorf("%w: abc", ErrSessionNotFound),
			wantCode:    "SES001",
			wantMessage: "Form session not found",
		},
		{
			name:        "single validation error",
			err:         form.ValidationErrors{{Field: "Name", Message: "required field is empty"}},
			wantCode:    "VAL003",
			wantMessage: "Required field is empty",
		},
		{
			name:        "pattern mismatch",
			err:         form.ValidationErrors{{Field: "Code", Value: "x", Message: `value does not match format "^[A-Z]+$"`}},
			wantCode:    "VAL004",
			wantMessage: "A value does not match the expected format",
		},
		{
			name:        "column not editable",
			err:         fmt.Errorf("%w: Qty", ErrNotEditable),
			wantCode:    "EXE001",
			wantMessage: "You are not allowed to change this field",
		},
		{
			name:        "unique violation from the host",
			err:         &ExecutionError{Statement: "UPDATE", Err: errors.New("ERROR: duplicate key value violates unique constraint")},
			wantCode:    "EXE002",
			wantMessage: "This value must be unique but already exists",
		},
		{
			name:        "deadline exceeded",
			err:         context.DeadlineExceeded,
			wantCode:    "EXE005",
			wantMessage: "The operation timed out",
		},
		{
			name:        "generic rejection",
			err:         &ExecutionError{Statement: "UPDATE", Err: errors.New("syntax error at or near")},
			wantCode:    "EXE006",
			wantMessage: "The database rejected the change",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("DUPLICATE KEY value violates"),
			wantCode:    "EXE002",
			wantMessage: "This value must be unique but already exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrSaveInProgress)

	expected := "A save is already running for this form (Code: SES002). Wait for it to finish before saving again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error is not user facing", err: nil, want: false},
		{name: "known error is user facing", err: ErrRecordNotFound, want: true},
		{name: "unknown error is not user facing", err: errors.New("random internal error xyz"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := &ExecutionError{Statement: "DELETE", Err: errors.New("foreign key violation")}
		userErr := NewUserError(techErr)

		if userErr.Error() != "Referenced record does not exist" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if userErr.User.Code != "EXE003" {
			t.Errorf("Code = %q, want EXE003", userErr.User.Code)
		}

		var ee *ExecutionError
		if !errors.As(userErr, &ee) {
			t.Error("Unwrap() should return original error")
		}
	})
}
