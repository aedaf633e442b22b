// Package core saves metadata-driven forms and their child rows.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// Error codes are grouped by category:
//
// # Orchestration Errors (ORC001-ORC099)
//
// Errors raised while a save walks its parent and child statements:
//
//	ORC001 - Child save failed: A child record could not be saved
//	         Action: Earlier records were kept. Fix the record and save again
//	         Patterns: "child save"
//
//	ORC002 - Parent not saved: The record has no id and nothing to insert
//	         Action: Fill in the record before adding child records
//	         Patterns: "parent row has no id"
//
//	ORC003 - Missing id: The host did not return the new record's id
//	         Action: Please try again or contact support
//	         Patterns: "returned no row id"
//
// # Validation Errors (VAL001-VAL099)
//
// Errors related to field values:
//
//	VAL001 - Invalid date: Invalid date format detected
//	         Action: Use YYYY-MM-DD or MM/DD/YYYY
//	         Patterns: "invalid date"
//
//	VAL002 - Invalid number: Invalid number format detected
//	         Action: Remove currency symbols and use standard decimal format
//	         Patterns: "invalid number"
//
//	VAL003 - Required field: Required field is empty
//	         Action: Fill in every mandatory field
//	         Patterns: "required field"
//
//	VAL004 - Format mismatch: A value does not match the expected format
//	         Action: Check the highlighted fields
//	         Patterns: "does not match format", "fields are invalid"
//
//	VAL005 - Invalid yes/no: Value is not yes or no
//	         Action: Use yes or no
//	         Patterns: "invalid yes/no"
//
// # Execution Errors (EXE001-EXE099)
//
// Errors returned by the host while running a statement:
//
//	EXE001 - Not editable: You are not allowed to change this field
//	         Patterns: "not editable", "permission denied"
//	EXE002 - Duplicate: This value must be unique but already exists
//	         Patterns: "duplicate key", "unique constraint"
//	EXE003 - Reference missing: Referenced record does not exist
//	         Patterns: "foreign key"
//	EXE004 - Connection: Unable to reach the database
//	         Patterns: "connection refused", "connection reset"
//	EXE005 - Timeout: The operation timed out
//	         Patterns: "context deadline exceeded", "timeout"
//	EXE006 - Rejected: The database rejected the statement
//	         Patterns: "execute statement"
//
// # Session Errors (SES001-SES099)
//
//	SES001 - Session not found
//	SES002 - Save in progress
//	SES003 - Too many saves
//	SES004 - Too many sessions
//	SES005 - Record not found
//	SES006 - Form not found
//	SES007 - Child record not found
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches:
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns should be
// defined before general ones. Orchestration errors wrap execution errors,
// so ORC patterns come first.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Orchestration Errors (ORC001-ORC003)
	// =========================================================================
	{
		pattern: "child save",
		msg: UserMessage{
			Message: "A child record could not be saved",
			Action:  "Earlier records were kept. Fix the record and save again",
			Code:    "ORC001",
		},
	},
	{
		pattern: "parent row has no id",
		msg: UserMessage{
			Message: "The record has not been saved yet",
			Action:  "Fill in the record before adding child records",
			Code:    "ORC002",
		},
	},
	{
		pattern: "returned no row id",
		msg: UserMessage{
			Message: "The new record's id was not returned",
			Action:  "Please try again or contact support",
			Code:    "ORC003",
		},
	},

	// =========================================================================
	// Session Errors (SES001-SES007)
	// =========================================================================
	{
		pattern: "session not found",
		msg: UserMessage{
			Message: "Form session not found",
			Action:  "The session may have expired. Please reopen the form",
			Code:    "SES001",
		},
	},
	{
		pattern: "save already in progress",
		msg: UserMessage{
			Message: "A save is already running for this form",
			Action:  "Wait for it to finish before saving again",
			Code:    "SES002",
		},
	},
	{
		pattern: "too many concurrent saves",
		msg: UserMessage{
			Message: "System is busy processing other saves",
			Action:  "Please wait a moment and try again",
			Code:    "SES003",
		},
	},
	{
		pattern: "too many open sessions",
		msg: UserMessage{
			Message: "Too many forms are open",
			Action:  "Close a form and try again",
			Code:    "SES004",
		},
	},
	{
		pattern: "record not found",
		msg: UserMessage{
			Message: "Record not found",
			Action:  "It may have been deleted. Select another record",
			Code:    "SES005",
		},
	},
	{
		pattern: "form not found",
		msg: UserMessage{
			Message: "Form not found",
			Action:  "Verify the form id is correct",
			Code:    "SES006",
		},
	},
	{
		pattern: "child row not found",
		msg: UserMessage{
			Message: "Child record not found",
			Action:  "Reload the form and try again",
			Code:    "SES007",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001-VAL005)
	// =========================================================================
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Invalid date format detected",
			Action:  "Use YYYY-MM-DD or MM/DD/YYYY",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "Invalid number format detected",
			Action:  "Remove currency symbols and use standard decimal format",
			Code:    "VAL002",
		},
	},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Fill in every mandatory field",
			Code:    "VAL003",
		},
	},
	{
		pattern: "does not match format",
		msg: UserMessage{
			Message: "A value does not match the expected format",
			Action:  "Check the highlighted fields",
			Code:    "VAL004",
		},
	},
	{
		pattern: "fields are invalid",
		msg: UserMessage{
			Message: "Some fields are invalid",
			Action:  "Check the highlighted fields",
			Code:    "VAL004",
		},
	},
	{
		pattern: "invalid yes/no",
		msg: UserMessage{
			Message: "Value must be yes or no",
			Action:  "Use yes or no",
			Code:    "VAL005",
		},
	},

	// =========================================================================
	// Execution Errors (EXE001-EXE006)
	// =========================================================================
	{
		pattern: "not editable",
		msg: UserMessage{
			Message: "You are not allowed to change this field",
			Action:  "Ask the table owner for edit access",
			Code:    "EXE001",
		},
	},
	{
		pattern: "permission denied",
		msg: UserMessage{
			Message: "You are not allowed to change this record",
			Action:  "Ask the table owner for edit access",
			Code:    "EXE001",
		},
	},
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Change the value and save again",
			Code:    "EXE002",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Change the value and save again",
			Code:    "EXE002",
		},
	},
	{
		pattern: "foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Select an existing record for linked fields",
			Code:    "EXE003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to reach the database",
			Action:  "Please try again in a few moments",
			Code:    "EXE004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "EXE004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The operation timed out",
			Action:  "Please try again later",
			Code:    "EXE005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The operation timed out",
			Action:  "Please try again later",
			Code:    "EXE005",
		},
	},
	{
		pattern: "execute statement",
		msg: UserMessage{
			Message: "The database rejected the change",
			Action:  "Review your changes and try again",
			Code:    "EXE006",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the first matching pattern, or ERR000 when none matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
