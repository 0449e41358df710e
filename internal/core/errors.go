package core

// errors.go maps technical errors onto user-facing messages with stable
// support codes.
//
// # Error Codes Reference
//
// Database errors (DB001-DB099):
//
//	DB001 - Duplicate key: a record with this ID already exists
//	DB002 - Unique constraint: this value must be unique but already exists
//	DB003 - Foreign key: referenced record does not exist
//	DB004 - Connection refused: unable to reach the database
//	DB005 - Timeout: operation timed out
//	DB006 - Deadlock: database was busy with conflicting operations
//
// Validation errors (VAL001-VAL099):
//
//	VAL001 - Invalid date format
//	VAL002 - Invalid number format
//	VAL003 - Required field is empty
//
// File errors (FILE001-FILE099):
//
//	FILE001 - Empty file
//	FILE002 - Legacy Excel format (.xls) not supported
//	FILE003 - No header row found
//	FILE004 - File could not be read
//
// Import errors (IMP001-IMP099):
//
//	IMP001 - This file was already imported
//	IMP002 - Too many imports in progress
//	IMP003 - Request cancelled or timed out
//
// Rate limiting (RATE001). Fallback is ERR000; when a user reports
// ERR000 check the application logs for the original error.
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns sit above general ones.

import (
	"fmt"
	"strings"
)

// UserMessage is what ends up in an API error payload: what happened,
// what to do about it, and a code support staff can look up.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// Database constraint and connection errors (DB001-DB006)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Review the duplicate rows reported for this import",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries in your file",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Check for duplicate entries in your file",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Import the inventory file before the order file",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB006",
		},
	},

	// =========================================================================
	// Validation errors (VAL001-VAL003)
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
			Action:  "Remove currency symbols and use plain decimals",
			Code:    "VAL002",
		},
	},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "A required field is empty",
			Action:  "Ensure every row fills the required columns",
			Code:    "VAL003",
		},
	},

	// =========================================================================
	// File errors (FILE001-FILE004)
	// =========================================================================
	{
		pattern: "file is empty",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Upload a file with at least a header row and one data row",
			Code:    "FILE001",
		},
	},
	{
		pattern: "legacy .xls",
		msg: UserMessage{
			Message: "Legacy Excel files are not supported",
			Action:  "Re-save the file as .xlsx or .csv and upload again",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no header row",
		msg: UserMessage{
			Message: "No header row was found in the file",
			Action:  "Ensure the first non-empty row contains column names",
			Code:    "FILE003",
		},
	},
	{
		pattern: "read delimited file",
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Check that the file is a valid CSV, TSV, or XLSX export",
			Code:    "FILE004",
		},
	},
	{
		pattern: "open workbook",
		msg: UserMessage{
			Message: "The workbook could not be opened",
			Action:  "Re-export the file from your spreadsheet application",
			Code:    "FILE004",
		},
	},

	// =========================================================================
	// Import lifecycle errors (IMP001-IMP003)
	// =========================================================================
	{
		pattern: "already imported",
		msg: UserMessage{
			Message: "This exact file was already imported",
			Action:  "If the data changed, re-export the file and upload the new version",
			Code:    "IMP001",
		},
	},
	{
		pattern: "too many concurrent imports",
		msg: UserMessage{
			Message: "Too many imports are running right now",
			Action:  "Wait a moment and try again",
			Code:    "IMP002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The request was cancelled",
			Action:  "Please try again",
			Code:    "IMP003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "IMP003",
		},
	},

	// =========================================================================
	// Rate limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error into a user-facing message. The
// first matching pattern wins; unmatched errors fall back to ERR000.
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

// FormatUserError renders "Message (Code: XXX). Action" for display.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// UserError pairs the original error, kept for logs, with the mapped
// user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string { return e.User.Message }

func (e *UserError) Unwrap() error { return e.Technical }

func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
