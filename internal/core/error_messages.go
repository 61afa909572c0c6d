// Package core implements the member import pipeline: ingestion, column
// mapping, row transformation and sequential submission.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the maximum upload size
//	          Patterns: "file too large"
//	FILE002 - Invalid CSV: File is not a valid CSV
//	          Patterns: "invalid csv"
//	FILE003 - Unsupported format: Only .csv, .xlsx and .xls files are accepted
//	          Patterns: "unsupported file format"
//	FILE004 - No file: No file was selected
//	          Patterns: "no file provided"
//	FILE005 - No headers: The file has no header row
//	          Patterns: "no header row"
//	FILE006 - No rows: The file has a header row but no data
//	          Patterns: "no data rows"
//	FILE007 - Bad workbook: The workbook could not be read
//	          Patterns: "workbook"
//
// # Mapping Errors (MAP001-MAP099)
//
//	MAP001 - Mapping incomplete: Name columns are not mapped
//	         Patterns: "mapping incomplete"
//	MAP002 - Unknown column: Mapping names a column not in the file
//	         Patterns: "unknown column"
//	MAP003 - Unknown field: Mapping names a field that does not exist
//	         Patterns: "unknown field"
//	MAP004 - Preset not found
//	         Patterns: "preset not found"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Required field: A required value is empty
//	         Patterns: "is required"
//
// # Submission Errors (SUB001-SUB099)
//
//	SUB001 - Duplicate: The member already exists
//	         Patterns: "already exists", "409 conflict"
//	SUB002 - Not authorized: The member service rejected our credentials
//	         Patterns: "unauthorized", "forbidden"
//	SUB003 - Service unavailable: The member service could not be reached
//	         Patterns: "remote service unavailable", "connection refused"
//	SUB004 - Timeout: The member service did not respond in time
//	         Patterns: "timeout", "deadline exceeded"
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - System busy: Too many imports in progress
//	         Patterns: "too many concurrent imports"
//	IMP002 - Import not found: The run id is unknown or expired
//	         Patterns: "import not found"
//	IMP003 - History disabled: No history store is configured
//	         Patterns: "history is not configured"
//	IMP004 - Request cancelled
//	         Patterns: "context canceled"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Support staff should check the
// application logs for the original error.
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns should be
// defined before general ones.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	// =========================================================================
	// File Errors (FILE001-FILE007)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "The file exceeds the maximum upload size",
			Action:  "Split the file into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure the file is comma-separated and saved as CSV",
			Code:    "FILE002",
		},
	},
	{
		pattern: "unsupported file format",
		msg: UserMessage{
			Message: "This file type is not supported",
			Action:  "Upload a .csv, .xlsx or .xls file",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a file to import",
			Code:    "FILE004",
		},
	},
	{
		pattern: "no header row",
		msg: UserMessage{
			Message: "The file has no header row",
			Action:  "Add a first row naming each column",
			Code:    "FILE005",
		},
	},
	{
		pattern: "no data rows",
		msg: UserMessage{
			Message: "The file contains no member rows",
			Action:  "Add at least one row below the header",
			Code:    "FILE006",
		},
	},
	{
		pattern: "workbook",
		msg: UserMessage{
			Message: "The workbook could not be read",
			Action:  "Re-save the file as .xlsx or export it as CSV",
			Code:    "FILE007",
		},
	},

	// =========================================================================
	// Mapping Errors (MAP001-MAP004)
	// =========================================================================
	{
		pattern: "mapping incomplete",
		msg: UserMessage{
			Message: "Name columns are not mapped",
			Action:  "Map Full Name, or both First Name and Last Name",
			Code:    "MAP001",
		},
	},
	{
		pattern: "unknown column",
		msg: UserMessage{
			Message: "The mapping refers to a column that is not in the file",
			Action:  "Check the column names in your mapping",
			Code:    "MAP002",
		},
	},
	{
		pattern: "unknown field",
		msg: UserMessage{
			Message: "The mapping refers to an unknown member field",
			Action:  "Choose a field from the field list",
			Code:    "MAP003",
		},
	},
	{
		pattern: "preset not found",
		msg: UserMessage{
			Message: "Mapping preset not found",
			Action:  "Refresh the preset list and try again",
			Code:    "MAP004",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001)
	// =========================================================================
	{
		pattern: "is required",
		msg: UserMessage{
			Message: "A required value is empty",
			Action:  "Fill in the missing values and import those rows again",
			Code:    "VAL001",
		},
	},

	// =========================================================================
	// Submission Errors (SUB001-SUB004)
	// =========================================================================
	{
		pattern: "already exists",
		msg: UserMessage{
			Message: "This member already exists",
			Action:  "Remove the row or update the existing member",
			Code:    "SUB001",
		},
	},
	{
		pattern: "409 conflict",
		msg: UserMessage{
			Message: "This member already exists",
			Action:  "Remove the row or update the existing member",
			Code:    "SUB001",
		},
	},
	{
		pattern: "unauthorized",
		msg: UserMessage{
			Message: "The member service rejected the request",
			Action:  "Check the API key configured for the member service",
			Code:    "SUB002",
		},
	},
	{
		pattern: "forbidden",
		msg: UserMessage{
			Message: "The member service rejected the request",
			Action:  "Check the organisation and branch you are importing into",
			Code:    "SUB002",
		},
	},
	{
		pattern: "remote service unavailable",
		msg: UserMessage{
			Message: "The member service could not be reached",
			Action:  "Please try again in a few moments",
			Code:    "SUB003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "The member service could not be reached",
			Action:  "Please try again in a few moments",
			Code:    "SUB003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The member service did not respond in time",
			Action:  "Please try again later",
			Code:    "SUB004",
		},
	},
	{
		pattern: "deadline exceeded",
		msg: UserMessage{
			Message: "The member service did not respond in time",
			Action:  "Please try again later",
			Code:    "SUB004",
		},
	},

	// =========================================================================
	// Import Errors (IMP001-IMP004)
	// =========================================================================
	{
		pattern: "too many concurrent imports",
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "IMP001",
		},
	},
	{
		pattern: "import not found",
		msg: UserMessage{
			Message: "Import not found",
			Action:  "The import may have expired. Check the import history",
			Code:    "IMP002",
		},
	},
	{
		pattern: "history is not configured",
		msg: UserMessage{
			Message: "Import history is not available",
			Action:  "Ask an administrator to configure the database",
			Code:    "IMP003",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "IMP004",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
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

// defaultMessage is returned when no pattern matches (ERR000).
// This is the fallback for unexpected errors. Support staff should check
// application logs for the original technical error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	err := errors.New("remote: 409 Conflict: member already exists")
//	msg := MapError(err)
//	// msg.Code == "SUB001"
//	// msg.Message == "This member already exists"
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
//
// Example output: "This member already exists (Code: SUB001). Remove the row or update the existing member"
//
// This is the primary function for displaying errors to end users.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern and should be shown to users.
// Returns true if the error matches a specific pattern (not the generic ERR000 fallback).
// Use this to decide whether to show the raw error or the mapped user message.
//
// Example:
//
//	if IsUserFacing(err) {
//	    showToUser(FormatUserError(err))
//	} else {
//	    log.Error(err) // Log technical error
//	    showToUser("An error occurred. Please try again.")
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// WrapWithUserMessage wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
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

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
// The returned UserError preserves the original technical error for logging via Unwrap(),
// while providing a clean user message via Error().
//
// Returns nil if err is nil.
//
// Example:
//
//	ue := NewUserError(err)
//	log.Error(ue.Technical)   // Log original error
//	fmt.Println(ue.Error())   // Show "This member already exists"
//	fmt.Println(ue.User.Code) // Show "SUB001"
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
