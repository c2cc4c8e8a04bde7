// Package apperr maps internal errors to messages shown to users.
//
// # Error Codes Reference
//
// Each message carries a code users can quote to support staff.
//
// # Parse Errors (PARSE001-PARSE099)
//
//	PARSE001 - Parse cancelled: the parse was cancelled before it finished
//	           Action: Upload the file again when ready
//	           Matches: csvparse.ErrParseCancelled, "parse cancelled"
//
//	PARSE002 - Parse failed: the file could not be parsed
//	           Action: Check the delimiter and quote settings and try again
//	           Matches: *csvparse.ParseError, "parse failed"
//
//	PARSE003 - Unsupported encoding: the chosen text encoding is unknown
//	           Action: Save the file as UTF-8 or pick another encoding
//	           Matches: csvparse.ErrUnsupportedEncoding, "unsupported encoding"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: the input exceeds the size limit
//	          Action: Split the file into smaller files
//	          Matches: csvparse.ErrInputTooLarge, "file too large"
//
//	FILE004 - No file: no file or text was provided
//	          Action: Select a CSV file or paste its contents
//	          Matches: ErrNoInput, "no file provided"
//
//	FILE005 - Empty file: the input has no rows
//	          Action: Upload a file with a header row and data rows
//	          Matches: "empty file"
//
// # Mapping Errors (MAP001-MAP099)
//
//	MAP001 - Mapping incomplete: required fields have no source column
//	         Action: Map every required field before validating
//	         Matches: *mapping.MappingIncompleteError, "mapping incomplete"
//
//	MAP002 - Bad column: a mapping points outside the file's columns
//	         Action: Pick a column that exists in the file
//	         Matches: *mapping.IndexError, "out of range (file has"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Rows invalid: some rows still have errors
//	         Action: Fix or remove the highlighted rows before submitting
//	         Matches: *validate.RowsInvalidError, "invalid row(s)"
//
//	VAL002 - Unknown column: the field is not part of the schema
//	         Action: Refresh the page and pick a listed field
//	         Matches: schema.ErrUnknownColumn, "unknown column"
//
//	VAL003 - Row not found: the row index is out of range
//	         Action: Refresh the results and try again
//	         Matches: validate.ErrRowOutOfRange, "row index out of range"
//
// # Session Errors (SES001-SES099)
//
//	SES001 - Session not found: the import session expired or was closed
//	         Action: Start a new import
//	         Matches: ErrSessionNotFound, "session not found"
//
//	SES002 - System busy: too many files are being parsed
//	         Action: Wait a moment and try again
//	         Matches: ErrTooManySessions, "too many concurrent"
//
//	SES003 - Wrong step: the action is not available at this step
//	         Action: Finish the current step first
//	         Matches: ErrWrongStep, "not allowed in step"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// Typed and sentinel errors are matched first with errors.As and errors.Is.
// Anything left is matched case-insensitively against the text patterns;
// the first match wins.
package apperr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/csvmapper/internal/csvparse"
	"github.com/JonMunkholm/csvmapper/internal/mapping"
	"github.com/JonMunkholm/csvmapper/internal/schema"
	"github.com/JonMunkholm/csvmapper/internal/validate"
)

// Errors owned by the outer layers. They live here so that session and web
// can share them without importing each other.
var (
	ErrNoInput         = errors.New("no file provided")
	ErrEmptyInput      = errors.New("empty file")
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("too many concurrent parses, please try again later")
	ErrWrongStep       = errors.New("action not allowed in step")
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgCancelled = UserMessage{
		Message: "The parse was cancelled",
		Action:  "Upload the file again when ready",
		Code:    "PARSE001",
	}
	msgParseFailed = UserMessage{
		Message: "Could not parse file",
		Action:  "Check the delimiter and quote settings and try again",
		Code:    "PARSE002",
	}
	msgEncoding = UserMessage{
		Message: "Unsupported text encoding",
		Action:  "Save the file as UTF-8 or pick another encoding",
		Code:    "PARSE003",
	}
	msgTooLarge = UserMessage{
		Message: "File exceeds the maximum size",
		Action:  "Split the file into smaller files",
		Code:    "FILE001",
	}
	msgNoInput = UserMessage{
		Message: "No file was provided",
		Action:  "Select a CSV file or paste its contents",
		Code:    "FILE004",
	}
	msgEmpty = UserMessage{
		Message: "The file is empty",
		Action:  "Upload a file with a header row and data rows",
		Code:    "FILE005",
	}
	msgMappingIncomplete = UserMessage{
		Message: "Some required fields are not mapped",
		Action:  "Map every required field before validating",
		Code:    "MAP001",
	}
	msgBadIndex = UserMessage{
		Message: "The selected column does not exist in the file",
		Action:  "Pick a column that exists in the file",
		Code:    "MAP002",
	}
	msgRowsInvalid = UserMessage{
		Message: "Some rows still have errors",
		Action:  "Fix or remove the highlighted rows before submitting",
		Code:    "VAL001",
	}
	msgUnknownColumn = UserMessage{
		Message: "Unknown field",
		Action:  "Refresh the page and pick a listed field",
		Code:    "VAL002",
	}
	msgRowRange = UserMessage{
		Message: "Row not found",
		Action:  "Refresh the results and try again",
		Code:    "VAL003",
	}
	msgNoSession = UserMessage{
		Message: "Import session not found",
		Action:  "The session may have expired. Please start a new import",
		Code:    "SES001",
	}
	msgBusy = UserMessage{
		Message: "System is busy parsing other files",
		Action:  "Please wait a moment and try again",
		Code:    "SES002",
	}
	msgWrongStep = UserMessage{
		Message: "This action is not available at the current step",
		Action:  "Finish the current step first",
		Code:    "SES003",
	}
)

// defaultMessage is returned when nothing matches (ERR000). Support staff
// should check the logs for the technical error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is the fallback for errors that lost their type, such as
// ones rebuilt from text. Specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{"parse cancelled", msgCancelled},
	{"unsupported encoding", msgEncoding},
	{"file too large", msgTooLarge},
	{"exceeds maximum size", msgTooLarge},
	{"parse failed", msgParseFailed},
	{"no file provided", msgNoInput},
	{"empty file", msgEmpty},
	{"mapping incomplete", msgMappingIncomplete},
	{"out of range (file has", msgBadIndex},
	{"invalid row(s)", msgRowsInvalid},
	{"unknown column", msgUnknownColumn},
	{"row index out of range", msgRowRange},
	{"session not found", msgNoSession},
	{"too many concurrent", msgBusy},
	{"not allowed in step", msgWrongStep},
	{"context canceled", msgCancelled},
}

// MapError converts an error to a user-friendly message. A nil error gives
// the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	if msg, ok := matchType(err); ok {
		return msg
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

func matchType(err error) (UserMessage, bool) {
	var (
		mie *mapping.MappingIncompleteError
		ie  *mapping.IndexError
		rie *validate.RowsInvalidError
		pe  *csvparse.ParseError
	)
	switch {
	case errors.Is(err, csvparse.ErrParseCancelled):
		return msgCancelled, true
	case errors.Is(err, csvparse.ErrUnsupportedEncoding):
		return msgEncoding, true
	case errors.Is(err, csvparse.ErrInputTooLarge):
		return msgTooLarge, true
	case errors.As(err, &pe):
		return msgParseFailed, true
	case errors.Is(err, ErrNoInput):
		return msgNoInput, true
	case errors.Is(err, ErrEmptyInput):
		return msgEmpty, true
	case errors.As(err, &mie):
		m := msgMappingIncomplete
		m.Message = "Required fields are not mapped: " + strings.Join(mie.Labels, ", ")
		return m, true
	case errors.As(err, &ie):
		return msgBadIndex, true
	case errors.As(err, &rie):
		m := msgRowsInvalid
		m.Message = fmt.Sprintf("File has %d invalid row(s)", rie.Count)
		return m, true
	case errors.Is(err, schema.ErrUnknownColumn):
		return msgUnknownColumn, true
	case errors.Is(err, validate.ErrRowOutOfRange):
		return msgRowRange, true
	case errors.Is(err, ErrSessionNotFound):
		return msgNoSession, true
	case errors.Is(err, ErrTooManySessions):
		return msgBusy, true
	case errors.Is(err, ErrWrongStep):
		return msgWrongStep, true
	}
	return UserMessage{}, false
}

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with the message shown for it.
type UserError struct {
	Technical error       // Original error for logging
	User      UserMessage // Message for display
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
