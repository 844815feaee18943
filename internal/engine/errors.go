package engine

import (
	"errors"
	"fmt"
)

// ErrStoreProblem is returned by every entry point once a store failure has
// been observed. Reinit clears it.
var ErrStoreProblem = errors.New("engine: store in problem state")

// ErrIdentifierHash is returned when an identifier is passed to the
// temporal hash. Identifiers get node and edge ids instead.
var ErrIdentifierHash = errors.New("engine: identifiers are not hashed")

// CommandError reports a command the engine refused or could not satisfy.
type CommandError struct {
	// Code identifies the error category.
	Code CommandErrorCode

	// Message is a human-readable description.
	Message string
}

// CommandErrorCode categorizes command errors.
type CommandErrorCode string

const (
	// ErrCodeBadCommand indicates a malformed command.
	ErrCodeBadCommand CommandErrorCode = "BAD_COMMAND"

	// ErrCodeNoMemory indicates the requested episode does not exist.
	ErrCodeNoMemory CommandErrorCode = "NO_MEMORY"

	// ErrCodeNoMatch indicates a query found no episode.
	ErrCodeNoMatch CommandErrorCode = "NO_MATCH"
)

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func badCommand(format string, args ...any) *CommandError {
	return &CommandError{Code: ErrCodeBadCommand, Message: fmt.Sprintf(format, args...)}
}

func noMemory(format string, args ...any) *CommandError {
	return &CommandError{Code: ErrCodeNoMemory, Message: fmt.Sprintf(format, args...)}
}

func noMatch(format string, args ...any) *CommandError {
	return &CommandError{Code: ErrCodeNoMatch, Message: fmt.Sprintf(format, args...)}
}

func hasCode(err error, code CommandErrorCode) bool {
	return Code(err) == code
}

// Code returns the code of the CommandError in err's chain, or "" when
// there is none.
func Code(err error) CommandErrorCode {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsBadCommand reports whether err is a malformed-command error.
// Uses errors.As to handle wrapped errors.
func IsBadCommand(err error) bool {
	return hasCode(err, ErrCodeBadCommand)
}

// IsNoMemory reports whether err names an episode that does not exist.
func IsNoMemory(err error) bool {
	return hasCode(err, ErrCodeNoMemory)
}

// IsNoMatch reports whether err is a query without a result.
func IsNoMatch(err error) bool {
	return hasCode(err, ErrCodeNoMatch)
}
