package tinybasic

import (
	"errors"
	"fmt"
)

// Error definitions specific to TinyBASIC execution.
var (
	ErrMissingLineNumber  = errors.New("missing line number")
	ErrLineNotFound       = errors.New("line not found")
	ErrReturnWithoutGosub = errors.New("return without gosub")
	ErrNextWithoutFor     = errors.New("next without for")
	ErrNextMismatch       = errors.New("next variable mismatch")
	ErrGosubDepthExceeded = errors.New("gosub depth exceeded")
	ErrForDepthExceeded   = errors.New("for loop depth exceeded")
	ErrDivisionByZero     = errors.New("division by zero")
	ErrUnknownStatement   = errors.New("unknown statement")
	ErrSyntaxError        = errors.New("syntax error")
	ErrMissingParenthesis = errors.New("missing closing parenthesis")
	ErrExpectedVariable   = errors.New("variable expected")
)

// Error categories.
const (
	ErrCategorySyntax  = "SYNTAX ERROR"
	ErrCategoryRuntime = "RUNTIME ERROR"
)

// BASICError is an error raised while a program runs.
type BASICError struct {
	Category   string
	Err        error
	LineNumber int
	Detail     string
}

func (be *BASICError) Error() string {
	msg := be.Category
	if be.LineNumber > 0 {
		msg += fmt.Sprintf(" IN LINE %d", be.LineNumber)
	}
	msg += ": " + be.Err.Error()
	if be.Detail != "" {
		msg += " (" + be.Detail + ")"
	}
	return msg
}

func (be *BASICError) Unwrap() error { return be.Err }

// NewBASICError returns an error of category raised in line.
func NewBASICError(category string, err error, line int) *BASICError {
	return &BASICError{Category: category, Err: err, LineNumber: line}
}

// WithDetail attaches the offending text.
func (be *BASICError) WithDetail(detail string) *BASICError {
	be.Detail = detail
	return be
}

func syntaxError(line int, detail string) *BASICError {
	return NewBASICError(ErrCategorySyntax, ErrSyntaxError, line).WithDetail(detail)
}

func runtimeError(err error, line int) *BASICError {
	return NewBASICError(ErrCategoryRuntime, err, line)
}
