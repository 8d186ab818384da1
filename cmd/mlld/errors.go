package main

import (
	"fmt"
	"io"

	"github.com/mlld-lang/mlld/internal/errs"
)

// CLIError is a usage-level error raised by this command before
// internal/interp ever runs, grounded in the teacher's cli/errors.go
// CLIError shape (Message/Details/Hint).
type CLIError struct {
	Message string
	Hint    string
}

func (e *CLIError) Error() string {
	if e.Hint == "" {
		return e.Message
	}
	return e.Message + "\n" + e.Hint
}

// FormatError prints err to w, coloring the "Error:" label and adding a
// Hint line for known error shapes. errs.Error already carries kind and
// source location in its Error() string, so it needs no special casing
// beyond the color.
func FormatError(w io.Writer, err error, useColor bool) {
	if err == nil {
		return
	}
	if cliErr, ok := err.(*CLIError); ok {
		fmt.Fprintf(w, "%s%s\n", Colorize("Error: ", ColorRed, useColor), cliErr.Message)
		if cliErr.Hint != "" {
			fmt.Fprintf(w, "%s%s\n", Colorize("Hint: ", ColorYellow, useColor), cliErr.Hint)
		}
		return
	}
	if mlldErr, ok := err.(*errs.Error); ok {
		fmt.Fprintf(w, "%s%s\n", Colorize("Error: ", ColorRed, useColor), mlldErr.Error())
		return
	}
	fmt.Fprintf(w, "%s%s\n", Colorize("Error: ", ColorRed, useColor), err.Error())
}
