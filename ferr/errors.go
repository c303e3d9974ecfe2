/*
Copyright (C) 2023  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package ferr holds the error taxonomy shared by segment and fef: a small
// set of machine-readable kinds instead of ad-hoc string matching.
package ferr

import "fmt"

// Kind categorizes a failure so callers can branch on it instead of parsing
// Error() strings.
type Kind string

const (
	IoError              Kind = "IO_ERROR"
	ParseError           Kind = "PARSE_ERROR"
	UnsupportedValueKind Kind = "UNSUPPORTED_VALUE_KIND"
	CsvTypeInference     Kind = "CSV_TYPE_INFERENCE_FAILED"
	SegmentAllocError    Kind = "SEGMENT_ALLOC_ERROR"
	SegmentNotLoaded     Kind = "SEGMENT_NOT_LOADED"
	InvariantViolated    Kind = "INVARIANT_VIOLATED"
	KeyNotFound          Kind = "KEY_NOT_FOUND"
)

// Error wraps a Kind, a message and an optional cause. ParseError additionally
// carries Position and Token per spec §7.
type Error struct {
	Kind     Kind
	Message  string
	Cause    error
	Position int64  // only meaningful for ParseError
	Token    string // only meaningful for ParseError
}

func (e *Error) Error() string {
	if e.Kind == ParseError {
		return fmt.Sprintf("%s: %s (position=%d, last_token=%q)", e.Kind, e.Message, e.Position, e.Token)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NewParseError(position int64, token, message string) *Error {
	return &Error{Kind: ParseError, Position: position, Token: token, Message: message}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	fe, ok := err.(*Error)
	return ok && fe.Kind == kind
}
