// Copyright (c) 2025-present Marko Kocić <marko@euptera.com>
// SPDX-License-Identifier: EPL-2.0
// See LICENSE for full license text.

package ingest

import (
	"errors"
	"fmt"
)

var (
	ErrUnrecognizedEventType = errors.New("ingest: unrecognized event type")
	errMissingField          = errors.New("missing field")
	errZeroQuantity          = errors.New("quantity must not be zero")
)

// UnrecognizedEventTypeError aborts the import of a whole file.
type UnrecognizedEventTypeError struct {
	Source string
	Line   int
	Type   string
}

func (e *UnrecognizedEventTypeError) Error() string {
	return fmt.Sprintf("ingest: %s:%d: unexpected event type %q", e.Source, e.Line, e.Type)
}

func (e *UnrecognizedEventTypeError) Is(target error) bool {
	return target == ErrUnrecognizedEventType
}

// MalformedRecordError reports a row whose quantity, price, fee or timestamp
// cannot be read, or whose quantity is zero.
type MalformedRecordError struct {
	Source string
	Line   int
	Field  string
	Value  string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("ingest: %s:%d: malformed %s %q: %v", e.Source, e.Line, e.Field, e.Value, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }
