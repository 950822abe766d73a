// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package msgpack provides the low-level MessagePack primitives the event
// decoder and the v0.4/v0.5 exporters are built on. It wraps
// github.com/tinylib/msgp/msgp's streaming Reader/Writer rather than
// re-implementing tag parsing, so every primitive here inherits msgp's
// generic Skip for forward-compatible handling of unknown event bodies.
package msgpack

import (
	"errors"
	"fmt"
)

// MalformedInput is returned for any codec violation: a tag that doesn't
// match the expected family, a truncated stream, invalid UTF-8 in a string,
// or a string-table index out of range. It always terminates processing of
// the current connection (see pkg/trace/processor).
type MalformedInput struct {
	Op  string
	Err error
}

func (e *MalformedInput) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("msgpack: malformed input: %s", e.Op)
	}
	return fmt.Sprintf("msgpack: malformed input: %s: %v", e.Op, e.Err)
}

func (e *MalformedInput) Unwrap() error { return e.Err }

func malformed(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MalformedInput{Op: op, Err: err}
}

// IsMalformed reports whether err is (or wraps) a MalformedInput.
func IsMalformed(err error) bool {
	var m *MalformedInput
	return errors.As(err, &m)
}
