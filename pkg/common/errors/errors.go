/*
 * SPDX-FileCopyrightText: Copyright (c) 2026 NVIDIA CORPORATION & AFFILIATES. All rights reserved.
 * SPDX-License-Identifier: Apache-2.0
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package errors classifies failures seen while talking to controllers and
// handling firmware packages. Each Kind maps to one bit of the process exit code.
package errors

import (
	"errors"
	"fmt"
)

// Kind is the failure class of an Error.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnectivity
	KindAuthentication
	KindProtocol
	KindPackageParse
	KindJobFailure
	KindPlatformMismatch
	KindFatal
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown",
	KindConnectivity:     "connectivity",
	KindAuthentication:   "authentication",
	KindProtocol:         "protocol",
	KindPackageParse:     "package",
	KindJobFailure:       "job",
	KindPlatformMismatch: "platform mismatch",
	KindFatal:            "fatal",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return kindNames[KindUnknown]
}

// Error is a classified failure. Body holds the raw controller response, when any.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Body string
	Err  error
}

// New returns an Error of the given kind.
func New(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithBody attaches a raw response body.
func (e *Error) WithBody(body []byte) *Error {
	e.Body = string(body)
	return e
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg != "" {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		} else {
			msg = e.Err.Error()
		}
	}

	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}

	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the outermost *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// BodyOf returns the first raw body attached anywhere in err's chain.
func BodyOf(err error) string {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return ""
		}
		if e.Body != "" {
			return e.Body
		}
		err = e.Err
	}
	return ""
}

func IsConnectivity(err error) bool     { return KindOf(err) == KindConnectivity }
func IsAuthentication(err error) bool   { return KindOf(err) == KindAuthentication }
func IsProtocol(err error) bool         { return KindOf(err) == KindProtocol }
func IsPackageParse(err error) bool     { return KindOf(err) == KindPackageParse }
func IsJobFailure(err error) bool       { return KindOf(err) == KindJobFailure }
func IsPlatformMismatch(err error) bool { return KindOf(err) == KindPlatformMismatch }
func IsFatal(err error) bool            { return KindOf(err) == KindFatal }
