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

package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

// LineFormatter renders one log line: timestamp, level, caller, message and
// the entry fields as JSON.
type LineFormatter struct {
	WithCallDepth int // if > 0 it will be used to find in the call stack the caller to the logging function
}

// Format is the standard formatter for nvfwupd log messages
func (f *LineFormatter) Format(entry *log.Entry) ([]byte, error) {
	// This is "yyyy-mm-dd HH:MM:SS.000000" TZ format
	const layout = "2006-01-02 15:04:05.000000 MST"

	b := bytes.Buffer{}

	b.WriteString(entry.Time.Format(layout))

	b.WriteString(" [")
	b.WriteString(strings.ToUpper(entry.Level.String()))
	b.WriteString("] ")

	if entry.HasCaller() {
		var filename string
		var line int
		if f.WithCallDepth == 0 {
			filename = filepath.Base(entry.Caller.File)
			line = entry.Caller.Line
		} else {
			var ok bool
			var file string
			_, file, line, ok = runtime.Caller(f.WithCallDepth)
			if !ok {
				file = "???"
				line = 0
			}
			filename = filepath.Base(file)
		}
		fmt.Fprintf(&b, "%s:%d ", filename, line)
	}

	b.WriteString(entry.Message)

	if len(entry.Data) != 0 {
		data, err := json.Marshal(fieldsForJSON(entry.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal fields to JSON: %w", err)
		}

		b.WriteString(" ")
		b.Write(data)
	}

	b.WriteByte('\n')

	return b.Bytes(), nil
}

// fieldsForJSON turns error values into their text, json.Marshal drops them otherwise.
func fieldsForJSON(data log.Fields) log.Fields {
	out := make(log.Fields, len(data))
	for k, v := range data {
		if err, ok := v.(error); ok {
			out[k] = err.Error()
			continue
		}
		out[k] = v
	}
	return out
}
