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

package credential

import (
	"encoding/json"
	"os"
	"strings"
)

const mask = "********"

// SecretString wraps a sensitive value so it never prints or marshals in clear text.
type SecretString struct {
	Value string
}

// NewSecret returns a SecretString holding value.
func NewSecret(value string) SecretString {
	return SecretString{Value: value}
}

// String returns the masked form.
func (s SecretString) String() string {
	if s.Value == "" {
		return ""
	}
	return mask
}

// GoString keeps %#v from leaking the value.
func (s SecretString) GoString() string {
	return s.String()
}

// MarshalJSON emits the masked form.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON reads a clear text value.
func (s *SecretString) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &s.Value)
}

// IsEmpty reports whether no value is set.
func (s SecretString) IsEmpty() bool {
	return s.Value == ""
}

// IsEqual compares the wrapped values.
func (s SecretString) IsEqual(o SecretString) bool {
	return s.Value == o.Value
}

// Credential holds authentication information with password protection
type Credential struct {
	User     string       `json:"user"`     // User name
	Password SecretString `json:"password"` // Password (masked in JSON/logs)
}

// New creates a Credential with the given user and password.
func New(user string, password string) *Credential {
	return &Credential{
		User:     user,
		Password: NewSecret(password),
	}
}

// NewFromEnv creates a Credential from environment variables as-is
func NewFromEnv(userEnv string, passwordEnv string) Credential {
	return Credential{
		User:     os.Getenv(userEnv),
		Password: NewSecret(os.Getenv(passwordEnv)),
	}
}

// Patch updates the credential with non-empty values from the given
// credential. It returns true if any field was updated.
func (cred *Credential) Patch(nc *Credential) bool {
	if cred == nil || nc == nil {
		return false
	}

	patched := false

	if strings.TrimSpace(nc.User) != "" && cred.User != nc.User {
		cred.User = nc.User
		patched = true
	}

	if !nc.Password.IsEmpty() && !cred.Password.IsEqual(nc.Password) {
		cred.Password = nc.Password
		patched = true
	}

	return patched
}

// IsValid returns true if the credential has a non-empty username
func (cred *Credential) IsValid() bool {
	return cred != nil && strings.TrimSpace(cred.User) != ""
}

// Secrets returns the values that must never reach a log line.
func (cred *Credential) Secrets() []string {
	if cred == nil || cred.Password.IsEmpty() {
		return nil
	}
	return []string{cred.Password.Value}
}
