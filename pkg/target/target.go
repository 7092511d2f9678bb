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

// Package target describes one controller to operate on and parses targets
// from CLI key=value pairs, JSON documents and config file entries.
package target

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/mitchellh/mapstructure"

	"github.com/nvidia/nvfwupd/pkg/common/credential"
)

// Transport is the protocol used to reach a controller.
type Transport string

const (
	TransportRedfish Transport = "redfish"
	TransportNVUE    Transport = "nvue"
	TransportSSH     Transport = "ssh"
)

// LocalHost is the address dialed for port-forwarded targets.
const LocalHost = "127.0.0.1"

// Target is one controller. It is immutable once built by one of the parsers.
type Target struct {
	Host        string
	Credential  credential.Credential
	Port        int // port-forward port on LocalHost; 0 means direct access
	SSHPort     int // port-forward port for SSH file copies of port-forwarded targets
	Transport   Transport
	Platform    string // configured platform tag, lower case; empty when unset
	SessionAuth bool
}

// entry is the loose shape accepted from every input source.
type entry struct {
	Host        string `mapstructure:"host"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	Port        int    `mapstructure:"port"`
	SSHPort     int    `mapstructure:"ssh_port"`
	Transport   string `mapstructure:"transport"`
	Platform    string `mapstructure:"platform"`
	SessionAuth bool   `mapstructure:"session_auth"`
}

// platformAliases maps alternative platform names to the canonical tag.
var platformAliases = map[string]string{
	"gb300":       "gb200",
	"mgx":         "gh200",
	"pmc":         "powershelf",
	"power_shelf": "powershelf",
	"switch":      "nvswitch",
	"nvos":        "nvswitch",
}

// CanonicalPlatform lower-cases a platform name and resolves its aliases.
func CanonicalPlatform(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := platformAliases[n]; ok {
		return alias
	}
	return n
}

var keyAliases = map[string]string{
	"ip":          "host",
	"bmc_ip":      "host",
	"address":     "host",
	"username":    "user",
	"servertype":  "platform",
	"server_type": "platform",
	"type":        "platform",
	"sessionauth": "session_auth",
	"sshport":     "ssh_port",
}

// IsPortForward reports whether the target is reached through a local forwarded port.
func (t *Target) IsPortForward() bool {
	return t.Port > 0
}

// Address returns host[:port] to dial.
func (t *Target) Address() string {
	if t.IsPortForward() {
		return net.JoinHostPort(LocalHost, strconv.Itoa(t.Port))
	}
	return t.Host
}

// CopyTarget is the target SSH file copies dial. A port-forwarded target
// needs its own SSH forward, since Port forwards the management API.
func (t *Target) CopyTarget() (*Target, error) {
	if !t.IsPortForward() {
		return t, nil
	}
	if t.SSHPort == 0 {
		return nil, fmt.Errorf("target %s: port-forwarded target needs ssh_port for file copies", t.Name())
	}
	ct := *t
	ct.Port = t.SSHPort
	return &ct, nil
}

// Name is the identifier used in logs and output.
func (t *Target) Name() string {
	if t.Host != "" {
		return t.Host
	}
	return t.Address()
}

// Secrets returns the values to redact from logs.
func (t *Target) Secrets() []string {
	return t.Credential.Secrets()
}

// Validate checks the target is usable for its transport.
func (t *Target) Validate() error {
	err := validation.ValidateStruct(t,
		validation.Field(&t.Host,
			validation.When(!t.IsPortForward(), validation.Required.Error("needs an ip/host or a port-forward port"))),
		validation.Field(&t.Port, validation.Min(0), validation.Max(65535)),
		validation.Field(&t.SSHPort, validation.Min(0), validation.Max(65535)),
		validation.Field(&t.Transport, validation.In(TransportRedfish, TransportNVUE, TransportSSH).Error(
			fmt.Sprintf("must be one of %s, %s or %s", TransportRedfish, TransportNVUE, TransportSSH))),
	)
	if err != nil {
		return fmt.Errorf("target %s: %w", t.Name(), err)
	}

	if !t.Credential.IsValid() {
		return validation.Errors{"user": fmt.Errorf("target %s: missing user", t.Name())}
	}

	return nil
}

// FromMap builds a Target from a loosely typed map, as found in config files
// and JSON target lists. Keys are case-insensitive and accept common aliases.
func FromMap(m map[string]any) (*Target, error) {
	norm := make(map[string]any, len(m))
	for k, v := range m {
		key := strings.ToLower(strings.TrimSpace(k))
		if alias, ok := keyAliases[key]; ok {
			key = alias
		}
		norm[key] = v
	}

	var e entry
	if err := mapstructure.WeakDecode(norm, &e); err != nil {
		return nil, fmt.Errorf("failed to decode target: %w", err)
	}

	t := e.build()
	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}

// ParseKeyValues builds a Target from "key=value" pairs such as
// ip=10.0.0.1 user=admin password=secret servertype=GB200. A single argument
// may also carry several comma separated pairs.
func ParseKeyValues(args []string) (*Target, error) {
	m := map[string]any{}
	for _, arg := range args {
		for _, kv := range strings.Split(arg, ",") {
			kv = strings.TrimSpace(kv)
			if kv == "" {
				continue
			}

			k, v, ok := strings.Cut(kv, "=")
			if !ok || strings.TrimSpace(k) == "" {
				return nil, fmt.Errorf("invalid target parameter %q, expected key=value", kv)
			}
			m[k] = strings.TrimSpace(v)
		}
	}

	return FromMap(m)
}

// ParseJSON accepts either a single target object, an array of them, or an
// object with a "Targets" array.
func ParseJSON(data []byte) ([]*Target, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid target JSON: %w", err)
	}

	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		if list, ok := lookupFold(v, "targets").([]any); ok {
			items = list
		} else {
			items = []any{v}
		}
	default:
		return nil, fmt.Errorf("invalid target JSON: expected object or array")
	}

	targets := make([]*Target, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid target JSON: entry %d is not an object", i)
		}

		t, err := FromMap(m)
		if err != nil {
			return nil, fmt.Errorf("target entry %d: %w", i, err)
		}
		targets = append(targets, t)
	}

	return targets, nil
}

func lookupFold(m map[string]any, key string) any {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

func (e entry) build() *Target {
	t := &Target{
		Host:        strings.TrimSpace(e.Host),
		Credential:  *credential.New(strings.TrimSpace(e.User), e.Password),
		Port:        e.Port,
		SSHPort:     e.SSHPort,
		Transport:   Transport(strings.ToLower(strings.TrimSpace(e.Transport))),
		Platform:    CanonicalPlatform(e.Platform),
		SessionAuth: e.SessionAuth,
	}

	if t.Transport == "" {
		t.Transport = TransportRedfish
		if t.Platform == "nvswitch" {
			t.Transport = TransportNVUE
		}
	}

	return t
}
