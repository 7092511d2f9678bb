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

// Package config loads the settings of one nvfwupd invocation from an optional
// YAML file, NVFWUPD_* environment variables and an optional dotenv file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/nvidia/nvfwupd/pkg/access"
	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
	"github.com/nvidia/nvfwupd/pkg/fwpkg"
	"github.com/nvidia/nvfwupd/pkg/orchestrator"
	"github.com/nvidia/nvfwupd/pkg/platform"
	"github.com/nvidia/nvfwupd/pkg/target"
	"github.com/nvidia/nvfwupd/pkg/taskmonitor"
)

const (
	// EnvPrefix is prepended to every environment variable, e.g. NVFWUPD_PARALLEL
	EnvPrefix = "NVFWUPD"
	// EnvFileEnv names a dotenv file loaded before the environment is read
	EnvFileEnv = "NVFWUPD_ENV_FILE"

	// ConfigLogLevel specifies the log level
	ConfigLogLevel = "log.level"
	// ConfigLogFile specifies the log file, stderr when empty
	ConfigLogFile = "log.file"

	// ConfigParallel specifies how many targets are handled at once
	ConfigParallel = "parallel"

	// ConfigRequestTimeout specifies the timeout of one HTTP request
	ConfigRequestTimeout = "timeout.request"
	// ConfigUploadTimeout specifies the timeout of one firmware push
	ConfigUploadTimeout = "timeout.upload"
	// ConfigConnectTimeout specifies the TCP and SSH dial timeout
	ConfigConnectTimeout = "timeout.connect"
	// ConfigStallTimeout specifies how long a task may report no progress
	ConfigStallTimeout = "timeout.stall"
	// ConfigRebootTimeout specifies how long to wait for a controller reboot
	ConfigRebootTimeout = "timeout.reboot"

	// ConfigGraceInterval specifies the poll delay before a task starts
	ConfigGraceInterval = "monitor.graceInterval"
	// ConfigGraceRetries specifies how many polls use the grace interval
	ConfigGraceRetries = "monitor.graceRetries"
	// ConfigPollInterval specifies the poll delay of a running task
	ConfigPollInterval = "monitor.pollInterval"
	// ConfigPhase2Interval specifies the poll delay when several targets update
	ConfigPhase2Interval = "monitor.phase2Interval"
	// ConfigPollRetries specifies how many times a failed poll is retried
	ConfigPollRetries = "monitor.pollRetries"
	// ConfigReconnectAttempts specifies how many times a lost controller is probed
	ConfigReconnectAttempts = "monitor.reconnectAttempts"

	// ConfigTaskServicePath overrides the task polling prefix
	ConfigTaskServicePath = "taskServicePath"

	// ConfigUpdateMethod overrides the push method, http_push or multipart
	ConfigUpdateMethod = "update_method"
	// ConfigUpdateURI overrides the push URI
	ConfigUpdateURI = "update_uri"
	// ConfigUpdateParameters are the multipart UpdateParameters
	ConfigUpdateParameters = "update_parameters"

	// ConfigUnpackerCommand is the external PLDM unpacker, built-in when empty
	ConfigUnpackerCommand = "unpacker.command"
	// ConfigUnpackerArgs are the unpack arguments
	ConfigUnpackerArgs = "unpacker.args"
	// ConfigUnpackerExtractArgs are the extract arguments
	ConfigUnpackerExtractArgs = "unpacker.extractArgs"
	// ConfigTempDir is the parent of package extraction directories
	ConfigTempDir = "tempDir"

	// ConfigTargets is the list of target objects
	ConfigTargets = "targets"
)

// Options select the sources Load reads.
type Options struct {
	File    string // YAML config file; optional
	EnvFile string // dotenv file; NVFWUPD_ENV_FILE when empty, optional
}

// Config is immutable once loaded.
type Config struct {
	LogLevel string
	LogFile  string

	Parallel int

	Access   access.Options
	Monitor  taskmonitor.Config
	Phase2   time.Duration
	Push     platform.PushConfig
	Unpacker fwpkg.Unpacker
	TempDir  string

	Targets []*target.Target
}

// Load reads the config. A config file that cannot be parsed is fatal; a
// missing dotenv file is not.
func Load(opts Options) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fwerr.Wrap(fwerr.KindFatal, "read config "+opts.File, err)
		}
		log.Debugf("Loaded config %s", v.ConfigFileUsed())
	}

	return build(v)
}

func loadEnvFile(path string) error {
	if path == "" {
		path = os.Getenv(EnvFileEnv)
	}
	if path == "" {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warnf("Env file %s not found", path)
			return nil
		}
		return fwerr.Wrap(fwerr.KindFatal, "read env file "+path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(ConfigLogLevel, "info")
	v.SetDefault(ConfigParallel, orchestrator.DefaultWidth)

	v.SetDefault(ConfigRequestTimeout, access.DefaultRequestTimeout)
	v.SetDefault(ConfigUploadTimeout, access.DefaultUploadTimeout)
	v.SetDefault(ConfigConnectTimeout, access.DefaultConnectTimeout)
	v.SetDefault(ConfigStallTimeout, taskmonitor.DefaultStallTimeout)
	v.SetDefault(ConfigRebootTimeout, taskmonitor.DefaultRebootTimeout)

	v.SetDefault(ConfigGraceInterval, taskmonitor.DefaultGraceInterval)
	v.SetDefault(ConfigGraceRetries, taskmonitor.DefaultGraceRetries)
	v.SetDefault(ConfigPollInterval, taskmonitor.DefaultPollInterval)
	v.SetDefault(ConfigPhase2Interval, orchestrator.DefaultPhase2Interval)
	v.SetDefault(ConfigPollRetries, taskmonitor.DefaultRetryAttempts)
	v.SetDefault(ConfigReconnectAttempts, orchestrator.DefaultReconnectAttempts)

	v.SetDefault(ConfigTaskServicePath, access.DefaultTaskServicePath)
}

func build(v *viper.Viper) (*Config, error) {
	c := &Config{
		LogLevel: v.GetString(ConfigLogLevel),
		LogFile:  v.GetString(ConfigLogFile),
		Parallel: v.GetInt(ConfigParallel),
		TempDir:  v.GetString(ConfigTempDir),
		Phase2:   v.GetDuration(ConfigPhase2Interval),
		Access: access.Options{
			RequestTimeout:  v.GetDuration(ConfigRequestTimeout),
			UploadTimeout:   v.GetDuration(ConfigUploadTimeout),
			ConnectTimeout:  v.GetDuration(ConfigConnectTimeout),
			TaskServicePath: v.GetString(ConfigTaskServicePath),
		},
		Monitor: taskmonitor.Config{
			GraceInterval: v.GetDuration(ConfigGraceInterval),
			GraceRetries:  v.GetInt(ConfigGraceRetries),
			PollInterval:  v.GetDuration(ConfigPollInterval),
			StallTimeout:  v.GetDuration(ConfigStallTimeout),
			RetryAttempts: v.GetUint(ConfigPollRetries),
			RebootTimeout: v.GetDuration(ConfigRebootTimeout),
		},
	}

	if c.Parallel <= 0 {
		return nil, fwerr.New(fwerr.KindFatal, "config", "%s must be positive, got %d", ConfigParallel, c.Parallel)
	}

	push, err := pushConfig(v)
	if err != nil {
		return nil, err
	}
	c.Push = push

	if cmd := v.GetString(ConfigUnpackerCommand); cmd != "" {
		c.Unpacker = &fwpkg.ExecUnpacker{
			Command:     cmd,
			Args:        v.GetStringSlice(ConfigUnpackerArgs),
			ExtractArgs: v.GetStringSlice(ConfigUnpackerExtractArgs),
		}
	}

	targets, err := targetsOf(v.Get(ConfigTargets))
	if err != nil {
		return nil, fwerr.Wrap(fwerr.KindFatal, "config "+ConfigTargets, err)
	}
	c.Targets = targets

	return c, nil
}

func pushConfig(v *viper.Viper) (platform.PushConfig, error) {
	p := platform.PushConfig{
		Method: strings.ToLower(strings.TrimSpace(v.GetString(ConfigUpdateMethod))),
		URI:    v.GetString(ConfigUpdateURI),
	}

	switch p.Method {
	case "":
		if p.URI != "" {
			return p, fwerr.New(fwerr.KindFatal, "config", "%s requires %s", ConfigUpdateURI, ConfigUpdateMethod)
		}
		return p, nil
	case platform.PushMethodHTTP, platform.PushMethodMultipart:
	default:
		return p, fwerr.New(fwerr.KindFatal, "config", "%s must be %s or %s, got %q",
			ConfigUpdateMethod, platform.PushMethodHTTP, platform.PushMethodMultipart, p.Method)
	}

	params, err := updateParameters(v.Get(ConfigUpdateParameters))
	if err != nil {
		return p, fwerr.Wrap(fwerr.KindFatal, "config "+ConfigUpdateParameters, err)
	}
	p.Parameters = params
	return p, nil
}

// redfishKeys restores the case viper drops from map keys.
var redfishKeys = map[string]string{
	"targets":                     "Targets",
	"forceupdate":                 "ForceUpdate",
	"@redfish.operationapplytime": "@Redfish.OperationApplyTime",
	"oem":                         "Oem",
}

// updateParameters accepts a JSON object string, which keeps its case, or a
// YAML map.
func updateParameters(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		var params map[string]any
		if err := json.Unmarshal([]byte(v), &params); err != nil {
			return nil, err
		}
		return params, nil
	}

	m, err := cast.ToStringMapE(raw)
	if err != nil {
		return nil, err
	}
	params := make(map[string]any, len(m))
	for k, val := range m {
		if canonical, ok := redfishKeys[strings.ToLower(k)]; ok {
			k = canonical
		}
		params[k] = val
	}
	return params, nil
}

// targetsOf accepts the list under "targets" as decoded from YAML or JSON.
func targetsOf(raw any) ([]*target.Target, error) {
	if raw == nil {
		return nil, nil
	}

	items, err := cast.ToSliceE(raw)
	if err != nil {
		return nil, err
	}

	targets := make([]*target.Target, 0, len(items))
	for i, item := range items {
		m, err := cast.ToStringMapE(item)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		t, err := target.FromMap(m)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// PackageOptions are the fwpkg options derived from the config.
func (c *Config) PackageOptions() fwpkg.Options {
	return fwpkg.Options{Unpacker: c.Unpacker, TempDir: c.TempDir}
}

// Orchestrator is the orchestrator configuration.
func (c *Config) Orchestrator() orchestrator.Config {
	return orchestrator.Config{
		Width:          c.Parallel,
		Phase2Interval: c.Phase2,
		Access:         c.Access,
		Monitor:        c.Monitor,
		Push:           c.Push,
	}
}
