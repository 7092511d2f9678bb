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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nvidia/nvfwupd/internal/config"
	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
	cmnlog "github.com/nvidia/nvfwupd/pkg/common/log"
	"github.com/nvidia/nvfwupd/pkg/orchestrator"
	"github.com/nvidia/nvfwupd/pkg/target"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=..."
var Version = "dev"

// app is the state shared by the commands of one invocation.
type app struct {
	cfg     *config.Config
	targets []*target.Target
	json    bool
	code    int
}

var (
	state = &app{}

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "nvfwupd",
		Short: "Firmware update tool for BMC, HMC and NVOS controllers",
		Long: `nvfwupd reads and updates the firmware of server BMCs, HGX HMCs, power
shelves and NVOS switches over Redfish, NVUE and SSH.

Examples:
  # Show the firmware inventory compared with a package
  nvfwupd -t ip=10.0.0.1,user=admin,password=secret show_version -p fw.fwpkg

  # Update several targets listed in a config file
  nvfwupd -c nvfwupd.yaml update_fw -p fw.fwpkg -y
`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringArrayP("target", "t", nil, "target as key=value pairs: ip=,user=,password=,servertype=,port=,ssh_port=,transport=")
	pf.String("target-file", "", "JSON file with one target object or a list of them")
	pf.StringP("config", "c", "", "YAML config file")
	pf.String("env-file", "", "dotenv file loaded before the environment is read")
	pf.BoolP("json", "j", false, "print a single JSON object")
	pf.StringP("log-file", "l", "", "write the log to this file")
	pf.BoolP("verbose", "v", false, "debug logging")
	pf.Bool("show-ips", false, "keep IP addresses in the log and output instead of redacting them")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	state = &app{}
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return int(orchestrator.CodeFor(err) | orchestrator.Code(state.code))
	}
	return state.code
}

// setup loads the config and the targets and configures logging.
func setup(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[annotationNoTargets] != "" {
		return nil
	}

	flags := cmd.Flags()
	cfgFile, _ := flags.GetString("config")
	envFile, _ := flags.GetString("env-file")

	cfg, err := config.Load(config.Options{File: cfgFile, EnvFile: envFile})
	if err != nil {
		return err
	}

	targets, err := collectTargets(cmd, cfg)
	if err != nil {
		return err
	}

	logFile, _ := flags.GetString("log-file")
	if logFile == "" {
		logFile = cfg.LogFile
	}
	verbose, _ := flags.GetBool("verbose")
	showIPs, _ := flags.GetBool("show-ips")

	secrets := lo.FlatMap(targets, func(t *target.Target, _ int) []string { return t.Secrets() })
	if err := cmnlog.Setup(cmnlog.Options{
		File:    logFile,
		Level:   cfg.LogLevel,
		Verbose: verbose,
		Secrets: secrets,
		ShowIPs: showIPs,
	}); err != nil {
		return fwerr.Wrap(fwerr.KindFatal, "log setup", err)
	}

	state.cfg = cfg
	state.targets = targets
	state.json, _ = flags.GetBool("json")

	log.Debugf("nvfwupd %s: %d target(s)", Version, len(targets))
	return nil
}

// collectTargets prefers --target, then --target-file, then the config file.
func collectTargets(cmd *cobra.Command, cfg *config.Config) ([]*target.Target, error) {
	flags := cmd.Flags()
	kvs, _ := flags.GetStringArray("target")
	file, _ := flags.GetString("target-file")

	switch {
	case len(kvs) > 0:
		targets := make([]*target.Target, 0, len(kvs))
		for _, kv := range kvs {
			t, err := target.ParseKeyValues([]string{kv})
			if err != nil {
				return nil, fwerr.Wrap(fwerr.KindFatal, "--target", err)
			}
			targets = append(targets, t)
		}
		return targets, nil

	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fwerr.Wrap(fwerr.KindFatal, "--target-file", err)
		}
		targets, err := target.ParseJSON(data)
		if err != nil {
			return nil, fwerr.Wrap(fwerr.KindFatal, "--target-file", err)
		}
		return targets, nil

	case len(cfg.Targets) > 0:
		return cfg.Targets, nil
	}

	return nil, fwerr.Wrap(fwerr.KindFatal, "targets", errNoTargets)
}

var errNoTargets = errors.New("no target given, use --target, --target-file or a config file with targets")

// annotationNoTargets marks commands that need neither config nor targets.
const annotationNoTargets = "no-targets"
