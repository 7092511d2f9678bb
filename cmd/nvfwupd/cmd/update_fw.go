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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/nvidia/nvfwupd/pkg/orchestrator"
	"github.com/nvidia/nvfwupd/pkg/target"
)

// updateFwCmd represents the update_fw command
var updateFwCmd = &cobra.Command{
	Use:   "update_fw",
	Short: "Update the firmware of the targets",
	Long: `Push one or more packages to every target and follow the update tasks until
they end. Packages are applied in the order given. With --background the
command returns once the tasks are created; follow them with
show_update_progress.

Examples:
  nvfwupd -t ip=10.0.0.1,user=admin,password=secret update_fw -p hgx.fwpkg
  nvfwupd -c nvfwupd.yaml update_fw -p bmc.fwpkg -p cpld.fwpkg --parallel 16 -y
  nvfwupd -t ip=10.0.0.5,user=admin,password=secret,servertype=nvswitch update_fw -p nvos.bin --component nvos
`,
	Args: cobra.NoArgs,
	RunE: runUpdateFw,
}

func init() {
	flags := updateFwCmd.Flags()
	flags.StringArrayP("package", "p", nil, "package to apply; repeat to apply several in order (required)")
	flags.BoolP("background", "b", false, "return once the update tasks are created")
	flags.BoolP("yes", "y", false, "do not ask for confirmation")
	flags.StringP("special", "s", "", "UpdateService PATCH applied before the push, as JSON or a JSON file")
	flags.Int("parallel", 0, "targets updated at once (default from config)")
	flags.Duration("timeout", 0, "timeout of one firmware push (default from config)")
	flags.StringSlice("update-targets", nil, "FirmwareInventory URIs to restrict the update to")
	flags.String("component", "", "component to update on platforms updating one component per push")
	flags.Bool("force", false, "update even when the versions match")
	_ = updateFwCmd.MarkFlagRequired("package")

	rootCmd.AddCommand(updateFwCmd)
}

func runUpdateFw(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	paths, _ := flags.GetStringArray("package")
	yes, _ := flags.GetBool("yes")
	specialValue, _ := flags.GetString("special")
	timeout, _ := flags.GetDuration("timeout")
	updateTargets, _ := flags.GetStringSlice("update-targets")
	component, _ := flags.GetString("component")
	force, _ := flags.GetBool("force")
	background, _ := flags.GetBool("background")

	special, err := parseSpecial(specialValue)
	if err != nil {
		return err
	}

	if !yes && isTerminal(os.Stdin) {
		question := fmt.Sprintf("Update %d target(s) with %s?", len(state.targets),
			strings.Join(lo.Map(paths, func(p string, _ int) string { return filepath.Base(p) }), ", "))
		if !confirm(os.Stdin, cmd.ErrOrStderr(), question) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Update cancelled")
			return nil
		}
	}

	opts := orchestrator.Options{
		Background:  background,
		ForceUpdate: force,
		Special:     special,
		Targets:     updateTargets,
		Component:   component,
		Timeout:     timeout,
	}
	return run(cmd, orchestrator.OpUpdate, func(t *target.Target) orchestrator.Input {
		return orchestrator.Input{Target: t, Recipe: recipe(paths), Options: opts}
	})
}
