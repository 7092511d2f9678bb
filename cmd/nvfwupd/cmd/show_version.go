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
	"github.com/spf13/cobra"

	"github.com/nvidia/nvfwupd/pkg/orchestrator"
	"github.com/nvidia/nvfwupd/pkg/target"
)

// showVersionCmd represents the show_version command
var showVersionCmd = &cobra.Command{
	Use:   "show_version",
	Short: "Show the firmware inventory of the targets",
	Long: `Show the running and staged firmware versions of every component. With a
package, the package version and whether the component is up to date are
shown as well.`,
	Args: cobra.NoArgs,
	RunE: runShowVersion,
}

func init() {
	showVersionCmd.Flags().StringArrayP("package", "p", nil, "package to compare the inventory with")
	showVersionCmd.Flags().Int("parallel", 0, "targets queried at once (default from config)")

	rootCmd.AddCommand(showVersionCmd)
}

func runShowVersion(cmd *cobra.Command, _ []string) error {
	paths, _ := cmd.Flags().GetStringArray("package")

	return run(cmd, orchestrator.OpShowVersion, func(t *target.Target) orchestrator.Input {
		return orchestrator.Input{Target: t, Recipe: recipe(paths)}
	})
}
