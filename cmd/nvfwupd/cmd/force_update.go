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

// forceUpdateCmd represents the force_update command
var forceUpdateCmd = &cobra.Command{
	Use:       "force_update enable|disable|status",
	Short:     "Set or show the UpdateService ForceUpdate option",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(orchestrator.ForceEnable), string(orchestrator.ForceDisable), string(orchestrator.ForceStatus)},
	RunE:      runForceUpdate,
}

func init() {
	forceUpdateCmd.Flags().Int("parallel", 0, "targets handled at once (default from config)")

	rootCmd.AddCommand(forceUpdateCmd)
}

func runForceUpdate(cmd *cobra.Command, args []string) error {
	action := orchestrator.ForceAction(args[0])

	return run(cmd, orchestrator.OpForceUpdate, func(t *target.Target) orchestrator.Input {
		return orchestrator.Input{Target: t, Options: orchestrator.Options{ForceAction: action}}
	})
}
