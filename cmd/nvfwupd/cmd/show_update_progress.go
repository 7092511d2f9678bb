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

// showUpdateProgressCmd represents the show_update_progress command
var showUpdateProgressCmd = &cobra.Command{
	Use:   "show_update_progress",
	Short: "Show the status of update tasks",
	Args:  cobra.NoArgs,
	RunE:  runShowUpdateProgress,
}

func init() {
	showUpdateProgressCmd.Flags().StringSliceP("id", "i", nil, "task id as printed by update_fw (required)")
	showUpdateProgressCmd.Flags().Int("parallel", 0, "targets queried at once (default from config)")
	_ = showUpdateProgressCmd.MarkFlagRequired("id")

	rootCmd.AddCommand(showUpdateProgressCmd)
}

func runShowUpdateProgress(cmd *cobra.Command, _ []string) error {
	ids, _ := cmd.Flags().GetStringSlice("id")

	return run(cmd, orchestrator.OpShowProgress, func(t *target.Target) orchestrator.Input {
		return orchestrator.Input{Target: t, JobIDs: ids}
	})
}
