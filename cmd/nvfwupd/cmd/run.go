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
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
	"github.com/nvidia/nvfwupd/pkg/fwpkg"
	"github.com/nvidia/nvfwupd/pkg/orchestrator"
	"github.com/nvidia/nvfwupd/pkg/target"
)

// run executes op with one Input per target and prints the report.
func run(cmd *cobra.Command, op orchestrator.Operation, input func(t *target.Target) orchestrator.Input) error {
	cfg := state.cfg.Orchestrator()
	if parallel, _ := cmd.Flags().GetInt("parallel"); parallel > 0 {
		cfg.Width = parallel
	}

	o := orchestrator.New(cfg)
	stop := watchInterrupts(o, os.Stdin, cmd.ErrOrStderr())
	defer stop()

	inputs := lo.Map(state.targets, func(t *target.Target, _ int) orchestrator.Input { return input(t) })
	log.Infof("Running %s on %d target(s)", op, len(inputs))

	report := orchestrator.Report(o.Run(cmd.Context(), inputs, op))
	state.code = report.Code

	if state.json {
		return report.WriteJSON(cmd.OutOrStdout())
	}
	return report.WriteText(cmd.OutOrStdout())
}

// recipe opens the packages for one target. Each target gets its own Package
// so extraction directories are never shared between workers.
func recipe(paths []string) []*fwpkg.Package {
	opts := state.cfg.PackageOptions()
	return lo.Map(paths, func(p string, _ int) *fwpkg.Package { return fwpkg.Open(p, opts) })
}

// parseSpecial reads the UpdateService PATCH body given inline or as a file.
func parseSpecial(value string) (map[string]any, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	data := []byte(value)
	if !strings.HasPrefix(value, "{") {
		b, err := os.ReadFile(value)
		if err != nil {
			return nil, fwerr.Wrap(fwerr.KindFatal, "--special", err)
		}
		data = b
	}

	var special map[string]any
	if err := json.Unmarshal(data, &special); err != nil {
		return nil, fwerr.Wrap(fwerr.KindFatal, "--special", err)
	}
	return special, nil
}

// confirm asks a yes/no question. Anything but y or yes is a no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// watchInterrupts stops o on SIGTERM, or on SIGINT once confirmed on a
// terminal. Requests in flight are never cancelled. The returned func
// stops watching.
func watchInterrupts(o *orchestrator.Orchestrator, in *os.File, out io.Writer) func() {
	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-sigs:
				if sig == syscall.SIGINT && isTerminal(in) &&
					!confirm(in, out, "Stop starting new updates? Jobs already running continue on the controllers.") {
					continue
				}
				o.Stop()
				fmt.Fprintln(out, "Stopping after the requests in flight complete")
				// A second interrupt terminates the process.
				signal.Reset(syscall.SIGINT, syscall.SIGTERM)
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
