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

// Package perfstat keeps lock-free latency counters for controller requests.
package perfstat

import (
	"fmt"
	"sync/atomic"
	"time"
)

// PerfStat accumulates the count, total and max duration of an operation.
type PerfStat struct {
	ops         atomic.Uint64
	usecs       atomic.Uint64
	max         atomic.Uint64
	description string
}

// Instance times one run of an operation.
type Instance struct {
	stime time.Time
	pstat *PerfStat
}

// New sets up and returns a new PerfStat described by des.
func New(des string) *PerfStat {
	return &PerfStat{description: des}
}

// Start returns a running Instance committing to ps.
func (ps *PerfStat) Start() *Instance {
	return &Instance{stime: time.Now(), pstat: ps}
}

// End commits the elapsed time of the instance and returns it.
func (it *Instance) End() time.Duration {
	d := time.Since(it.stime)
	if it.pstat != nil {
		it.pstat.commit(uint64(d.Microseconds()))
	}
	return d
}

func (ps *PerfStat) commit(usec uint64) {
	ps.ops.Add(1)
	ps.usecs.Add(usec)
	for {
		cur := ps.max.Load()
		if usec <= cur || ps.max.CompareAndSwap(cur, usec) {
			return
		}
	}
}

// Count returns the total ops of the PerfStat.
func (ps *PerfStat) Count() uint64 {
	return ps.ops.Load()
}

// Elapsed returns the total elapsed time of the PerfStat.
func (ps *PerfStat) Elapsed() time.Duration {
	return time.Duration(ps.usecs.Load()) * time.Microsecond
}

// Max returns the longest single op.
func (ps *PerfStat) Max() time.Duration {
	return time.Duration(ps.max.Load()) * time.Microsecond
}

func (ps *PerfStat) String() string {
	var avg uint64

	ops, usecs, max := ps.ops.Load(), ps.usecs.Load(), ps.max.Load()
	if ops > 0 {
		avg = usecs / ops
	}

	if avg > 1000 {
		return fmt.Sprintf("%s: ops %v, total %vms, avg %vms/op, max %vms",
			ps.description, ops, usecs/1000, avg/1000, max/1000)
	}
	return fmt.Sprintf("%s: ops %v, total %vus, avg %vus/op, max %vus",
		ps.description, ops, usecs, avg, max)
}
