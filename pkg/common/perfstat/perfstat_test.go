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

package perfstat

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommit(t *testing.T) {
	ps := New("GET")

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			ps.commit(v)
		}(uint64(i))
	}
	wg.Wait()

	assert.Equal(t, uint64(50), ps.Count())
	assert.Equal(t, uint64(1275), ps.usecs.Load())
	assert.Equal(t, uint64(50), ps.max.Load())
	assert.Equal(t, "GET: ops 50, total 1275us, avg 25us/op, max 50us", ps.String())
}

func TestInstance(t *testing.T) {
	ps := New("POST")
	it := ps.Start()
	d := it.End()

	assert.Equal(t, uint64(1), ps.Count())
	assert.GreaterOrEqual(t, d, ps.Max())
}
