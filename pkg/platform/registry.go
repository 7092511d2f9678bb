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

package platform

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownPlatform is returned by New for tags without a registered Factory.
var ErrUnknownPlatform = errors.New("unknown platform")

// Factory creates a Behavior bound to one session.
type Factory func(deps Deps) Behavior

var (
	registryMu sync.RWMutex
	registry   = make(map[TagCode]Factory)
)

// Register registers the factory for a platform tag.
func Register(tag Tag, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[tag.Code]; dup {
		panic("platform.Register called twice for " + tag.Name)
	}
	registry[tag.Code] = factory
}

// New returns the Behavior for tag. A configured push method wraps the result
// in a ConfigTarget.
func New(tag Tag, deps Deps) (Behavior, error) {
	registryMu.RLock()
	factory, ok := registry[tag.Code]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, tag.Name)
	}

	b := factory(deps)
	if deps.Push.Method == "" {
		return b, nil
	}

	ct, err := NewConfigTarget(b, deps.Session, deps.Push)
	if err != nil {
		return nil, err
	}
	return ct, nil
}

func init() {
	Register(CodeToTag(TagCodeHGX), newHGX)
	Register(CodeToTag(TagCodeDGX), newDGX)
	Register(CodeToTag(TagCodeGB200), newGB200)
	Register(CodeToTag(TagCodeGH200), newGH200)
	Register(CodeToTag(TagCodePowerShelf), newPowerShelf)
	Register(CodeToTag(TagCodeNVSwitch), newNVSwitch)
}
