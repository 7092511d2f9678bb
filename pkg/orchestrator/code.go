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

package orchestrator

import (
	fwerr "github.com/nvidia/nvfwupd/pkg/common/errors"
)

// Code is a per-target exit code. Codes of several failures are OR-ed.
type Code int

const (
	CodeOK               Code = 0
	CodeJobFailure       Code = 1
	CodeConnectivity     Code = 2
	CodeAuthentication   Code = 4
	CodePackage          Code = 8
	CodePlatformMismatch Code = 16
	CodeProtocol         Code = 32
	CodeInternal         Code = 64
)

// CodeFor maps an error kind to its exit code bit.
func CodeFor(err error) Code {
	if err == nil {
		return CodeOK
	}

	switch fwerr.KindOf(err) {
	case fwerr.KindJobFailure:
		return CodeJobFailure
	case fwerr.KindConnectivity:
		return CodeConnectivity
	case fwerr.KindAuthentication:
		return CodeAuthentication
	case fwerr.KindPackageParse:
		return CodePackage
	case fwerr.KindPlatformMismatch:
		return CodePlatformMismatch
	case fwerr.KindProtocol:
		return CodeProtocol
	default:
		return CodeInternal
	}
}

// Has reports whether bit is set.
func (c Code) Has(bit Code) bool { return c&bit != 0 }
