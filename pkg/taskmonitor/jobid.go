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

package taskmonitor

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/nvidia/nvfwupd/pkg/access"
)

var numericID = regexp.MustCompile(`^\d+$`)

// JobID discovers the task id in an update response. It returns "" when the
// controller accepted the update without creating a task.
func JobID(resp *access.Response) string {
	if resp == nil {
		return ""
	}

	switch id := resp.Lookup("Id").(type) {
	case string:
		if id != "" {
			return id
		}
	case float64:
		return fmt.Sprintf("%d", int64(id))
	}

	for _, key := range []string{"@odata.id", "TaskMonitor"} {
		if id := idFromURI(resp.String(key)); id != "" {
			return id
		}
	}

	if resp.Header != nil {
		if id := idFromURI(resp.Header.Get("Location")); id != "" {
			return id
		}
	}

	return idFromMessages(messagesOf(resp))
}

// idFromURI returns the segment that follows "Tasks/", or the last segment.
func idFromURI(uri string) string {
	if uri == "" {
		return ""
	}
	if u, err := url.Parse(uri); err == nil && u.Path != "" {
		uri = u.Path
	}

	parts := strings.Split(strings.Trim(uri, "/"), "/")
	for i, p := range parts {
		if strings.EqualFold(p, "Tasks") && i+1 < len(parts) {
			return parts[i+1]
		}
	}

	last := path.Base("/" + strings.Trim(uri, "/"))
	if last == "/" || last == "." {
		return ""
	}
	return last
}

func idFromMessages(msgs []Message) string {
	for _, m := range msgs {
		for _, arg := range m.Args {
			if strings.Contains(arg, "/Tasks/") {
				return idFromURI(arg)
			}
		}
	}
	for _, m := range msgs {
		for _, arg := range m.Args {
			if numericID.MatchString(arg) {
				return arg
			}
		}
	}
	return ""
}
