// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package detection

import (
	"net/url"
	"path/filepath"
	"strings"
)

// IsBlocked checks if a USB VID:PID is in the blocklist (case-insensitive)
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.ToUpper(strings.TrimSpace(vidpid))
	for _, blocked := range blocklist {
		if vidpid == strings.ToUpper(strings.TrimSpace(blocked)) {
			return true
		}
	}
	return false
}

// VIDPID formats a USB vendor and product id pair, empty when either is missing
func VIDPID(vid, pid string) string {
	if vid == "" || pid == "" {
		return ""
	}
	return strings.ToUpper(vid) + ":" + strings.ToUpper(pid)
}

// IsAddressIgnored checks if an endpoint address should be ignored. Device
// paths compare after cleaning, URLs after normalising scheme and host.
func IsAddressIgnored(address string, ignore []string) bool {
	if address == "" || len(ignore) == 0 {
		return false
	}
	normalized := normalizedAddress(address)
	for _, candidate := range ignore {
		if candidate == "" {
			continue
		}
		if address == candidate || normalized == normalizedAddress(candidate) {
			return true
		}
	}
	return false
}

func normalizedAddress(address string) string {
	if strings.Contains(address, "://") {
		u, err := url.Parse(address)
		if err == nil {
			u.Scheme = strings.ToLower(u.Scheme)
			u.Host = strings.ToLower(u.Host)
			return strings.TrimSuffix(u.String(), "/")
		}
	}
	// case-insensitive for Windows COM ports
	return strings.ToLower(filepath.Clean(address))
}
