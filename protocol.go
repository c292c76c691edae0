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

package flowbird

import "fmt"

// Protocol is a contactless protocol the hunter can be restricted to
type Protocol string

const (
	ProtocolAll Protocol = "ALL"
	ProtocolA   Protocol = "A"
	ProtocolB   Protocol = "B"
)

// Key returns the stable key used in activation requests and in the persisted configuration
func (p Protocol) Key() string {
	return string(p)
}

// SupportedProtocols returns the closed set of protocols
func SupportedProtocols() []Protocol {
	return []Protocol{ProtocolAll, ProtocolA, ProtocolB}
}

// LookupProtocol returns the protocol registered under key
func LookupProtocol(key string) (Protocol, error) {
	for _, p := range SupportedProtocols() {
		if p.Key() == key {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProtocol, key)
}

// IsProtocolSupported reports whether key names a supported protocol
func IsProtocolSupported(key string) bool {
	_, err := LookupProtocol(key)
	return err == nil
}
