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

package hunt

import (
	"time"

	"github.com/ZaparooProject/go-flowbird"
)

// ListenerID identifies the machine's listener to the hunt services
const ListenerID = "flowbird-hunt-listener"

// Config holds hunt machine configuration options
type Config struct {
	// HunterName is the name the hunt sub-service joins the competition under
	HunterName string
	// ErrorBackoff is how long an error event holds the driver's callback
	// goroutine before it is logged. Default: 500ms
	ErrorBackoff time.Duration
	// RearmOnRemoval restarts detection after a card is removed. Default: true
	RearmOnRemoval bool
}

// DefaultConfig returns the default hunt configuration
func DefaultConfig() *Config {
	return &Config{
		HunterName:     flowbird.ServiceHunter,
		ErrorBackoff:   500 * time.Millisecond,
		RearmOnRemoval: true,
	}
}
