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

// State is the detection state of the contactless antenna
type State int

const (
	// StateIdle means no hunt is running
	StateIdle State = iota
	// StateHunting means the hunter is waiting for media
	StateHunting
	// StateCardPresent means a tag was decoded and is on the antenna
	StateCardPresent
	// StateError means the last detection could not be decoded
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateHunting:
		return "Hunting"
	case StateCardPresent:
		return "CardPresent"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}
