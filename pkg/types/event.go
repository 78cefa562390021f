/*
 Copyright 2026 DragonStash Authors.

 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package types

import (
	"time"
)

type ConnectivityEvent struct {
	Backend   string    `json:"backend"`
	Connected bool      `json:"connected"`
	Reason    string    `json:"reason,omitempty"`
	Time      time.Time `json:"time"`
}

type SyncEvent struct {
	Ino      uint64    `json:"ino"`
	Path     string    `json:"path"`
	Added    int       `json:"added"`
	Updated  int       `json:"updated"`
	Vanished int       `json:"vanished"`
	Time     time.Time `json:"time"`
}
