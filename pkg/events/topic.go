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

package events

import (
	"fmt"
)

const (
	TopicNamespaceBackend = "backend"
	TopicNamespaceDir     = "dir"

	ActionTypeOnline  = "online"
	ActionTypeOffline = "offline"
	ActionTypeSynced  = "synced"
)

var (
	TopicBackendOnline  = NamespacedTopic(TopicNamespaceBackend, ActionTypeOnline)
	TopicBackendOffline = NamespacedTopic(TopicNamespaceBackend, ActionTypeOffline)
	TopicDirSynced      = NamespacedTopic(TopicNamespaceDir, ActionTypeSynced)
)

// NamespacedTopic builds a bus topic such as "action.backend.online".
func NamespacedTopic(ns, action string) string {
	return fmt.Sprintf("action.%s.%s", ns, action)
}

func ConnectivityTopic(connected bool) string {
	if connected {
		return TopicBackendOnline
	}
	return TopicBackendOffline
}
