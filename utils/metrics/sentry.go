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

package metrics

import (
	"os"

	"github.com/getsentry/sentry-go"
)

const sentryDSNEnv = "SENTRY_DSN"

// InitSentry enables panic reporting when SENTRY_DSN is set.
func InitSentry(release string) bool {
	dsn, ok := os.LookupEnv(sentryDSNEnv)
	if !ok || dsn == "" {
		return false
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		TracesSampleRate: 0.2,
	})
	return err == nil
}
