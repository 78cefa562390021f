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

package utils

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
)

// ParallelLimiter bounds the number of in-flight calls against a slow
// dependency, e.g. a remote backend.
type ParallelLimiter struct {
	q chan struct{}
}

func (l *ParallelLimiter) Acquire(ctx context.Context) error {
	select {
	case l.q <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *ParallelLimiter) Release() {
	select {
	case <-l.q:
	default:
	}
}

func NewParallelLimiter(ctn int) *ParallelLimiter {
	if ctn <= 0 {
		ctn = 1
	}
	return &ParallelLimiter{q: make(chan struct{}, ctn)}
}

// Recover must be called directly by a deferred function.
func Recover() error {
	if panicErr := recover(); panicErr != nil {
		debug.PrintStack()
		sentry.CurrentHub().Recover(panicErr)
		return fmt.Errorf("panic: %v", panicErr)
	}
	return nil
}

// SafeGo runs fn in a new goroutine, reporting panics instead of crashing.
func SafeGo(fn func(), onPanic func(err error)) {
	go func() {
		defer func() {
			if panicErr := recover(); panicErr != nil {
				debug.PrintStack()
				sentry.CurrentHub().Recover(panicErr)
				if onPanic != nil {
					onPanic(fmt.Errorf("panic: %v", panicErr))
				}
			}
		}()
		fn()
	}()
}
