/*
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

package cancellation

import (
	"context"
	"sync"
)

// Flag is a single-writer, many-reader cancellation signal. The
// orchestrator only reads it; requests come from an external watcher
// (the CLI's ESC listener). Reset is meant for the gap between
// operations — Context derivations taken before a Reset keep observing
// the request they saw.
type Flag struct {
	mu        sync.Mutex
	cancelled bool
	done      chan struct{}
}

func NewFlag() *Flag {
	return &Flag{done: make(chan struct{})}
}

// Request marks the flag cancelled. Idempotent.
func (f *Flag) Request() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelled {
		return
	}
	f.cancelled = true
	close(f.done)
}

func (f *Flag) IsCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// Reset rearms the flag for the next operation.
func (f *Flag) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.cancelled {
		return
	}
	f.cancelled = false
	f.done = make(chan struct{})
}

// Done returns a channel closed when cancellation has been requested.
func (f *Flag) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// Context derives a context that is cancelled when the flag is
// requested, threading the cooperative signal into SDK calls and
// convergence waits.
func (f *Flag) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	done := f.Done()
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// defaultFlag backs the process-wide package-level API, a convenience
// for the keyboard watcher to reach the orchestrator without plumbing.
var defaultFlag = NewFlag()

func Default() *Flag {
	return defaultFlag
}

func Request() {
	defaultFlag.Request()
}

func IsCancelled() bool {
	return defaultFlag.IsCancelled()
}

func Reset() {
	defaultFlag.Reset()
}
