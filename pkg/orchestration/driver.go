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

package orchestration

import (
	"context"
	"time"

	"github.com/awslabs/aws-pause/pkg/resource"
)

// Driver is the uniform contract a service family implements so the
// orchestrator can treat EC2 instances, RDS databases, ECS services and
// auto scaling groups identically. A driver is bound to a single
// (kind, region) pair at construction and holds the regional client it
// needs; drivers for different pairs never share mutable state.
type Driver interface {
	// Kind returns the resource kind this driver mutates.
	Kind() resource.Kind
	// Region returns the region this driver is bound to.
	Region() string
	// Enumerate lists every resource of the driver's kind in its
	// region, in any state. Implementations page through the service
	// API and normalize results; ids that cannot participate in the
	// composite key namespace are skipped with a warning.
	Enumerate(ctx context.Context) ([]resource.Resource, error)
	// Pause transitions a resource towards its paused state and blocks
	// until the driver's convergence condition holds (or its wait gives
	// up). The returned resource reflects the post-pause state; the
	// input is never mutated.
	Pause(ctx context.Context, r resource.Resource) (resource.Resource, error)
	// Resume restores a resource towards the state captured in its
	// metadata at snapshot time, blocking like Pause does.
	Resume(ctx context.Context, r resource.Resource) (resource.Resource, error)
	// Pausable reports whether Pause would act on the resource in its
	// current state. The orchestrator never calls Pause when this is
	// false; it records an "already ..." result instead.
	Pausable(r resource.Resource) bool
	// Resumable reports whether the resource's state is one a pause
	// leaves behind. The orchestrator does not gate Resume on it (the
	// snapshot records pre-pause states); it exists for callers that
	// inspect a snapshot before resuming.
	Resumable(r resource.Resource) bool
}

// WaitConfig bounds a driver's convergence wait as a fixed delay
// between polls and a maximum number of polls. The zero value tells a
// driver constructor to apply its kind-specific default; tests inject
// millisecond waits so convergence failures surface quickly.
type WaitConfig struct {
	Delay    time.Duration
	Attempts uint
}

// OrDefault returns c unless it is the zero value, in which case it
// returns def.
func (c WaitConfig) OrDefault(def WaitConfig) WaitConfig {
	if c == (WaitConfig{}) {
		return def
	}
	return c
}

// MaxDuration caps an overall wait at delay x attempts.
func (c WaitConfig) MaxDuration() time.Duration {
	return c.Delay * time.Duration(c.Attempts)
}
