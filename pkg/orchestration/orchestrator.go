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
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/awslabs/aws-pause/pkg/cancellation"
	"github.com/awslabs/aws-pause/pkg/errors"
	"github.com/awslabs/aws-pause/pkg/log"
	"github.com/awslabs/aws-pause/pkg/metrics"
	"github.com/awslabs/aws-pause/pkg/resource"
)

const (
	// DefaultDiscoverWorkers bounds concurrent (kind, region) discovery
	// pairs; enumeration is read-only so it fans out wider than
	// mutation does.
	DefaultDiscoverWorkers = 10
	// DefaultMutateWorkers bounds concurrent pause/resume calls so a
	// large fleet cannot stampede service API rate limits.
	DefaultMutateWorkers = 5
)

// Orchestrator owns the fan-out machinery: it discovers resources
// across every configured (kind, region) pair, freezes pre-pause state
// into a snapshot, and drives bounded pools of pause/resume mutations
// with per-resource error isolation.
type Orchestrator struct {
	registry        *Registry
	regions         []string
	discoverWorkers int
	mutateWorkers   int
	flag            *cancellation.Flag
	clk             clock.Clock
}

// Option mutates orchestrator defaults at construction.
type Option func(*Orchestrator)

// WithWorkers overrides the discovery and mutation pool sizes.
func WithWorkers(discover int, mutate int) Option {
	return func(o *Orchestrator) {
		if discover > 0 {
			o.discoverWorkers = discover
		}
		if mutate > 0 {
			o.mutateWorkers = mutate
		}
	}
}

// WithClock injects the clock used for timestamps and durations.
func WithClock(clk clock.Clock) Option {
	return func(o *Orchestrator) {
		o.clk = clk
	}
}

// WithCancellation injects the flag watched between units of work.
func WithCancellation(flag *cancellation.Flag) Option {
	return func(o *Orchestrator) {
		o.flag = flag
	}
}

func NewOrchestrator(registry *Registry, regions []string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:        registry,
		regions:         regions,
		discoverWorkers: DefaultDiscoverWorkers,
		mutateWorkers:   DefaultMutateWorkers,
		flag:            cancellation.Default(),
		clk:             clock.RealClock{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Registry exposes the driver registry for callers that need to
// consult driver predicates outside a pause/resume run.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Regions returns the regions the orchestrator fans out over.
func (o *Orchestrator) Regions() []string {
	return o.regions
}

// Clock returns the orchestrator's clock so layered callers stamp
// results consistently with it.
func (o *Orchestrator) Clock() clock.Clock {
	return o.clk
}

// DiscoverAll enumerates every (kind, region) pair through a bounded
// worker pool and returns the union. A failing pair is logged and
// skipped rather than failing the run; only when every pair fails does
// DiscoverAll return a service error carrying the accumulated causes.
// Cancellation stops scheduling further pairs and returns what has
// been collected alongside a cancellation error.
func (o *Orchestrator) DiscoverAll(ctx context.Context, kinds ...resource.Kind) ([]resource.Resource, error) {
	if len(o.regions) == 0 {
		return nil, errors.Configurationf("no regions configured")
	}
	if len(kinds) == 0 {
		kinds = resource.Kinds()
	}
	ctx, cancel := o.flag.Context(ctx)
	defer cancel()

	type pair struct {
		kind   resource.Kind
		region string
	}
	var pairs []pair
	for _, region := range o.regions {
		for _, kind := range kinds {
			pairs = append(pairs, pair{kind: kind, region: region})
		}
	}

	var (
		mu        sync.Mutex
		all       []resource.Resource
		errs      error
		skipped   int
		failed    int
		scheduled int
	)
	g := &errgroup.Group{}
	g.SetLimit(o.discoverWorkers)
	for _, p := range pairs {
		if o.flag.IsCancelled() {
			break
		}
		scheduled++
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}
			resources, err := o.discover(ctx, p.kind, p.region)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.FromContext(ctx).Warnf("discovering %s resources in %s, %s", p.kind, p.region, err)
				errs = multierr.Append(errs, fmt.Errorf("discovering %s resources in %s, %w", p.kind, p.region, err))
				failed++
				return nil
			}
			all = append(all, resources...)
			return nil
		})
	}
	// Workers record failures instead of returning them, so Wait only
	// reflects pool teardown.
	_ = g.Wait()

	attempted := scheduled - skipped
	if o.flag.IsCancelled() {
		return all, errors.Cancelledf("discovery cancelled with %d of %d scans finished", attempted, len(pairs))
	}
	if attempted > 0 && failed == attempted {
		return nil, errors.Service(fmt.Errorf("discovering resources, %w", errs))
	}
	log.FromContext(ctx).Debugf("discovered %d resources across %d regions", len(all), len(o.regions))
	return all, nil
}

func (o *Orchestrator) discover(ctx context.Context, kind resource.Kind, region string) ([]resource.Resource, error) {
	driver, err := o.registry.Driver(kind, region)
	if err != nil {
		return nil, err
	}
	resources, err := driver.Enumerate(ctx)
	if err != nil {
		return nil, err
	}
	metrics.DiscoveredResources.With(prometheus.Labels{
		metrics.KindLabel:   string(kind),
		metrics.RegionLabel: region,
	}).Set(float64(len(resources)))
	return resources, nil
}

// Pause freezes the original state of every resource, then pauses them
// through a bounded pool. The freeze step is strictly serial and
// completes before the first mutation is scheduled, so the snapshot
// records pre-pause state even for resources whose pause later fails.
// The snapshot is returned even when every pause fails; only the
// results tell the difference. On cancellation the partial results and
// the complete snapshot are returned with a cancellation error.
func (o *Orchestrator) Pause(ctx context.Context, resources []resource.Resource) ([]resource.OperationResult, *resource.Snapshot, error) {
	snapshot := &resource.Snapshot{
		ID:                    resource.NewSnapshotID(o.clk),
		Timestamp:             o.clk.Now().UTC(),
		Resources:             resources,
		OriginalStates:        map[string]resource.OriginalState{},
		TotalEstimatedSavings: resource.EstimatedMonthlySavings(resources),
	}
	for _, r := range resources {
		snapshot.OriginalStates[r.Key()] = resource.OriginalState{
			CurrentState: r.State,
			Metadata:     resource.CloneMetadata(r.Metadata),
		}
	}
	snapshot.Region = snapshot.PrimaryRegion()
	metrics.SnapshotSavingsEstimate.Set(snapshot.TotalEstimatedSavings)

	results := o.mutate(ctx, resource.OpPause, resources)
	snapshot.OperationResults = results
	if o.flag.IsCancelled() {
		return results, snapshot, errors.Cancelledf("pause cancelled after %d of %d resources", len(results), len(resources))
	}
	return results, snapshot, nil
}

// Resume restores every resource in the snapshot towards its original
// state. The snapshot is validated first; an inconsistent snapshot is
// a state error and nothing is mutated.
func (o *Orchestrator) Resume(ctx context.Context, snapshot *resource.Snapshot) ([]resource.OperationResult, error) {
	if err := snapshot.Validate(); err != nil {
		return nil, errors.State(err)
	}
	results := o.mutate(ctx, resource.OpResume, snapshot.Resources)
	if o.flag.IsCancelled() {
		return results, errors.Cancelledf("resume cancelled after %d of %d resources", len(results), len(snapshot.Resources))
	}
	return results, nil
}

// mutate fans resources out over the mutation pool. Scheduling stops
// as soon as the cancellation flag is raised; resources never
// scheduled produce no result, giving callers a partial result set
// that reflects exactly what was attempted.
func (o *Orchestrator) mutate(ctx context.Context, op resource.Op, resources []resource.Resource) []resource.OperationResult {
	ctx, cancel := o.flag.Context(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		results []resource.OperationResult
	)
	g := &errgroup.Group{}
	g.SetLimit(o.mutateWorkers)
	for _, r := range resources {
		if o.flag.IsCancelled() {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			result := o.mutateOne(ctx, op, r)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// mutateOne applies one operation to one resource and always returns a
// result; driver errors become failed results, never panics or raw
// errors crossing the pool boundary.
func (o *Orchestrator) mutateOne(ctx context.Context, op resource.Op, r resource.Resource) resource.OperationResult {
	start := o.clk.Now()
	result := func() resource.OperationResult {
		driver, err := o.registry.ForResource(r)
		if err != nil {
			return o.newResult(op, r, start, false, fmt.Sprintf("resolving driver, %s", err))
		}
		switch op {
		case resource.OpPause:
			if !driver.Pausable(r) {
				return o.newResult(op, r, start, false, fmt.Sprintf("already %s", r.State))
			}
			paused, err := driver.Pause(ctx, r)
			if err != nil {
				return o.newResult(op, r, start, false, err.Error())
			}
			return o.newResult(op, paused, start, true, fmt.Sprintf("paused %s %s", r.Kind, r.ID))
		case resource.OpResume:
			// Resume is unconditional: the snapshot records pre-pause
			// states, so gating on them would skip exactly the resources
			// the pause touched. Drivers tolerate already-running targets.
			resumed, err := driver.Resume(ctx, r)
			if err != nil {
				return o.newResult(op, r, start, false, err.Error())
			}
			return o.newResult(op, resumed, start, true, fmt.Sprintf("resumed %s %s", r.Kind, r.ID))
		default:
			return o.newResult(op, r, start, false, fmt.Sprintf("unsupported operation %q", op))
		}
	}()
	outcome := metrics.OutcomeFailure
	if result.Success {
		outcome = metrics.OutcomeSuccess
	}
	metrics.OperationsTotal.With(prometheus.Labels{
		metrics.OpLabel:      string(op),
		metrics.KindLabel:    string(r.Kind),
		metrics.OutcomeLabel: outcome,
	}).Inc()
	metrics.OperationDuration.With(prometheus.Labels{
		metrics.OpLabel:   string(op),
		metrics.KindLabel: string(r.Kind),
	}).Observe(result.DurationSeconds)
	if !result.Success {
		log.FromContext(ctx).Warnf("%s %s %s, %s", op, r.Kind, r.ID, result.Message)
	}
	return result
}

func (o *Orchestrator) newResult(op resource.Op, r resource.Resource, start time.Time, success bool, message string) resource.OperationResult {
	return resource.OperationResult{
		Success:         success,
		Resource:        r,
		Op:              op,
		Message:         message,
		Timestamp:       o.clk.Now().UTC(),
		DurationSeconds: o.clk.Since(start).Seconds(),
	}
}
