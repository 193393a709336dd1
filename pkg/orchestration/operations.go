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

	"github.com/awslabs/aws-pause/pkg/errors"
	"github.com/awslabs/aws-pause/pkg/log"
	"github.com/awslabs/aws-pause/pkg/resource"
)

// Operations is the high-level entry point the CLI drives: discover,
// filter, reduce to actionable resources, then either simulate or
// execute through the orchestrator.
type Operations struct {
	orchestrator *Orchestrator
	annotator    Annotator
}

// Annotator decorates resources after discovery and filtering,
// typically attaching cost hints the snapshot's savings estimate is
// built from.
type Annotator func(resources []resource.Resource) []resource.Resource

type OperationsOption func(*Operations)

func WithAnnotator(annotator Annotator) OperationsOption {
	return func(o *Operations) {
		o.annotator = annotator
	}
}

func NewOperations(orchestrator *Orchestrator, opts ...OperationsOption) *Operations {
	p := &Operations{orchestrator: orchestrator}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PauseRequest describes one pause-all run.
type PauseRequest struct {
	// Kinds restricts discovery; empty means every supported kind.
	Kinds []resource.Kind
	// Filter narrows the discovered set before pausability reduction.
	Filter Filter
	// DryRun simulates: results describe what would happen and no
	// snapshot is produced.
	DryRun bool
}

// Discover enumerates and filters without mutating anything; the
// status view is built on it.
func (p *Operations) Discover(ctx context.Context, kinds []resource.Kind, filter Filter) ([]resource.Resource, error) {
	resources, err := p.orchestrator.DiscoverAll(ctx, kinds...)
	if err != nil {
		return resources, err
	}
	return p.annotate(filter.Apply(resources)), nil
}

// PauseAll discovers, filters, drops resources whose current state is
// not pausable, and pauses the rest. When nothing remains after
// reduction it returns empty results and no snapshot rather than an
// error. Dry runs return simulated results and no snapshot.
func (p *Operations) PauseAll(ctx context.Context, req PauseRequest) ([]resource.OperationResult, *resource.Snapshot, error) {
	logger := log.FromContext(ctx)
	resources, err := p.orchestrator.DiscoverAll(ctx, req.Kinds...)
	if err != nil {
		return nil, nil, err
	}
	if len(resources) == 0 {
		logger.Warnf("no resources found to pause")
		return nil, nil, nil
	}
	filtered := req.Filter.Apply(resources)
	logger.Infof("found %d resources to pause after filtering", len(filtered))

	pausable := p.annotate(p.reduceToPausable(ctx, filtered))
	if len(pausable) == 0 {
		logger.Warnf("no pausable resources found")
		return nil, nil, nil
	}
	if req.DryRun {
		return p.dryRunResults(resource.OpPause, pausable), nil, nil
	}

	results, snapshot, err := p.orchestrator.Pause(ctx, pausable)
	p.logSummary(ctx, resource.OpPause, results)
	return results, snapshot, err
}

// ResumeSnapshot validates the snapshot and resumes every resource it
// holds. Dry runs return simulated results without touching anything.
func (p *Operations) ResumeSnapshot(ctx context.Context, snapshot *resource.Snapshot, dryRun bool) ([]resource.OperationResult, error) {
	if err := snapshot.Validate(); err != nil {
		return nil, errors.State(err)
	}
	if dryRun {
		return p.dryRunResults(resource.OpResume, snapshot.Resources), nil
	}
	results, err := p.orchestrator.Resume(ctx, snapshot)
	p.logSummary(ctx, resource.OpResume, results)
	return results, err
}

func (p *Operations) annotate(resources []resource.Resource) []resource.Resource {
	if p.annotator == nil {
		return resources
	}
	return p.annotator(resources)
}

// reduceToPausable keeps only resources whose driver reports them
// pausable in their current state; the rest are skipped quietly, the
// way an operator expects "pause everything" to behave.
func (p *Operations) reduceToPausable(ctx context.Context, resources []resource.Resource) []resource.Resource {
	logger := log.FromContext(ctx)
	var pausable []resource.Resource
	for _, r := range resources {
		driver, err := p.orchestrator.Registry().ForResource(r)
		if err != nil {
			logger.Warnf("resolving driver for %s, %s", r.Key(), err)
			continue
		}
		if !driver.Pausable(r) {
			logger.Debugf("skipping non-pausable %s %s (state %s)", r.Kind, r.ID, r.State)
			continue
		}
		pausable = append(pausable, r)
	}
	return pausable
}

func (p *Operations) dryRunResults(op resource.Op, resources []resource.Resource) []resource.OperationResult {
	verb := "pause"
	if op == resource.OpResume {
		verb = "resume"
	}
	now := p.orchestrator.Clock().Now().UTC()
	results := make([]resource.OperationResult, 0, len(resources))
	for _, r := range resources {
		results = append(results, resource.OperationResult{
			Success:   true,
			Resource:  r,
			Op:        op,
			Message:   fmt.Sprintf("[DRY RUN] Would %s %s %s", verb, r.Kind, r.ID),
			Timestamp: now,
		})
	}
	return results
}

func (p *Operations) logSummary(ctx context.Context, op resource.Op, results []resource.OperationResult) {
	logger := log.FromContext(ctx)
	summary := Summarize(results)
	logger.Infof("%s complete: %d/%d succeeded", op, summary.Succeeded, summary.Total)
	for _, failure := range summary.Failures {
		logger.Warnf("  %s %s: %s", failure.Kind, failure.ID, failure.Message)
	}
}
