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

package instancegroup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	astypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/samber/lo"

	sdk "github.com/awslabs/aws-pause/pkg/aws"
	"github.com/awslabs/aws-pause/pkg/log"
	"github.com/awslabs/aws-pause/pkg/orchestration"
	"github.com/awslabs/aws-pause/pkg/resource"
	"github.com/awslabs/aws-pause/pkg/utils/pretty"
)

const (
	// States derived from the suspension flag and desired capacity; a
	// group that is both suspended and scaled to zero is fully paused.
	StateRunning   = "running"
	StateStopped   = "stopped"
	StateSuspended = "suspended"
	StatePaused    = "paused"

	lifecycleInService = "InService"
)

// ScalingProcesses is the full process set suspended on pause and
// resumed on resume, so a paused group neither launches replacements
// nor fights the zero desired capacity.
var ScalingProcesses = []string{
	"Launch", "Terminate", "HealthCheck", "ReplaceUnhealthy",
	"AZRebalance", "AlarmNotification", "ScheduledActions", "AddToLoadBalancer",
}

// DefaultWaitConfig polls every 30 seconds for up to ten minutes while
// instances drain or launch.
var DefaultWaitConfig = orchestration.WaitConfig{Delay: 30 * time.Second, Attempts: 20}

// Driver pauses auto scaling groups by suspending their scaling
// processes and scaling them to zero.
type Driver struct {
	autoscalingapi sdk.AutoScalingAPI
	region         string
	wait           orchestration.WaitConfig
	cm             *pretty.ChangeMonitor
}

func NewDriver(autoscalingapi sdk.AutoScalingAPI, region string, wait orchestration.WaitConfig) *Driver {
	return &Driver{
		autoscalingapi: autoscalingapi,
		region:         region,
		wait:           wait.OrDefault(DefaultWaitConfig),
		cm:             pretty.NewChangeMonitor(),
	}
}

func (d *Driver) Kind() resource.Kind {
	return resource.KindInstanceGroup
}

func (d *Driver) Region() string {
	return d.region
}

// DeriveState classifies a group from its suspension flag and desired
// capacity.
func DeriveState(suspended bool, desired int32) string {
	switch {
	case suspended && desired == 0:
		return StatePaused
	case suspended:
		return StateSuspended
	case desired == 0:
		return StateStopped
	default:
		return StateRunning
	}
}

// Enumerate lists every auto scaling group in the region.
func (d *Driver) Enumerate(ctx context.Context) ([]resource.Resource, error) {
	var resources []resource.Resource
	paginator := autoscaling.NewDescribeAutoScalingGroupsPaginator(d.autoscalingapi, &autoscaling.DescribeAutoScalingGroupsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describing auto scaling groups, %w", err)
		}
		for _, group := range page.AutoScalingGroups {
			id := lo.FromPtr(group.AutoScalingGroupName)
			if !resource.ValidKeyComponent(id) {
				log.FromContext(ctx).Warnf("skipping auto scaling group with unusable name %q", id)
				continue
			}
			resources = append(resources, resource.Resource{
				Kind:     resource.KindInstanceGroup,
				ID:       id,
				Region:   d.region,
				State:    DeriveState(len(group.SuspendedProcesses) > 0, lo.FromPtr(group.DesiredCapacity)),
				Tags:     tagMap(group.Tags),
				Metadata: metadata(group),
			})
		}
	}
	if d.cm.HasChanged(fmt.Sprintf("instance-groups/%s", d.region), len(resources)) {
		log.FromContext(ctx).Debugf("discovered %d instance groups in %s", len(resources), d.region)
	}
	return resources, nil
}

// Pausable covers running groups and groups whose processes are
// suspended but still carry capacity.
func (d *Driver) Pausable(r resource.Resource) bool {
	return r.State == StateRunning || r.State == StateSuspended
}

// Resumable covers every non-running shape a pause can leave behind.
func (d *Driver) Resumable(r resource.Resource) bool {
	return r.State == StateStopped || r.State == StatePaused || r.State == StateSuspended
}

// Pause suspends the scaling processes first so the group cannot
// launch replacements, then scales to zero and waits for in-service
// instances to drain.
func (d *Driver) Pause(ctx context.Context, r resource.Resource) (resource.Resource, error) {
	if _, err := d.autoscalingapi.SuspendProcesses(ctx, &autoscaling.SuspendProcessesInput{
		AutoScalingGroupName: lo.ToPtr(r.ID),
		ScalingProcesses:     ScalingProcesses,
	}); err != nil {
		return resource.Resource{}, fmt.Errorf("suspending processes for group %s, %w", r.ID, err)
	}
	if _, err := d.autoscalingapi.SetDesiredCapacity(ctx, &autoscaling.SetDesiredCapacityInput{
		AutoScalingGroupName: lo.ToPtr(r.ID),
		DesiredCapacity:      lo.ToPtr(int32(0)),
		HonorCooldown:        lo.ToPtr(false),
	}); err != nil {
		return resource.Resource{}, fmt.Errorf("scaling group %s to zero, %w", r.ID, err)
	}
	if err := d.awaitInService(ctx, r.ID, 0); err != nil {
		return resource.Resource{}, fmt.Errorf("waiting for group %s to drain, %w", r.ID, err)
	}
	return r.WithState(StatePaused), nil
}

// Resume lifts the process suspension and restores the snapshot-time
// desired capacity, waiting until that many instances are in service.
func (d *Driver) Resume(ctx context.Context, r resource.Resource) (resource.Resource, error) {
	desired, ok := resource.MetadataInt32(r.Metadata, "desired_capacity")
	if !ok {
		return resource.Resource{}, fmt.Errorf("group %s is missing its desired_capacity", r.ID)
	}
	if _, err := d.autoscalingapi.ResumeProcesses(ctx, &autoscaling.ResumeProcessesInput{
		AutoScalingGroupName: lo.ToPtr(r.ID),
		ScalingProcesses:     ScalingProcesses,
	}); err != nil {
		return resource.Resource{}, fmt.Errorf("resuming processes for group %s, %w", r.ID, err)
	}
	if _, err := d.autoscalingapi.SetDesiredCapacity(ctx, &autoscaling.SetDesiredCapacityInput{
		AutoScalingGroupName: lo.ToPtr(r.ID),
		DesiredCapacity:      lo.ToPtr(desired),
		HonorCooldown:        lo.ToPtr(false),
	}); err != nil {
		return resource.Resource{}, fmt.Errorf("restoring group %s to %d, %w", r.ID, desired, err)
	}
	if err := d.awaitInService(ctx, r.ID, desired); err != nil {
		return resource.Resource{}, fmt.Errorf("waiting for group %s to reach %d instances, %w", r.ID, desired, err)
	}
	return r.WithState(DeriveState(false, desired)), nil
}

func (d *Driver) awaitInService(ctx context.Context, name string, target int32) error {
	return retry.Do(func() error {
		out, err := d.autoscalingapi.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
			AutoScalingGroupNames: []string{name},
		})
		if err != nil {
			return err
		}
		if len(out.AutoScalingGroups) == 0 {
			return fmt.Errorf("group %s not found", name)
		}
		inService := lo.CountBy(out.AutoScalingGroups[0].Instances, func(i astypes.Instance) bool {
			return string(i.LifecycleState) == lifecycleInService
		})
		if int32(inService) != target {
			return fmt.Errorf("%d of %d instances in service", inService, target)
		}
		return nil
	},
		retry.Context(ctx),
		retry.Delay(d.wait.Delay),
		retry.Attempts(d.wait.Attempts),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

func metadata(group astypes.AutoScalingGroup) map[string]any {
	md := map[string]any{
		"desired_capacity":   lo.FromPtr(group.DesiredCapacity),
		"min_size":           lo.FromPtr(group.MinSize),
		"max_size":           lo.FromPtr(group.MaxSize),
		"availability_zones": group.AvailabilityZones,
		"suspended_processes": lo.Map(group.SuspendedProcesses, func(p astypes.SuspendedProcess, _ int) any {
			return lo.FromPtr(p.ProcessName)
		}),
		"instances": lo.Map(group.Instances, func(i astypes.Instance, _ int) any {
			return map[string]any{
				"instance_id":     lo.FromPtr(i.InstanceId),
				"lifecycle_state": string(i.LifecycleState),
				"health_status":   lo.FromPtr(i.HealthStatus),
			}
		}),
		"target_group_arns":   group.TargetGroupARNs,
		"load_balancer_names": group.LoadBalancerNames,
		"arn":                 lo.FromPtr(group.AutoScalingGroupARN),
	}
	if group.LaunchConfigurationName != nil {
		md["launch_configuration"] = lo.FromPtr(group.LaunchConfigurationName)
	}
	if group.LaunchTemplate != nil {
		md["launch_template"] = tree(group.LaunchTemplate)
	}
	if group.MixedInstancesPolicy != nil {
		md["mixed_instances_policy"] = tree(group.MixedInstancesPolicy)
	}
	if group.CreatedTime != nil {
		md["created_time"] = group.CreatedTime.UTC().Format(time.RFC3339)
	}
	return md
}

func tagMap(tags []astypes.TagDescription) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	return lo.SliceToMap(tags, func(t astypes.TagDescription) (string, string) {
		return lo.FromPtr(t.Key), lo.FromPtr(t.Value)
	})
}

func tree(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
