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

package instance

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/samber/lo"

	sdk "github.com/awslabs/aws-pause/pkg/aws"
	"github.com/awslabs/aws-pause/pkg/log"
	"github.com/awslabs/aws-pause/pkg/orchestration"
	"github.com/awslabs/aws-pause/pkg/resource"
	"github.com/awslabs/aws-pause/pkg/utils/pretty"
)

// DefaultVerifyConfig is the brief post-mutation verification window.
// EC2 acknowledges stop/start synchronously, so the driver only peeks
// at the transition instead of waiting for it to finish.
var DefaultVerifyConfig = orchestration.WaitConfig{Delay: 2 * time.Second, Attempts: 3}

// Driver pauses EC2 instances by stopping them and resumes them by
// starting them again.
type Driver struct {
	ec2api sdk.EC2API
	region string
	verify orchestration.WaitConfig
	cm     *pretty.ChangeMonitor
}

func NewDriver(ec2api sdk.EC2API, region string, verify orchestration.WaitConfig) *Driver {
	return &Driver{
		ec2api: ec2api,
		region: region,
		verify: verify.OrDefault(DefaultVerifyConfig),
		cm:     pretty.NewChangeMonitor(),
	}
}

func (d *Driver) Kind() resource.Kind {
	return resource.KindInstance
}

func (d *Driver) Region() string {
	return d.region
}

// Enumerate lists all instances in the region except terminated ones,
// which can never be brought back.
func (d *Driver) Enumerate(ctx context.Context) ([]resource.Resource, error) {
	var resources []resource.Resource
	paginator := ec2.NewDescribeInstancesPaginator(d.ec2api, &ec2.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describing instances, %w", err)
		}
		for _, reservation := range page.Reservations {
			for _, instance := range reservation.Instances {
				if instance.State == nil || instance.State.Name == ec2types.InstanceStateNameTerminated {
					continue
				}
				id := lo.FromPtr(instance.InstanceId)
				if !resource.ValidKeyComponent(id) {
					log.FromContext(ctx).Warnf("skipping instance with unusable id %q", id)
					continue
				}
				resources = append(resources, resource.Resource{
					Kind:     resource.KindInstance,
					ID:       id,
					Region:   d.region,
					State:    string(instance.State.Name),
					Tags:     tagMap(instance.Tags),
					Metadata: metadata(instance),
				})
			}
		}
	}
	if d.cm.HasChanged(fmt.Sprintf("instances/%s", d.region), len(resources)) {
		log.FromContext(ctx).Debugf("discovered %d instances in %s", len(resources), d.region)
	}
	return resources, nil
}

// Pausable reports whether the instance is running; only running
// instances can be stopped.
func (d *Driver) Pausable(r resource.Resource) bool {
	return r.State == string(ec2types.InstanceStateNameRunning)
}

// Resumable covers stopped instances and those still on their way
// down; EC2 queues a start behind an in-flight stop.
func (d *Driver) Resumable(r resource.Resource) bool {
	return r.State == string(ec2types.InstanceStateNameStopped) || r.State == string(ec2types.InstanceStateNameStopping)
}

// Pause stops the instance. The follow-up describe is a courtesy
// check: when the stop call itself succeeds, a state that has not
// visibly advanced yet still counts as success.
func (d *Driver) Pause(ctx context.Context, r resource.Resource) (resource.Resource, error) {
	if _, err := d.ec2api.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: []string{r.ID}}); err != nil {
		return resource.Resource{}, fmt.Errorf("stopping instance %s, %w", r.ID, err)
	}
	state, err := d.awaitState(ctx, r.ID, ec2types.InstanceStateNameStopping, ec2types.InstanceStateNameStopped)
	if err != nil {
		return r.WithState(string(ec2types.InstanceStateNameStopped)), nil
	}
	return r.WithState(state), nil
}

// Resume starts the instance, with the same lenient verification as
// Pause.
func (d *Driver) Resume(ctx context.Context, r resource.Resource) (resource.Resource, error) {
	if _, err := d.ec2api.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: []string{r.ID}}); err != nil {
		return resource.Resource{}, fmt.Errorf("starting instance %s, %w", r.ID, err)
	}
	state, err := d.awaitState(ctx, r.ID, ec2types.InstanceStateNamePending, ec2types.InstanceStateNameRunning)
	if err != nil {
		return r.WithState(string(ec2types.InstanceStateNameRunning)), nil
	}
	return r.WithState(state), nil
}

func (d *Driver) awaitState(ctx context.Context, id string, targets ...ec2types.InstanceStateName) (string, error) {
	var state string
	err := retry.Do(func() error {
		out, err := d.ec2api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}})
		if err != nil {
			return err
		}
		for _, reservation := range out.Reservations {
			for _, instance := range reservation.Instances {
				if instance.State != nil {
					state = string(instance.State.Name)
				}
			}
		}
		if lo.Contains(targets, ec2types.InstanceStateName(state)) {
			return nil
		}
		return fmt.Errorf("instance %s is %s", id, state)
	},
		retry.Context(ctx),
		retry.Delay(d.verify.Delay),
		retry.Attempts(d.verify.Attempts),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	return state, err
}

func metadata(instance ec2types.Instance) map[string]any {
	md := map[string]any{
		"instance_type": string(instance.InstanceType),
		// EC2 only reports a platform value for windows instances.
		"platform": lo.Ternary(instance.Platform != "", string(instance.Platform), "linux"),
	}
	if instance.Placement != nil {
		md["availability_zone"] = lo.FromPtr(instance.Placement.AvailabilityZone)
	}
	if instance.LaunchTime != nil {
		md["launch_time"] = instance.LaunchTime.UTC().Format(time.RFC3339)
	}
	if instance.VpcId != nil {
		md["vpc_id"] = lo.FromPtr(instance.VpcId)
	}
	if instance.SubnetId != nil {
		md["subnet_id"] = lo.FromPtr(instance.SubnetId)
	}
	if instance.PrivateIpAddress != nil {
		md["private_ip"] = lo.FromPtr(instance.PrivateIpAddress)
	}
	if instance.PublicIpAddress != nil {
		md["public_ip"] = lo.FromPtr(instance.PublicIpAddress)
	}
	return md
}

func tagMap(tags []ec2types.Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	return lo.SliceToMap(tags, func(t ec2types.Tag) (string, string) {
		return lo.FromPtr(t.Key), lo.FromPtr(t.Value)
	})
}
