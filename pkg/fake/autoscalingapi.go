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

package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	astypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/smithy-go"
	"github.com/samber/lo"

	sdk "github.com/awslabs/aws-pause/pkg/aws"
	"github.com/awslabs/aws-pause/pkg/utils/rand"
)

// AutoScalingBehavior must be reset between tests otherwise tests will
// pollute each other.
type AutoScalingBehavior struct {
	DescribeAutoScalingGroupsBehavior MockedFunction[autoscaling.DescribeAutoScalingGroupsInput, autoscaling.DescribeAutoScalingGroupsOutput]
	SuspendProcessesBehavior          MockedFunction[autoscaling.SuspendProcessesInput, autoscaling.SuspendProcessesOutput]
	ResumeProcessesBehavior           MockedFunction[autoscaling.ResumeProcessesInput, autoscaling.ResumeProcessesOutput]
	SetDesiredCapacityBehavior        MockedFunction[autoscaling.SetDesiredCapacityInput, autoscaling.SetDesiredCapacityOutput]
	Groups                            sync.Map // group name -> *astypes.AutoScalingGroup
}

type AutoScalingAPI struct {
	sdk.AutoScalingAPI
	AutoScalingBehavior
}

func NewAutoScalingAPI() *AutoScalingAPI {
	return &AutoScalingAPI{}
}

// Reset must be called between tests otherwise tests will pollute
// each other.
func (a *AutoScalingAPI) Reset() {
	a.DescribeAutoScalingGroupsBehavior.Reset()
	a.SuspendProcessesBehavior.Reset()
	a.ResumeProcessesBehavior.Reset()
	a.SetDesiredCapacityBehavior.Reset()
	a.Groups.Range(func(k, v any) bool {
		a.Groups.Delete(k)
		return true
	})
}

func (a *AutoScalingAPI) AddGroup(group astypes.AutoScalingGroup) {
	a.Groups.Store(lo.FromPtr(group.AutoScalingGroupName), &group)
}

// Group returns the stored group by name, for assertions on capacity
// and suspensions the driver wrote back.
func (a *AutoScalingAPI) Group(name string) (astypes.AutoScalingGroup, bool) {
	if v, ok := a.Groups.Load(name); ok {
		return *v.(*astypes.AutoScalingGroup), true
	}
	return astypes.AutoScalingGroup{}, false
}

func (a *AutoScalingAPI) DescribeAutoScalingGroups(_ context.Context, input *autoscaling.DescribeAutoScalingGroupsInput, _ ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error) {
	return a.DescribeAutoScalingGroupsBehavior.Invoke(input, func(input *autoscaling.DescribeAutoScalingGroupsInput) (*autoscaling.DescribeAutoScalingGroupsOutput, error) {
		var groups []astypes.AutoScalingGroup
		if len(input.AutoScalingGroupNames) > 0 {
			for _, name := range input.AutoScalingGroupNames {
				if v, ok := a.Groups.Load(name); ok {
					groups = append(groups, *v.(*astypes.AutoScalingGroup))
				}
			}
		} else {
			a.Groups.Range(func(_, v any) bool {
				groups = append(groups, *v.(*astypes.AutoScalingGroup))
				return true
			})
		}
		return &autoscaling.DescribeAutoScalingGroupsOutput{AutoScalingGroups: groups}, nil
	})
}

func (a *AutoScalingAPI) SuspendProcesses(_ context.Context, input *autoscaling.SuspendProcessesInput, _ ...func(*autoscaling.Options)) (*autoscaling.SuspendProcessesOutput, error) {
	return a.SuspendProcessesBehavior.Invoke(input, func(input *autoscaling.SuspendProcessesInput) (*autoscaling.SuspendProcessesOutput, error) {
		group, ok := a.load(lo.FromPtr(input.AutoScalingGroupName))
		if !ok {
			return nil, groupNotFound(lo.FromPtr(input.AutoScalingGroupName))
		}
		existing := lo.Map(group.SuspendedProcesses, func(p astypes.SuspendedProcess, _ int) string {
			return lo.FromPtr(p.ProcessName)
		})
		for _, name := range input.ScalingProcesses {
			if !lo.Contains(existing, name) {
				group.SuspendedProcesses = append(group.SuspendedProcesses, astypes.SuspendedProcess{
					ProcessName:      lo.ToPtr(name),
					SuspensionReason: lo.ToPtr("User suspended"),
				})
			}
		}
		a.Groups.Store(lo.FromPtr(group.AutoScalingGroupName), group)
		return &autoscaling.SuspendProcessesOutput{}, nil
	})
}

func (a *AutoScalingAPI) ResumeProcesses(_ context.Context, input *autoscaling.ResumeProcessesInput, _ ...func(*autoscaling.Options)) (*autoscaling.ResumeProcessesOutput, error) {
	return a.ResumeProcessesBehavior.Invoke(input, func(input *autoscaling.ResumeProcessesInput) (*autoscaling.ResumeProcessesOutput, error) {
		group, ok := a.load(lo.FromPtr(input.AutoScalingGroupName))
		if !ok {
			return nil, groupNotFound(lo.FromPtr(input.AutoScalingGroupName))
		}
		group.SuspendedProcesses = lo.Reject(group.SuspendedProcesses, func(p astypes.SuspendedProcess, _ int) bool {
			return lo.Contains(input.ScalingProcesses, lo.FromPtr(p.ProcessName))
		})
		a.Groups.Store(lo.FromPtr(group.AutoScalingGroupName), group)
		return &autoscaling.ResumeProcessesOutput{}, nil
	})
}

func (a *AutoScalingAPI) SetDesiredCapacity(_ context.Context, input *autoscaling.SetDesiredCapacityInput, _ ...func(*autoscaling.Options)) (*autoscaling.SetDesiredCapacityOutput, error) {
	return a.SetDesiredCapacityBehavior.Invoke(input, func(input *autoscaling.SetDesiredCapacityInput) (*autoscaling.SetDesiredCapacityOutput, error) {
		group, ok := a.load(lo.FromPtr(input.AutoScalingGroupName))
		if !ok {
			return nil, groupNotFound(lo.FromPtr(input.AutoScalingGroupName))
		}
		desired := lo.FromPtr(input.DesiredCapacity)
		group.DesiredCapacity = lo.ToPtr(desired)
		// The fake launches and terminates immediately so in-service
		// polls converge on their first attempt.
		for int32(len(group.Instances)) < desired {
			group.Instances = append(group.Instances, astypes.Instance{
				InstanceId:     lo.ToPtr(fmt.Sprintf("i-%s", rand.HexString(17))),
				LifecycleState: astypes.LifecycleStateInService,
				HealthStatus:   lo.ToPtr("Healthy"),
			})
		}
		if int32(len(group.Instances)) > desired {
			group.Instances = group.Instances[:desired]
		}
		a.Groups.Store(lo.FromPtr(group.AutoScalingGroupName), group)
		return &autoscaling.SetDesiredCapacityOutput{}, nil
	})
}

func (a *AutoScalingAPI) load(name string) (*astypes.AutoScalingGroup, bool) {
	if v, ok := a.Groups.Load(name); ok {
		return v.(*astypes.AutoScalingGroup), true
	}
	return nil, false
}

func groupNotFound(name string) error {
	return &smithy.GenericAPIError{Code: "ValidationError", Message: fmt.Sprintf("AutoScalingGroup name not found: %s", name)}
}
