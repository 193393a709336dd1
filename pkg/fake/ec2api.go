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
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/samber/lo"

	sdk "github.com/awslabs/aws-pause/pkg/aws"
)

// EC2Behavior must be reset between tests otherwise tests will
// pollute each other.
type EC2Behavior struct {
	DescribeInstancesBehavior MockedFunction[ec2.DescribeInstancesInput, ec2.DescribeInstancesOutput]
	StopInstancesBehavior     MockedFunction[ec2.StopInstancesInput, ec2.StopInstancesOutput]
	StartInstancesBehavior    MockedFunction[ec2.StartInstancesInput, ec2.StartInstancesOutput]
	Instances                 sync.Map // instance id -> *ec2types.Instance
}

type EC2API struct {
	sdk.EC2API
	EC2Behavior
}

func NewEC2API() *EC2API {
	return &EC2API{}
}

// Reset must be called between tests otherwise tests will pollute
// each other.
func (e *EC2API) Reset() {
	e.DescribeInstancesBehavior.Reset()
	e.StopInstancesBehavior.Reset()
	e.StartInstancesBehavior.Reset()
	e.Instances.Range(func(k, v any) bool {
		e.Instances.Delete(k)
		return true
	})
}

// AddInstance seeds the fake account with an instance, keyed by id.
func (e *EC2API) AddInstance(instance ec2types.Instance) {
	e.Instances.Store(lo.FromPtr(instance.InstanceId), &instance)
}

// SetInstanceState rewrites the stored state of an instance, for tests
// that stage transient states like stopping.
func (e *EC2API) SetInstanceState(id string, state ec2types.InstanceStateName) {
	if v, ok := e.Instances.Load(id); ok {
		instance := v.(*ec2types.Instance)
		instance.State = &ec2types.InstanceState{Name: state}
		e.Instances.Store(id, instance)
	}
}

func (e *EC2API) DescribeInstances(_ context.Context, input *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	return e.DescribeInstancesBehavior.Invoke(input, func(input *ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
		var instances []ec2types.Instance
		if len(input.InstanceIds) > 0 {
			for _, id := range input.InstanceIds {
				v, ok := e.Instances.Load(id)
				if !ok {
					return nil, &smithy.GenericAPIError{Code: "InvalidInstanceID.NotFound", Message: id}
				}
				instances = append(instances, *v.(*ec2types.Instance))
			}
		} else {
			e.Instances.Range(func(_, v any) bool {
				instances = append(instances, *v.(*ec2types.Instance))
				return true
			})
		}
		if len(instances) == 0 {
			return &ec2.DescribeInstancesOutput{}, nil
		}
		return &ec2.DescribeInstancesOutput{
			Reservations: []ec2types.Reservation{{Instances: instances}},
		}, nil
	})
}

func (e *EC2API) StopInstances(_ context.Context, input *ec2.StopInstancesInput, _ ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
	return e.StopInstancesBehavior.Invoke(input, func(input *ec2.StopInstancesInput) (*ec2.StopInstancesOutput, error) {
		var changes []ec2types.InstanceStateChange
		for _, id := range input.InstanceIds {
			v, ok := e.Instances.Load(id)
			if !ok {
				return nil, &smithy.GenericAPIError{Code: "InvalidInstanceID.NotFound", Message: id}
			}
			instance := v.(*ec2types.Instance)
			previous := instance.State
			// The fake converges immediately instead of passing
			// through the stopping state.
			instance.State = &ec2types.InstanceState{Name: ec2types.InstanceStateNameStopped}
			e.Instances.Store(id, instance)
			changes = append(changes, ec2types.InstanceStateChange{
				InstanceId:    lo.ToPtr(id),
				PreviousState: previous,
				CurrentState:  instance.State,
			})
		}
		return &ec2.StopInstancesOutput{StoppingInstances: changes}, nil
	})
}

func (e *EC2API) StartInstances(_ context.Context, input *ec2.StartInstancesInput, _ ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error) {
	return e.StartInstancesBehavior.Invoke(input, func(input *ec2.StartInstancesInput) (*ec2.StartInstancesOutput, error) {
		var changes []ec2types.InstanceStateChange
		for _, id := range input.InstanceIds {
			v, ok := e.Instances.Load(id)
			if !ok {
				return nil, &smithy.GenericAPIError{Code: "InvalidInstanceID.NotFound", Message: id}
			}
			instance := v.(*ec2types.Instance)
			previous := instance.State
			instance.State = &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning}
			e.Instances.Store(id, instance)
			changes = append(changes, ec2types.InstanceStateChange{
				InstanceId:    lo.ToPtr(id),
				PreviousState: previous,
				CurrentState:  instance.State,
			})
		}
		return &ec2.StartInstancesOutput{StartingInstances: changes}, nil
	})
}
