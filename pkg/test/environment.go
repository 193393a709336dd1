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

package test

import (
	"context"
	"time"

	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	clock "k8s.io/utils/clock/testing"

	sdk "github.com/awslabs/aws-pause/pkg/aws"
	"github.com/awslabs/aws-pause/pkg/cancellation"
	"github.com/awslabs/aws-pause/pkg/fake"
	"github.com/awslabs/aws-pause/pkg/operator"
	"github.com/awslabs/aws-pause/pkg/orchestration"
	"github.com/awslabs/aws-pause/pkg/providers/pricing"
	"github.com/awslabs/aws-pause/pkg/resource"
	"github.com/awslabs/aws-pause/pkg/state"

	astypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
)

// WaitConfig keeps driver convergence polls in the millisecond range;
// the fakes converge immediately, so a single fast retry is plenty.
var WaitConfig = orchestration.WaitConfig{Delay: time.Millisecond, Attempts: 3}

type Environment struct {
	// Mock
	Clock        *clock.FakeClock
	Cancellation *cancellation.Flag

	// API
	EC2API         *fake.EC2API
	RDSAPI         *fake.RDSAPI
	ECSAPI         *fake.ECSAPI
	AutoScalingAPI *fake.AutoScalingAPI
	STSAPI         *fake.STSAPI
	PricingAPI     *fake.PricingAPI

	// Core
	Store           *state.Store
	Registry        *orchestration.Registry
	Orchestrator    *orchestration.Orchestrator
	Operations      *orchestration.Operations
	PricingProvider *pricing.Provider
}

func NewEnvironment(_ context.Context) *Environment {
	env := &Environment{
		Clock:        clock.NewFakeClock(time.Now()),
		Cancellation: cancellation.NewFlag(),

		EC2API:         fake.NewEC2API(),
		RDSAPI:         fake.NewRDSAPI(),
		ECSAPI:         fake.NewECSAPI(),
		AutoScalingAPI: fake.NewAutoScalingAPI(),
		STSAPI:         fake.NewSTSAPI(),
		PricingAPI:     fake.NewPricingAPI(),
	}
	env.Store = lo.Must(state.NewStore(afero.NewMemMapFs(), "/snapshots"))
	env.Registry = orchestration.NewRegistry(operator.NewDriverFactory(env, WaitConfig))
	env.Orchestrator = orchestration.NewOrchestrator(env.Registry, []string{fake.DefaultRegion},
		orchestration.WithClock(env.Clock),
		orchestration.WithCancellation(env.Cancellation),
	)
	env.PricingProvider = pricing.NewProvider(env.PricingAPI, fake.DefaultRegion)
	env.Operations = orchestration.NewOperations(env.Orchestrator,
		orchestration.WithAnnotator(env.PricingProvider.Annotate))
	return env
}

// Environment doubles as the operator.ClientProvider so driver
// factories resolve regional clients straight to the fakes.
func (env *Environment) EC2(string) sdk.EC2API                 { return env.EC2API }
func (env *Environment) RDS(string) sdk.RDSAPI                 { return env.RDSAPI }
func (env *Environment) ECS(string) sdk.ECSAPI                 { return env.ECSAPI }
func (env *Environment) AutoScaling(string) sdk.AutoScalingAPI { return env.AutoScalingAPI }

// Reset must be called between tests otherwise tests will pollute
// each other.
func (env *Environment) Reset() {
	env.Clock.SetTime(time.Now())
	env.Cancellation.Reset()
	env.EC2API.Reset()
	env.RDSAPI.Reset()
	env.ECSAPI.Reset()
	env.AutoScalingAPI.Reset()
	env.STSAPI.Reset()
	env.PricingAPI.Reset()
	env.PricingProvider.Reset()
	env.Store = lo.Must(state.NewStore(afero.NewMemMapFs(), "/snapshots"))
}

// AddGroup seeds an instance group together with the instances it
// launched; members show up in the instance fake the same way real
// group capacity shows up in DescribeInstances.
func (env *Environment) AddGroup(group astypes.AutoScalingGroup) {
	env.AutoScalingAPI.AddGroup(group)
	for _, member := range group.Instances {
		env.EC2API.AddInstance(Instance(ec2types.Instance{
			InstanceId: member.InstanceId,
			Tags: []ec2types.Tag{{
				Key:   lo.ToPtr("aws:autoscaling:groupName"),
				Value: group.AutoScalingGroupName,
			}},
		}))
	}
}

// DiscoverAll enumerates every kind through the orchestrator, for
// tests that only care about the resulting resources.
func (env *Environment) DiscoverAll(ctx context.Context) []resource.Resource {
	return lo.Must(env.Orchestrator.DiscoverAll(ctx, resource.Kinds()...))
}
