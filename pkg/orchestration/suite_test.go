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

package orchestration_test

import (
	"context"
	"testing"

	astypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"

	"github.com/awslabs/aws-pause/pkg/errors"
	"github.com/awslabs/aws-pause/pkg/fake"
	"github.com/awslabs/aws-pause/pkg/resource"
	"github.com/awslabs/aws-pause/pkg/test"
)

var ctx context.Context
var env *test.Environment

func TestOrchestration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Orchestration")
}

var _ = BeforeSuite(func() {
	env = test.NewEnvironment(context.Background())
})

var _ = BeforeEach(func() {
	ctx = context.Background()
	env.Reset()
})

var _ = Describe("DiscoverAll", func() {
	It("should return nothing for an empty account", func() {
		resources, err := env.Orchestrator.DiscoverAll(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(resources).To(BeEmpty())
	})
	It("should enumerate every kind with its required metadata", func() {
		env.EC2API.AddInstance(test.Instance())
		env.EC2API.AddInstance(test.Instance())
		env.RDSAPI.AddDBInstance(test.DBInstance())
		cluster := test.Cluster()
		env.ECSAPI.AddCluster(cluster)
		svc := test.Service(cluster)
		svc.DesiredCount, svc.RunningCount = 2, 2
		env.ECSAPI.AddService(svc)
		env.AddGroup(test.AutoScalingGroup(astypes.AutoScalingGroup{DesiredCapacity: lo.ToPtr[int32](2)}))

		resources, err := env.Orchestrator.DiscoverAll(ctx)
		Expect(err).ToNot(HaveOccurred())
		// The group's two members surface through the instance driver
		// alongside the standalone instances.
		Expect(resources).To(HaveLen(7))
		byKind := lo.CountValuesBy(resources, func(r resource.Resource) resource.Kind { return r.Kind })
		Expect(byKind[resource.KindInstance]).To(Equal(4))
		Expect(byKind[resource.KindDatabase]).To(Equal(1))
		Expect(byKind[resource.KindContainerService]).To(Equal(1))
		Expect(byKind[resource.KindInstanceGroup]).To(Equal(1))

		for _, r := range resources {
			Expect(r.ID).ToNot(BeEmpty())
			Expect(r.Region).To(Equal(fake.DefaultRegion))
			Expect(r.State).ToNot(BeEmpty())
			switch r.Kind {
			case resource.KindInstance:
				Expect(r.State).To(Equal("running"))
				Expect(r.Metadata).To(HaveKey("instance_type"))
				Expect(r.Metadata).To(HaveKey("platform"))
			case resource.KindDatabase:
				Expect(r.State).To(Equal("available"))
				Expect(r.Metadata).To(HaveKeyWithValue("resource_type", "db_instance"))
				Expect(r.Metadata).To(HaveKey("engine"))
			case resource.KindContainerService:
				Expect(r.State).To(Equal("running"))
				Expect(r.Metadata).To(HaveKey("cluster_arn"))
				Expect(r.Metadata).To(HaveKey("task_definition"))
				desiredCount, _ := resource.MetadataInt32(r.Metadata, "desired_count")
				Expect(desiredCount).To(Equal(int32(2)))
			case resource.KindInstanceGroup:
				Expect(r.State).To(Equal("running"))
				desiredCapacity, _ := resource.MetadataInt32(r.Metadata, "desired_capacity")
				Expect(desiredCapacity).To(Equal(int32(2)))
				Expect(r.Metadata).To(HaveKey("min_size"))
				Expect(r.Metadata).To(HaveKey("max_size"))
			}
		}
	})
	It("should restrict discovery to the requested kinds", func() {
		env.EC2API.AddInstance(test.Instance())
		env.RDSAPI.AddDBInstance(test.DBInstance())

		resources, err := env.Orchestrator.DiscoverAll(ctx, resource.KindDatabase)
		Expect(err).ToNot(HaveOccurred())
		Expect(resources).To(HaveLen(1))
		Expect(resources[0].Kind).To(Equal(resource.KindDatabase))
	})
	It("should skip a failing pair without failing the run", func() {
		env.EC2API.AddInstance(test.Instance())
		env.RDSAPI.AddDBInstance(test.DBInstance())
		env.EC2API.DescribeInstancesBehavior.Error.Set(
			&smithy.GenericAPIError{Code: "RequestLimitExceeded", Message: "throttled"}, fake.MaxCalls(0))

		resources, err := env.Orchestrator.DiscoverAll(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(resources).To(HaveLen(1))
		Expect(resources[0].Kind).To(Equal(resource.KindDatabase))
	})
	It("should fail when every pair fails", func() {
		apiErr := &smithy.GenericAPIError{Code: "RequestLimitExceeded", Message: "throttled"}
		env.EC2API.DescribeInstancesBehavior.Error.Set(apiErr, fake.MaxCalls(0))
		env.RDSAPI.DescribeDBInstancesBehavior.Error.Set(apiErr, fake.MaxCalls(0))
		env.ECSAPI.ListClustersBehavior.Error.Set(apiErr, fake.MaxCalls(0))
		env.AutoScalingAPI.DescribeAutoScalingGroupsBehavior.Error.Set(apiErr, fake.MaxCalls(0))

		_, err := env.Orchestrator.DiscoverAll(ctx)
		Expect(err).To(HaveOccurred())
		Expect(errors.IsService(err)).To(BeTrue())
	})
	It("should return what was collected when cancelled", func() {
		env.EC2API.AddInstance(test.Instance())
		env.Cancellation.Request()

		resources, err := env.Orchestrator.DiscoverAll(ctx)
		Expect(err).To(HaveOccurred())
		Expect(errors.IsCancelled(err)).To(BeTrue())
		Expect(resources).To(BeEmpty())
	})
})

var _ = Describe("Pause", func() {
	It("should freeze original states before mutating and return a complete snapshot", func() {
		env.EC2API.AddInstance(test.Instance())
		env.RDSAPI.AddDBInstance(test.DBInstance())
		cluster := test.Cluster()
		env.ECSAPI.AddCluster(cluster)
		svc := test.Service(cluster)
		svc.DesiredCount, svc.RunningCount = 2, 2
		env.ECSAPI.AddService(svc)
		env.AddGroup(test.AutoScalingGroup(astypes.AutoScalingGroup{DesiredCapacity: lo.ToPtr[int32](2)}))

		resources := env.DiscoverAll(ctx)
		Expect(resources).To(HaveLen(6))

		results, snapshot, err := env.Orchestrator.Pause(ctx, resources)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(HaveLen(len(resources)))
		for _, result := range results {
			Expect(result.Success).To(BeTrue(), result.Message)
		}

		Expect(snapshot.OriginalStates).To(HaveLen(len(resources)))
		for _, r := range resources {
			original, ok := snapshot.OriginalStates[r.Key()]
			Expect(ok).To(BeTrue(), r.Key())
			// The recorded state is the enumerate-time state, not the
			// post-pause one.
			Expect(original.CurrentState).To(Equal(r.State))
		}
		Expect(snapshot.Region).To(Equal(fake.DefaultRegion))
		Expect(snapshot.ID).To(HavePrefix("pause-"))
		Expect(snapshot.Validate()).To(Succeed())
	})
	It("should estimate monthly savings from cost hints", func() {
		resources := []resource.Resource{
			instanceResource("i-1", "running", map[string]any{}, lo.ToPtr(0.10)),
			instanceResource("i-2", "running", map[string]any{}, lo.ToPtr(0.05)),
			instanceResource("i-3", "running", map[string]any{}, nil),
		}
		_, snapshot, _ := env.Orchestrator.Pause(ctx, resources)
		Expect(snapshot.TotalEstimatedSavings).To(BeNumerically("~", 0.15*24*30, 1e-9))
	})
	It("should record a failed result instead of failing the phase", func() {
		running := test.Instance()
		broken := test.Instance()
		env.EC2API.AddInstance(running)
		env.EC2API.AddInstance(broken)
		env.EC2API.StopInstancesBehavior.Error.Set(
			&smithy.GenericAPIError{Code: "InternalError", Message: "boom"})

		resources := env.DiscoverAll(ctx)
		results, snapshot, err := env.Orchestrator.Pause(ctx, resources)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(HaveLen(2))
		Expect(lo.CountBy(results, func(r resource.OperationResult) bool { return r.Success })).To(Equal(1))
		// The snapshot still covers the failed resource.
		Expect(snapshot.OriginalStates).To(HaveLen(2))
	})
	It("should gate pause on the pausability rule without calling the driver", func() {
		stopped := test.Instance()
		stopped.State = &ec2types.InstanceState{Name: ec2types.InstanceStateNameStopped}
		env.EC2API.AddInstance(stopped)

		resources := env.DiscoverAll(ctx)
		results, _, err := env.Orchestrator.Pause(ctx, resources)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Success).To(BeFalse())
		Expect(results[0].Message).To(Equal("already stopped"))
		Expect(env.EC2API.StopInstancesBehavior.Calls()).To(Equal(0))
	})
	It("should stop scheduling once cancellation is requested", func() {
		for i := 0; i < 10; i++ {
			env.EC2API.AddInstance(test.Instance())
		}
		resources := env.DiscoverAll(ctx)
		env.Cancellation.Request()

		results, snapshot, err := env.Orchestrator.Pause(ctx, resources)
		Expect(err).To(HaveOccurred())
		Expect(errors.IsCancelled(err)).To(BeTrue())
		Expect(results).To(BeEmpty())
		Expect(env.EC2API.StopInstancesBehavior.Calls()).To(Equal(0))
		// The freeze step is serial and finishes before the fan-out,
		// so even a cancelled pause yields a faithful snapshot.
		Expect(snapshot.OriginalStates).To(HaveLen(len(resources)))
	})
	It("should return the snapshot even when every pause fails", func() {
		env.EC2API.AddInstance(test.Instance())
		env.EC2API.StopInstancesBehavior.Error.Set(
			&smithy.GenericAPIError{Code: "InternalError", Message: "boom"}, fake.MaxCalls(0))

		resources := env.DiscoverAll(ctx)
		results, snapshot, err := env.Orchestrator.Pause(ctx, resources)
		Expect(err).ToNot(HaveOccurred())
		Expect(lo.EveryBy(results, func(r resource.OperationResult) bool { return !r.Success })).To(BeTrue())
		Expect(snapshot).ToNot(BeNil())
		Expect(snapshot.OriginalStates).To(HaveLen(1))
	})
})

var _ = Describe("Resume", func() {
	It("should restore every resource to its snapshot-time scale", func() {
		env.EC2API.AddInstance(test.Instance())
		env.RDSAPI.AddDBInstance(test.DBInstance())
		cluster := test.Cluster()
		env.ECSAPI.AddCluster(cluster)
		svc := test.Service(cluster)
		svc.DesiredCount, svc.RunningCount = 2, 2
		env.ECSAPI.AddService(svc)
		group := test.AutoScalingGroup(astypes.AutoScalingGroup{DesiredCapacity: lo.ToPtr[int32](2)})
		env.AddGroup(group)

		resources := env.DiscoverAll(ctx)
		_, snapshot, err := env.Orchestrator.Pause(ctx, resources)
		Expect(err).ToNot(HaveOccurred())

		pausedSvc, _ := env.ECSAPI.Service(lo.FromPtr(svc.ServiceName))
		Expect(pausedSvc.DesiredCount).To(Equal(int32(0)))
		pausedGroup, _ := env.AutoScalingAPI.Group(lo.FromPtr(group.AutoScalingGroupName))
		Expect(lo.FromPtr(pausedGroup.DesiredCapacity)).To(Equal(int32(0)))
		Expect(pausedGroup.SuspendedProcesses).To(HaveLen(8))

		results, err := env.Orchestrator.Resume(ctx, snapshot)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(HaveLen(len(snapshot.Resources)))
		for _, result := range results {
			Expect(result.Success).To(BeTrue(), result.Message)
		}

		resumedSvc, _ := env.ECSAPI.Service(lo.FromPtr(svc.ServiceName))
		Expect(resumedSvc.DesiredCount).To(Equal(int32(2)))
		resumedGroup, _ := env.AutoScalingAPI.Group(lo.FromPtr(group.AutoScalingGroupName))
		Expect(lo.FromPtr(resumedGroup.DesiredCapacity)).To(Equal(int32(2)))
		Expect(resumedGroup.SuspendedProcesses).To(BeEmpty())
	})
	It("should reject a snapshot with no resources", func() {
		_, err := env.Orchestrator.Resume(ctx, &resource.Snapshot{ID: "pause-20260824-000000"})
		Expect(err).To(HaveOccurred())
		Expect(errors.IsState(err)).To(BeTrue())
	})
	It("should reject a snapshot missing an original state", func() {
		r := instanceResource("i-1", "stopped", map[string]any{}, nil)
		snapshot := &resource.Snapshot{
			ID:             "pause-20260824-000000",
			Resources:      []resource.Resource{r},
			OriginalStates: map[string]resource.OriginalState{"instance:us-east-1:i-other": {CurrentState: "running"}},
		}
		_, err := env.Orchestrator.Resume(ctx, snapshot)
		Expect(err).To(HaveOccurred())
		Expect(errors.IsState(err)).To(BeTrue())
		Expect(env.EC2API.StartInstancesBehavior.Calls()).To(Equal(0))
	})
	It("should record per-resource resume failures without failing the phase", func() {
		stopped := test.Instance()
		stopped.State = &ec2types.InstanceState{Name: ec2types.InstanceStateNameStopped}
		env.EC2API.AddInstance(stopped)
		env.EC2API.StartInstancesBehavior.Error.Set(
			&smithy.GenericAPIError{Code: "InternalError", Message: "boom"})

		resources := env.DiscoverAll(ctx)
		snapshot := &resource.Snapshot{
			ID:        "pause-20260824-000000",
			Resources: resources,
			OriginalStates: lo.SliceToMap(resources, func(r resource.Resource) (string, resource.OriginalState) {
				return r.Key(), resource.OriginalState{CurrentState: r.State, Metadata: r.Metadata}
			}),
		}
		results, err := env.Orchestrator.Resume(ctx, snapshot)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Success).To(BeFalse())
		Expect(results[0].Message).To(ContainSubstring("boom"))
	})
})

var _ = Describe("Registry", func() {
	It("should cache drivers per kind and region pair", func() {
		first, err := env.Registry.Driver(resource.KindInstance, fake.DefaultRegion)
		Expect(err).ToNot(HaveOccurred())
		second, err := env.Registry.Driver(resource.KindInstance, fake.DefaultRegion)
		Expect(err).ToNot(HaveOccurred())
		Expect(first).To(BeIdenticalTo(second))

		other, err := env.Registry.Driver(resource.KindInstance, "eu-west-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(other).ToNot(BeIdenticalTo(first))
	})
	It("should fail fast for unknown kinds", func() {
		_, err := env.Registry.Driver(resource.Kind("lambda"), fake.DefaultRegion)
		Expect(err).To(HaveOccurred())
		Expect(errors.IsConfiguration(err)).To(BeTrue())
	})
})

func instanceResource(id string, state string, md map[string]any, hint *float64) resource.Resource {
	return resource.Resource{
		Kind:     resource.KindInstance,
		ID:       id,
		Region:   fake.DefaultRegion,
		State:    state,
		Metadata: md,
		CostHint: hint,
	}
}
