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
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"

	"github.com/awslabs/aws-pause/pkg/orchestration"
	"github.com/awslabs/aws-pause/pkg/resource"
	"github.com/awslabs/aws-pause/pkg/test"
)

var _ = Describe("Operations", func() {
	Describe("PauseAll", func() {
		It("should return no results and no snapshot for an empty account", func() {
			results, snapshot, err := env.Operations.PauseAll(ctx, orchestration.PauseRequest{})
			Expect(err).ToNot(HaveOccurred())
			Expect(results).To(BeEmpty())
			Expect(snapshot).To(BeNil())
		})
		It("should skip non-pausable resources before the fan-out", func() {
			running := test.Instance()
			stopped := test.Instance()
			stopped.State = &ec2types.InstanceState{Name: ec2types.InstanceStateNameStopped}
			env.EC2API.AddInstance(running)
			env.EC2API.AddInstance(stopped)

			results, snapshot, err := env.Operations.PauseAll(ctx, orchestration.PauseRequest{})
			Expect(err).ToNot(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Resource.ID).To(Equal(lo.FromPtr(running.InstanceId)))
			Expect(snapshot.Resources).To(HaveLen(1))
		})
		It("should apply the filter before pausing", func() {
			prod := test.Instance(ec2types.Instance{Tags: []ec2types.Tag{
				{Key: lo.ToPtr("env"), Value: lo.ToPtr("prod")},
			}})
			dev := test.Instance(ec2types.Instance{Tags: []ec2types.Tag{
				{Key: lo.ToPtr("env"), Value: lo.ToPtr("dev")},
			}})
			env.EC2API.AddInstance(prod)
			env.EC2API.AddInstance(dev)

			results, _, err := env.Operations.PauseAll(ctx, orchestration.PauseRequest{
				Filter: orchestration.Filter{ExcludeTags: map[string]string{"env": "prod"}},
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Resource.ID).To(Equal(lo.FromPtr(dev.InstanceId)))
		})
		It("should annotate resources with cost hints before pausing", func() {
			env.EC2API.AddInstance(test.Instance(ec2types.Instance{InstanceType: ec2types.InstanceTypeT2Micro}))

			_, snapshot, err := env.Operations.PauseAll(ctx, orchestration.PauseRequest{})
			Expect(err).ToNot(HaveOccurred())
			Expect(snapshot.Resources[0].CostHint).ToNot(BeNil())
			Expect(*snapshot.Resources[0].CostHint).To(BeNumerically("==", 0.0116))
			Expect(snapshot.TotalEstimatedSavings).To(BeNumerically("~", 0.0116*720, 1e-9))
		})
		It("should simulate without drivers or snapshot on dry run", func() {
			env.EC2API.AddInstance(test.Instance())

			results, snapshot, err := env.Operations.PauseAll(ctx, orchestration.PauseRequest{DryRun: true})
			Expect(err).ToNot(HaveOccurred())
			Expect(snapshot).To(BeNil())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Success).To(BeTrue())
			Expect(results[0].Message).To(HavePrefix("[DRY RUN] Would pause"))
			Expect(env.EC2API.StopInstancesBehavior.Calls()).To(Equal(0))
		})
	})

	Describe("ResumeSnapshot", func() {
		It("should validate before touching anything", func() {
			_, err := env.Operations.ResumeSnapshot(ctx, &resource.Snapshot{ID: "pause-20260824-000000"}, false)
			Expect(err).To(HaveOccurred())
			Expect(env.EC2API.StartInstancesBehavior.Calls()).To(Equal(0))
		})
		It("should simulate resume on dry run", func() {
			env.EC2API.AddInstance(test.Instance())
			resources := env.DiscoverAll(ctx)
			_, snapshot, err := env.Orchestrator.Pause(ctx, resources)
			Expect(err).ToNot(HaveOccurred())

			results, err := env.Operations.ResumeSnapshot(ctx, snapshot, true)
			Expect(err).ToNot(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Message).To(HavePrefix("[DRY RUN] Would resume"))
			Expect(env.EC2API.StartInstancesBehavior.Calls()).To(Equal(0))
		})
	})

	Describe("Discover", func() {
		It("should filter and annotate the discovered set", func() {
			env.EC2API.AddInstance(test.Instance(ec2types.Instance{InstanceType: ec2types.InstanceTypeT2Micro}))
			env.RDSAPI.AddDBInstance(test.DBInstance())

			resources, err := env.Operations.Discover(ctx, []resource.Kind{resource.KindInstance}, orchestration.Filter{})
			Expect(err).ToNot(HaveOccurred())
			Expect(resources).To(HaveLen(1))
			Expect(resources[0].Kind).To(Equal(resource.KindInstance))
			Expect(resources[0].CostHint).ToNot(BeNil())
		})
	})
})
