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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/awslabs/aws-pause/pkg/orchestration"
	"github.com/awslabs/aws-pause/pkg/resource"
)

func taggedResource(kind resource.Kind, id string, region string, tags map[string]string) resource.Resource {
	return resource.Resource{Kind: kind, ID: id, Region: region, State: "running", Tags: tags}
}

var _ = Describe("Filter", func() {
	var resources []resource.Resource

	BeforeEach(func() {
		resources = []resource.Resource{
			taggedResource(resource.KindInstance, "i-1", "us-east-1", map[string]string{"env": "prod", "owner": "x"}),
			taggedResource(resource.KindInstance, "i-2", "us-east-1", map[string]string{"env": "dev"}),
			taggedResource(resource.KindDatabase, "db-1", "eu-west-1", map[string]string{"env": "prod"}),
			taggedResource(resource.KindInstanceGroup, "asg-1", "eu-west-1", nil),
		}
	})

	It("should match everything when empty", func() {
		Expect(orchestration.Filter{}.Apply(resources)).To(Equal(resources))
	})
	It("should keep only the listed kinds", func() {
		out := orchestration.Filter{Kinds: []resource.Kind{resource.KindInstance}}.Apply(resources)
		Expect(out).To(HaveLen(2))
	})
	It("should keep only the listed regions", func() {
		out := orchestration.Filter{Regions: []string{"eu-west-1"}}.Apply(resources)
		Expect(out).To(HaveLen(2))
	})
	It("should require every tag to match", func() {
		out := orchestration.Filter{Tags: map[string]string{"env": "prod", "owner": "x"}}.Apply(resources)
		Expect(out).To(HaveLen(1))
		Expect(out[0].ID).To(Equal("i-1"))
	})
	It("should drop resources carrying an excluded tag", func() {
		out := orchestration.Filter{ExcludeTags: map[string]string{"env": "prod"}}.Apply(resources)
		Expect(out).To(HaveLen(2))
		for _, r := range out {
			Expect(r.Tags["env"]).ToNot(Equal("prod"))
		}
	})
	It("should not drop resources whose tag value differs from the exclusion", func() {
		out := orchestration.Filter{ExcludeTags: map[string]string{"env": "staging"}}.Apply(resources)
		Expect(out).To(HaveLen(4))
	})
	It("should keep and drop by id", func() {
		Expect(orchestration.Filter{IDs: []string{"db-1"}}.Apply(resources)).To(HaveLen(1))
		Expect(orchestration.Filter{ExcludeIDs: []string{"db-1"}}.Apply(resources)).To(HaveLen(3))
	})
	It("should combine criteria with AND semantics", func() {
		out := orchestration.Filter{
			Kinds:   []resource.Kind{resource.KindInstance},
			Regions: []string{"us-east-1"},
			Tags:    map[string]string{"env": "dev"},
		}.Apply(resources)
		Expect(out).To(HaveLen(1))
		Expect(out[0].ID).To(Equal("i-2"))
	})
	It("should only ever shrink the input", func() {
		filters := []orchestration.Filter{
			{},
			{Kinds: []resource.Kind{resource.KindInstance}},
			{Kinds: []resource.Kind{resource.KindInstance}, Regions: []string{"us-east-1"}},
			{Kinds: []resource.Kind{resource.KindInstance}, Regions: []string{"us-east-1"}, ExcludeIDs: []string{"i-1"}},
		}
		previous := resources
		for _, f := range filters {
			out := f.Apply(resources)
			Expect(len(out)).To(BeNumerically("<=", len(previous)))
			for _, r := range out {
				Expect(resources).To(ContainElement(r))
			}
			previous = out
		}
	})
})

var _ = Describe("Summarize", func() {
	It("should return the zero summary for no results", func() {
		summary := orchestration.Summarize(nil)
		Expect(summary.Total).To(Equal(0))
		Expect(summary.SuccessRate).To(BeZero())
		Expect(summary.Failures).To(BeEmpty())
	})
	It("should add up totals, rates and the per-kind breakdown", func() {
		results := []resource.OperationResult{
			{Success: true, Op: resource.OpPause, Resource: taggedResource(resource.KindInstance, "i-1", "us-east-1", nil), DurationSeconds: 1.5},
			{Success: true, Op: resource.OpPause, Resource: taggedResource(resource.KindInstance, "i-2", "us-east-1", nil), DurationSeconds: 0.5},
			{Success: false, Op: resource.OpPause, Resource: taggedResource(resource.KindDatabase, "db-1", "eu-west-1", nil), Message: "boom"},
			{Success: true, Op: resource.OpPause, Resource: taggedResource(resource.KindDatabase, "db-2", "eu-west-1", nil)},
		}
		summary := orchestration.Summarize(results)
		Expect(summary.Total).To(Equal(4))
		Expect(summary.Succeeded).To(Equal(3))
		Expect(summary.Failed).To(Equal(1))
		Expect(summary.SuccessRate).To(BeNumerically("==", 0.75))
		Expect(summary.DurationSeconds).To(BeNumerically("==", 2.0))

		Expect(summary.ByKind[resource.KindInstance]).To(Equal(orchestration.KindBreakdown{Total: 2, Succeeded: 2}))
		Expect(summary.ByKind[resource.KindDatabase]).To(Equal(orchestration.KindBreakdown{Total: 2, Succeeded: 1, Failed: 1}))

		total := 0
		for _, breakdown := range summary.ByKind {
			total += breakdown.Total
		}
		Expect(total).To(Equal(summary.Total))

		Expect(summary.Failures).To(HaveLen(1))
		Expect(summary.Failures[0]).To(Equal(orchestration.Failure{
			Kind: resource.KindDatabase, ID: "db-1", Region: "eu-west-1", Message: "boom",
		}))
	})
})
