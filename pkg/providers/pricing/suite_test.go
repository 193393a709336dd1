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

package pricing_test

import (
	"context"
	"testing"

	awspricing "github.com/aws/aws-sdk-go-v2/service/pricing"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/awslabs/aws-pause/pkg/fake"
	"github.com/awslabs/aws-pause/pkg/providers/pricing"
	"github.com/awslabs/aws-pause/pkg/resource"
)

var ctx context.Context
var pricingAPI *fake.PricingAPI
var provider *pricing.Provider

func TestPricing(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Providers/Pricing")
}

var _ = BeforeEach(func() {
	ctx = context.Background()
	pricingAPI = fake.NewPricingAPI()
	provider = pricing.NewProvider(pricingAPI, fake.DefaultRegion)
})

var _ = Describe("PricingAPIRegion", func() {
	DescribeTable(
		"should pin clients to the endpoint covering the region",
		func(region string, expected string) {
			Expect(pricing.APIRegion(region)).To(Equal(expected))
		},
		Entry("us-east-1 maps to us-east-1", "us-east-1", "us-east-1"),
		Entry("us-west-2 maps to us-east-1", "us-west-2", "us-east-1"),
		Entry("ca-central-1 maps to us-east-1", "ca-central-1", "us-east-1"),
		Entry("sa-east-1 maps to us-east-1", "sa-east-1", "us-east-1"),
		Entry("eu-west-1 maps to eu-central-1", "eu-west-1", "eu-central-1"),
		Entry("eu-north-1 maps to eu-central-1", "eu-north-1", "eu-central-1"),
		Entry("ap-southeast-2 maps to ap-south-1", "ap-southeast-2", "ap-south-1"),
		Entry("ap-northeast-1 maps to ap-south-1", "ap-northeast-1", "ap-south-1"),
		Entry("cn-north-1 maps to cn-northwest-1", "cn-north-1", "cn-northwest-1"),
	)
})

var _ = Describe("Provider", func() {
	It("should serve the static seed prices at construction", func() {
		price, ok := provider.OnDemandPrice("t2.micro")
		Expect(ok).To(BeTrue())
		Expect(price).To(BeNumerically("==", 0.0116))

		price, ok = provider.DatabasePrice("db.t3.micro")
		Expect(ok).To(BeTrue())
		Expect(price).To(BeNumerically("==", 0.017))

		Expect(provider.InstanceTypes()).To(ContainElements("t2.micro", "c5.large", "db.t3.micro", "db.r5.xlarge"))
	})
	It("should report unknown types and classes as unpriced", func() {
		_, ok := provider.OnDemandPrice("c98.large")
		Expect(ok).To(BeFalse())
		_, ok = provider.DatabasePrice("db.c98.large")
		Expect(ok).To(BeFalse())
	})
	It("should retain static prices when the pricing API fails", func() {
		// the fake errors unless the test provides product data
		Expect(provider.UpdatePrices(ctx)).ToNot(Succeed())
		price, ok := provider.OnDemandPrice("c5.large")
		Expect(ok).To(BeTrue())
		Expect(price).To(BeNumerically(">", 0))
	})
	It("should fail the update when the pricing API returns no products", func() {
		pricingAPI.GetProductsBehavior.Output.Set(&awspricing.GetProductsOutput{})
		err := provider.UpdatePrices(ctx)
		Expect(err).To(MatchError(ContainSubstring("no on-demand pricing found")))
	})
	It("should update on-demand prices with the pricing API response", func() {
		pricingAPI.GetProductsBehavior.Output.Set(&awspricing.GetProductsOutput{
			PriceList: []string{
				fake.NewOnDemandPrice("c98.large", 1.20),
				fake.NewOnDemandPrice("c99.large", 1.23),
			},
		})
		Expect(provider.UpdatePrices(ctx)).To(Succeed())

		price, ok := provider.OnDemandPrice("c98.large")
		Expect(ok).To(BeTrue())
		Expect(price).To(BeNumerically("==", 1.20))
		Expect(getPriceEstimateMetricValue("c98.large")).To(BeNumerically("==", 1.20))

		price, ok = provider.OnDemandPrice("c99.large")
		Expect(ok).To(BeTrue())
		Expect(price).To(BeNumerically("==", 1.23))
		Expect(getPriceEstimateMetricValue("c99.large")).To(BeNumerically("==", 1.23))
	})
	It("should walk every page of the pricing API response", func() {
		pricingAPI.GetProductsBehavior.OutputPages.Add(&awspricing.GetProductsOutput{
			PriceList: []string{fake.NewOnDemandPrice("c98.large", 1.20)},
		})
		pricingAPI.GetProductsBehavior.OutputPages.Add(&awspricing.GetProductsOutput{
			PriceList: []string{fake.NewOnDemandPrice("c99.large", 1.23)},
		})
		Expect(provider.UpdatePrices(ctx)).To(Succeed())

		_, ok := provider.OnDemandPrice("c98.large")
		Expect(ok).To(BeTrue())
		_, ok = provider.OnDemandPrice("c99.large")
		Expect(ok).To(BeTrue())
	})
	It("should rate limit refreshes to the update period", func() {
		pricingAPI.GetProductsBehavior.Output.Set(&awspricing.GetProductsOutput{
			PriceList: []string{fake.NewOnDemandPrice("c98.large", 1.20)},
		})
		Expect(provider.UpdatePrices(ctx)).To(Succeed())
		calls := pricingAPI.GetProductsBehavior.SuccessfulCalls()

		Expect(provider.UpdatePrices(ctx)).To(Succeed())
		Expect(pricingAPI.GetProductsBehavior.SuccessfulCalls()).To(Equal(calls))
	})
	It("should restore the static seed on reset", func() {
		pricingAPI.GetProductsBehavior.Output.Set(&awspricing.GetProductsOutput{
			PriceList: []string{fake.NewOnDemandPrice("c98.large", 1.20)},
		})
		Expect(provider.UpdatePrices(ctx)).To(Succeed())
		_, ok := provider.OnDemandPrice("t2.micro")
		Expect(ok).To(BeFalse())

		provider.Reset()
		price, ok := provider.OnDemandPrice("t2.micro")
		Expect(ok).To(BeTrue())
		Expect(price).To(BeNumerically("==", 0.0116))
	})
	It("should parse CNY prices for cn partition regions", func() {
		provider = pricing.NewProvider(pricingAPI, "cn-north-1")
		pricingAPI.GetProductsBehavior.Output.Set(&awspricing.GetProductsOutput{
			PriceList: []string{
				fake.NewOnDemandPriceWithCurrency("c98.large", 1.20, "CNY"),
				fake.NewOnDemandPrice("c99.large", 1.23),
			},
		})
		Expect(provider.UpdatePrices(ctx)).To(Succeed())

		price, ok := provider.OnDemandPrice("c98.large")
		Expect(ok).To(BeTrue())
		Expect(price).To(BeNumerically("==", 1.20))
		_, ok = provider.OnDemandPrice("c99.large")
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Annotate", func() {
	It("should attach hints to instances by instance type", func() {
		annotated := provider.Annotate([]resource.Resource{{
			Kind:     resource.KindInstance,
			ID:       "i-1",
			Region:   fake.DefaultRegion,
			State:    "running",
			Metadata: map[string]any{"instance_type": "t3.medium"},
		}})
		Expect(annotated).To(HaveLen(1))
		Expect(annotated[0].CostHint).ToNot(BeNil())
		Expect(*annotated[0].CostHint).To(BeNumerically("==", 0.0416))
	})
	It("should fall back to the default instance price for unknown types", func() {
		annotated := provider.Annotate([]resource.Resource{{
			Kind:     resource.KindInstance,
			ID:       "i-1",
			Region:   fake.DefaultRegion,
			State:    "running",
			Metadata: map[string]any{"instance_type": "c98.large"},
		}})
		Expect(*annotated[0].CostHint).To(BeNumerically("==", 0.05))
	})
	It("should attach hints to databases by instance class", func() {
		annotated := provider.Annotate([]resource.Resource{{
			Kind:     resource.KindDatabase,
			ID:       "orders-db",
			Region:   fake.DefaultRegion,
			State:    "available",
			Metadata: map[string]any{"resource_type": "db_instance", "instance_class": "db.m5.large"},
		}})
		Expect(*annotated[0].CostHint).To(BeNumerically("==", 0.171))
	})
	It("should price database clusters at the flat base rate", func() {
		annotated := provider.Annotate([]resource.Resource{{
			Kind:     resource.KindDatabase,
			ID:       "orders-cluster",
			Region:   fake.DefaultRegion,
			State:    "available",
			Metadata: map[string]any{"resource_type": "db_cluster"},
		}})
		Expect(*annotated[0].CostHint).To(BeNumerically("==", 0.10))
	})
	It("should leave container services and instance groups unhinted", func() {
		annotated := provider.Annotate([]resource.Resource{
			{Kind: resource.KindContainerService, ID: "api", Region: fake.DefaultRegion, State: "running"},
			{Kind: resource.KindInstanceGroup, ID: "web-asg", Region: fake.DefaultRegion, State: "running"},
		})
		Expect(annotated[0].CostHint).To(BeNil())
		Expect(annotated[1].CostHint).To(BeNil())
	})
	It("should not mutate the resources it annotates", func() {
		resources := []resource.Resource{{
			Kind:     resource.KindInstance,
			ID:       "i-1",
			Region:   fake.DefaultRegion,
			State:    "running",
			Metadata: map[string]any{"instance_type": "t3.medium"},
		}}
		provider.Annotate(resources)
		Expect(resources[0].CostHint).To(BeNil())
	})
})

func getPriceEstimateMetricValue(instanceType string) float64 {
	return testutil.ToFloat64(pricing.PriceEstimate.WithLabelValues(instanceType, fake.DefaultRegion))
}
