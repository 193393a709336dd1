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

package operator_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	sdk "github.com/awslabs/aws-pause/pkg/aws"
	"github.com/awslabs/aws-pause/pkg/errors"
	"github.com/awslabs/aws-pause/pkg/fake"
	"github.com/awslabs/aws-pause/pkg/operator"
	"github.com/awslabs/aws-pause/pkg/orchestration"
	"github.com/awslabs/aws-pause/pkg/resource"
)

func TestOperator(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Operator")
}

type fakeClients struct {
	ec2         *fake.EC2API
	rds         *fake.RDSAPI
	ecs         *fake.ECSAPI
	autoscaling *fake.AutoScalingAPI
}

func (c fakeClients) EC2(_ string) sdk.EC2API                 { return c.ec2 }
func (c fakeClients) RDS(_ string) sdk.RDSAPI                 { return c.rds }
func (c fakeClients) ECS(_ string) sdk.ECSAPI                 { return c.ecs }
func (c fakeClients) AutoScaling(_ string) sdk.AutoScalingAPI { return c.autoscaling }

var _ = Describe("DriverFactory", func() {
	var factory orchestration.Factory

	BeforeEach(func() {
		factory = operator.NewDriverFactory(fakeClients{
			ec2:         fake.NewEC2API(),
			rds:         fake.NewRDSAPI(),
			ecs:         fake.NewECSAPI(),
			autoscaling: fake.NewAutoScalingAPI(),
		}, orchestration.WaitConfig{})
	})

	It("should build a driver bound to each kind and region", func() {
		for _, kind := range resource.Kinds() {
			driver, err := factory(kind, "eu-west-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(driver.Kind()).To(Equal(kind))
			Expect(driver.Region()).To(Equal("eu-west-1"))
		}
	})
	It("should reject unknown kinds", func() {
		_, err := factory(resource.Kind("lambda"), "eu-west-1")
		Expect(err).To(HaveOccurred())
		Expect(errors.IsConfiguration(err)).To(BeTrue())
	})
})
