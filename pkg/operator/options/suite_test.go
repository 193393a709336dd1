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

package options_test

import (
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/awslabs/aws-pause/pkg/config"
	"github.com/awslabs/aws-pause/pkg/errors"
	"github.com/awslabs/aws-pause/pkg/operator/options"
	"github.com/awslabs/aws-pause/pkg/resource"
)

func TestOptions(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Operator/Options")
}

var _ = Describe("Options", func() {
	var envState map[string]string
	var environmentVariables = []string{
		"REGIONS",
		"KINDS",
		"DISCOVER_WORKERS",
		"MUTATE_WORKERS",
		"SNAPSHOT_DIR",
		"SNAPSHOT_RETENTION",
		"ASSUME_ROLE_ARN",
		"ASSUME_ROLE_DURATION",
		"DRY_RUN",
		"DEBUG",
		"METRICS_PORT",
	}

	BeforeEach(func() {
		envState = map[string]string{}
		for _, ev := range environmentVariables {
			if val, ok := os.LookupEnv(ev); ok {
				envState[ev] = val
			}
			os.Unsetenv(ev)
		}
	})

	AfterEach(func() {
		for _, ev := range environmentVariables {
			os.Unsetenv(ev)
		}
		for ev, val := range envState {
			os.Setenv(ev, val)
		}
	})

	It("should default from the built-in config", func() {
		opts := options.New(config.Default())
		Expect(opts.Parse(nil)).To(Succeed())
		Expect(opts.ParsedRegions()).To(BeEmpty())
		Expect(opts.ParsedKinds()).To(ConsistOf(
			resource.KindInstance, resource.KindDatabase, resource.KindContainerService, resource.KindInstanceGroup,
		))
		Expect(opts.DiscoverWorkers).To(Equal(10))
		Expect(opts.MutateWorkers).To(Equal(5))
		Expect(opts.SnapshotRetention).To(Equal(10))
		Expect(opts.AssumeRoleDuration).To(Equal(15 * time.Minute))
		Expect(opts.DryRun).To(BeFalse())
		Expect(opts.MetricsPort).To(Equal(0))
		Expect(opts.Validate()).To(Succeed())
	})
	It("should default from the config file when present", func() {
		cfg := config.Default().Merge(config.Config{
			Regions:         []string{"eu-west-1"},
			RoleARN:         "arn:aws:iam::123456789012:role/PauseOperator",
			DiscoverWorkers: 4,
		})
		opts := options.New(cfg)
		Expect(opts.Parse(nil)).To(Succeed())
		Expect(opts.ParsedRegions()).To(Equal([]string{"eu-west-1"}))
		Expect(opts.AssumeRoleARN).To(Equal("arn:aws:iam::123456789012:role/PauseOperator"))
		Expect(opts.DiscoverWorkers).To(Equal(4))
		Expect(opts.Validate()).To(Succeed())
	})
	It("should let flags win over config file defaults", func() {
		cfg := config.Default().Merge(config.Config{Regions: []string{"eu-west-1"}, DiscoverWorkers: 4})
		opts := options.New(cfg)
		Expect(opts.Parse([]string{
			"--regions", "us-east-1, us-west-2",
			"--kinds", "instance",
			"--discover-workers", "3",
			"--dry-run",
		})).To(Succeed())
		Expect(opts.ParsedRegions()).To(Equal([]string{"us-east-1", "us-west-2"}))
		Expect(opts.ParsedKinds()).To(Equal([]resource.Kind{resource.KindInstance}))
		Expect(opts.DiscoverWorkers).To(Equal(3))
		Expect(opts.DryRun).To(BeTrue())
		Expect(opts.Validate()).To(Succeed())
	})
	It("should let environment variables win over config file defaults", func() {
		os.Setenv("MUTATE_WORKERS", "2")
		os.Setenv("REGIONS", "ap-southeast-2")
		opts := options.New(config.Default().Merge(config.Config{Regions: []string{"eu-west-1"}}))
		Expect(opts.Parse(nil)).To(Succeed())
		Expect(opts.MutateWorkers).To(Equal(2))
		Expect(opts.ParsedRegions()).To(Equal([]string{"ap-southeast-2"}))
	})

	DescribeTable(
		"should reject invalid values",
		func(args []string, substring string) {
			opts := options.New(config.Default())
			Expect(opts.Parse(args)).To(Succeed())
			err := opts.Validate()
			Expect(err).To(HaveOccurred())
			Expect(errors.IsConfiguration(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring(substring))
		},
		Entry("malformed region", []string{"--regions", "moonbase-1"}, "invalid region"),
		Entry("unknown kind", []string{"--kinds", "lambda"}, "unknown kind"),
		Entry("empty kinds", []string{"--kinds", ""}, "at least one kind"),
		Entry("zero discover workers", []string{"--discover-workers", "0"}, "discover workers"),
		Entry("zero mutate workers", []string{"--mutate-workers", "0"}, "mutate workers"),
		Entry("zero retention", []string{"--snapshot-retention", "0"}, "snapshot retention"),
		Entry("malformed role arn", []string{"--assume-role-arn", "not-an-arn"}, "invalid role arn"),
		Entry("short role duration", []string{"--assume-role-arn", "arn:aws:iam::123456789012:role/PauseOperator", "--assume-role-duration", "1m"}, "assume role duration"),
		Entry("metrics port out of range", []string{"--metrics-port", "70000"}, "metrics port"),
	)
})
