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

package config_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"

	"github.com/awslabs/aws-pause/pkg/config"
	"github.com/awslabs/aws-pause/pkg/errors"
)

var ctx context.Context
var fs afero.Fs
var manager *config.Manager

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config")
}

var _ = BeforeEach(func() {
	ctx = context.Background()
	fs = afero.NewMemMapFs()
	var err error
	manager, err = config.NewManager(fs, "/home/operator/.aws-pause")
	Expect(err).ToNot(HaveOccurred())
})

var _ = Describe("Defaults", func() {
	It("should cover every kind with conservative worker counts", func() {
		cfg := config.Default()
		Expect(cfg.Kinds).To(ConsistOf("instance", "database", "container-service", "instance-group"))
		Expect(cfg.DiscoverWorkers).To(Equal(10))
		Expect(cfg.MutateWorkers).To(Equal(5))
		Expect(cfg.SnapshotRetention).To(Equal(10))
		Expect(cfg.Regions).To(BeEmpty())
		Expect(cfg.RoleARN).To(BeEmpty())
	})
})

var _ = Describe("Merge", func() {
	It("should overlay set fields and keep the rest", func() {
		merged := config.Default().Merge(config.Config{
			Regions: []string{"eu-west-1"},
			RoleARN: "arn:aws:iam::123456789012:role/PauseOperator",
		})
		Expect(merged.Regions).To(Equal([]string{"eu-west-1"}))
		Expect(merged.RoleARN).To(Equal("arn:aws:iam::123456789012:role/PauseOperator"))
		Expect(merged.DiscoverWorkers).To(Equal(10))
		Expect(merged.MutateWorkers).To(Equal(5))
		Expect(merged.SnapshotRetention).To(Equal(10))
	})
	It("should replace list fields wholesale", func() {
		merged := config.Default().Merge(config.Config{Kinds: []string{"instance"}})
		Expect(merged.Kinds).To(Equal([]string{"instance"}))
	})
	It("should be a no-op for an empty overlay", func() {
		Expect(config.Default().Merge(config.Config{})).To(Equal(config.Default()))
	})
})

var _ = Describe("Validate", func() {
	It("should accept the defaults", func() {
		Expect(config.Default().Validate()).To(Succeed())
	})
	It("should reject malformed role ARNs", func() {
		err := config.Config{RoleARN: "arn:aws:iam::123:role/short"}.Validate()
		Expect(err).To(HaveOccurred())
		Expect(errors.IsConfiguration(err)).To(BeTrue())
	})
	It("should reject malformed regions", func() {
		err := config.Config{Regions: []string{"us-east-1", "pluto"}}.Validate()
		Expect(err).To(HaveOccurred())
		Expect(errors.IsConfiguration(err)).To(BeTrue())
	})
	It("should reject unknown kinds", func() {
		err := config.Config{Kinds: []string{"instance", "lambda"}}.Validate()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring(`unknown kind "lambda"`))
	})
	It("should reject negative worker counts and retention", func() {
		err := config.Config{DiscoverWorkers: -1, MutateWorkers: -2, SnapshotRetention: -3}.Validate()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("discover workers"))
		Expect(err.Error()).To(ContainSubstring("mutate workers"))
		Expect(err.Error()).To(ContainSubstring("snapshot retention"))
	})
})

var _ = Describe("Manager", func() {
	It("should treat a missing file as empty", func() {
		Expect(manager.Exists()).To(BeFalse())
		cfg, err := manager.Load(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg).To(Equal(config.Config{}))
	})
	It("should round trip a config through disk", func() {
		saved := config.Config{
			Regions:           []string{"us-east-1", "eu-west-1"},
			Kinds:             []string{"instance", "database"},
			RoleARN:           "arn:aws:iam::123456789012:role/PauseOperator",
			DiscoverWorkers:   4,
			MutateWorkers:     2,
			SnapshotDir:       "/var/lib/aws-pause/snapshots",
			SnapshotRetention: 5,
		}
		Expect(manager.Save(ctx, saved)).To(Succeed())
		Expect(manager.Exists()).To(BeTrue())
		Expect(manager.Path()).To(Equal("/home/operator/.aws-pause/config.toml"))

		loaded, err := manager.Load(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(loaded).To(Equal(saved))
	})
	It("should not leave temp files behind", func() {
		Expect(manager.Save(ctx, config.Config{SnapshotRetention: 3})).To(Succeed())
		entries, err := afero.ReadDir(fs, "/home/operator/.aws-pause")
		Expect(err).ToNot(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Name()).To(Equal("config.toml"))
	})
	It("should parse hand written files", func() {
		Expect(afero.WriteFile(fs, manager.Path(), []byte(
			"regions = [\"us-east-1\"]\nrole_arn = \"arn:aws:iam::123456789012:role/PauseOperator\"\ndiscover_workers = 4\n",
		), 0o644)).To(Succeed())
		cfg, err := manager.Load(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Regions).To(Equal([]string{"us-east-1"}))
		Expect(cfg.RoleARN).To(Equal("arn:aws:iam::123456789012:role/PauseOperator"))
		Expect(cfg.DiscoverWorkers).To(Equal(4))
	})
	It("should surface corrupt files as configuration errors", func() {
		Expect(afero.WriteFile(fs, manager.Path(), []byte("regions = [unclosed"), 0o644)).To(Succeed())
		_, err := manager.Load(ctx)
		Expect(err).To(HaveOccurred())
		Expect(errors.IsConfiguration(err)).To(BeTrue())
	})
	It("should surface invalid values as configuration errors", func() {
		Expect(afero.WriteFile(fs, manager.Path(), []byte("role_arn = \"not-an-arn\"\n"), 0o644)).To(Succeed())
		_, err := manager.Load(ctx)
		Expect(err).To(HaveOccurred())
		Expect(errors.IsConfiguration(err)).To(BeTrue())
	})
	It("should refuse to save an invalid config", func() {
		Expect(manager.Save(ctx, config.Config{Kinds: []string{"lambda"}})).ToNot(Succeed())
		Expect(manager.Exists()).To(BeFalse())
	})
})
