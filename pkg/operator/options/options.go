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

package options

import (
	"flag"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/awslabs/aws-pause/pkg/auth"
	"github.com/awslabs/aws-pause/pkg/config"
	"github.com/awslabs/aws-pause/pkg/errors"
	"github.com/awslabs/aws-pause/pkg/resource"
	"github.com/awslabs/aws-pause/pkg/utils/env"
)

// Options for running this binary. Defaults come from the config file
// merged over built-ins; environment variables and flags win over both.
type Options struct {
	*flag.FlagSet

	Regions            string
	Kinds              string
	DiscoverWorkers    int
	MutateWorkers      int
	SnapshotDir        string
	SnapshotRetention  int
	AssumeRoleARN      string
	AssumeRoleDuration time.Duration
	DryRun             bool
	Debug              bool
	MetricsPort        int
}

// New creates an Options struct and registers CLI flags and environment
// variables to fill in its fields. cfg supplies the file-backed defaults.
func New(cfg config.Config) *Options {
	opts := &Options{}
	f := flag.NewFlagSet("aws-pause", flag.ContinueOnError)
	opts.FlagSet = f

	f.StringVar(&opts.Regions, "regions", env.WithDefaultString("REGIONS", strings.Join(cfg.Regions, ",")), "Comma-separated regions to operate in. Defaults to the session region.")
	f.StringVar(&opts.Kinds, "kinds", env.WithDefaultString("KINDS", strings.Join(cfg.Kinds, ",")), "Comma-separated resource kinds to operate on.")
	f.IntVar(&opts.DiscoverWorkers, "discover-workers", env.WithDefaultInt("DISCOVER_WORKERS", cfg.DiscoverWorkers), "Concurrent discovery workers across kind and region pairs.")
	f.IntVar(&opts.MutateWorkers, "mutate-workers", env.WithDefaultInt("MUTATE_WORKERS", cfg.MutateWorkers), "Concurrent pause and resume workers.")
	f.StringVar(&opts.SnapshotDir, "snapshot-dir", env.WithDefaultString("SNAPSHOT_DIR", cfg.SnapshotDir), "Directory holding snapshots. Defaults to ~/.aws-pause/snapshots.")
	f.IntVar(&opts.SnapshotRetention, "snapshot-retention", env.WithDefaultInt("SNAPSHOT_RETENTION", cfg.SnapshotRetention), "Number of snapshots kept after a pause.")
	f.StringVar(&opts.AssumeRoleARN, "assume-role-arn", env.WithDefaultString("ASSUME_ROLE_ARN", cfg.RoleARN), "IAM role to assume for every AWS call.")
	f.DurationVar(&opts.AssumeRoleDuration, "assume-role-duration", env.WithDefaultDuration("ASSUME_ROLE_DURATION", auth.MinAssumeRoleDuration), "Lifetime of assumed role credentials.")
	f.BoolVar(&opts.DryRun, "dry-run", env.WithDefaultBool("DRY_RUN", false), "Report what would change without mutating anything.")
	f.BoolVar(&opts.Debug, "debug", env.WithDefaultBool("DEBUG", false), "Enable debug logging.")
	f.IntVar(&opts.MetricsPort, "metrics-port", env.WithDefaultInt("METRICS_PORT", 0), "Port serving prometheus metrics during long operations. 0 disables the listener.")
	return opts
}

func (o Options) Validate() (err error) {
	for _, region := range o.ParsedRegions() {
		err = multierr.Append(err, auth.ValidateRegion(region))
	}
	kinds := o.ParsedKinds()
	if len(kinds) == 0 {
		err = multierr.Append(err, errors.Configurationf("at least one kind is required"))
	}
	for _, kind := range kinds {
		if !lo.Contains(resource.Kinds(), kind) {
			err = multierr.Append(err, errors.Configurationf("unknown kind %q", kind))
		}
	}
	if o.DiscoverWorkers < 1 {
		err = multierr.Append(err, errors.Configurationf("discover workers must be positive, got %d", o.DiscoverWorkers))
	}
	if o.MutateWorkers < 1 {
		err = multierr.Append(err, errors.Configurationf("mutate workers must be positive, got %d", o.MutateWorkers))
	}
	if o.SnapshotRetention < 1 {
		err = multierr.Append(err, errors.Configurationf("snapshot retention must be at least 1, got %d", o.SnapshotRetention))
	}
	if o.AssumeRoleARN != "" {
		err = multierr.Append(err, auth.ValidateRoleARN(o.AssumeRoleARN))
		if o.AssumeRoleDuration < auth.MinAssumeRoleDuration {
			err = multierr.Append(err, errors.Configurationf("assume role duration must be at least %s, got %s", auth.MinAssumeRoleDuration, o.AssumeRoleDuration))
		}
	}
	if o.MetricsPort < 0 || o.MetricsPort > 65535 {
		err = multierr.Append(err, errors.Configurationf("metrics port %d is out of range", o.MetricsPort))
	}
	return err
}

// ParsedRegions returns the region list. Empty means the session region.
func (o Options) ParsedRegions() []string {
	return splitList(o.Regions)
}

// ParsedKinds returns the kind list.
func (o Options) ParsedKinds() []resource.Kind {
	return lo.Map(splitList(o.Kinds), func(k string, _ int) resource.Kind { return resource.Kind(k) })
}

func splitList(csv string) []string {
	return lo.FilterMap(strings.Split(csv, ","), func(s string, _ int) (string, bool) {
		trimmed := strings.TrimSpace(s)
		return trimmed, trimmed != ""
	})
}
