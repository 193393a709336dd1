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

package auth

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/samber/lo"

	sdk "github.com/awslabs/aws-pause/pkg/aws"
	"github.com/awslabs/aws-pause/pkg/errors"
	"github.com/awslabs/aws-pause/pkg/log"
)

const (
	// Role session names are visible in CloudTrail; the random suffix keeps
	// concurrent invocations distinguishable.
	sessionNamePrefix = "aws-pause"

	// MinAssumeRoleDuration is the STS floor for assumed credentials.
	MinAssumeRoleDuration = 15 * time.Minute
)

var (
	roleARNPattern = regexp.MustCompile(`^arn:aws:iam::\d{12}:role/[a-zA-Z0-9+=,.@_-]+$`)
	regionPattern  = regexp.MustCompile(`^[a-z]{2,3}-[a-z]+-\d+$`)
)

// ValidateRoleARN rejects role ARNs that STS would refuse to assume.
func ValidateRoleARN(roleARN string) error {
	if !roleARNPattern.MatchString(roleARN) {
		return errors.Configurationf("invalid role arn %q", roleARN)
	}
	return nil
}

// ValidateRegion rejects strings that are not shaped like an AWS region.
func ValidateRegion(region string) error {
	if !regionPattern.MatchString(region) {
		return errors.Configurationf("invalid region %q", region)
	}
	return nil
}

// SessionName produces a CloudTrail-searchable role session name.
func SessionName() string {
	return fmt.Sprintf("%s-%s", sessionNamePrefix, uuid.NewString()[:8])
}

// Identity describes the credentials the session operates as.
type Identity struct {
	Account string
	Arn     string
	UserID  string
}

// Session owns the base AWS configuration and vends service clients by
// region. Clients and regional configs are cached; all clients share the
// session's credential provider, including assumed-role credentials.
type Session struct {
	base aws.Config

	mu          sync.Mutex
	configs     map[string]aws.Config
	ec2         map[string]sdk.EC2API
	rds         map[string]sdk.RDSAPI
	ecs         map[string]sdk.ECSAPI
	autoscaling map[string]sdk.AutoScalingAPI
	sts         sdk.STSAPI
}

type options struct {
	roleARN      string
	roleDuration time.Duration
	region       string
	configOpts   []func(*config.LoadOptions) error
}

type Option func(*options)

// WithAssumeRole routes every call through the given role. A duration below
// the STS floor is raised to it; zero keeps the provider default.
func WithAssumeRole(roleARN string, duration time.Duration) Option {
	return func(o *options) {
		o.roleARN = roleARN
		o.roleDuration = duration
	}
}

// WithRegion overrides default region resolution.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithConfigOptions appends raw LoadDefaultConfig options. Tests use this to
// point the session at static credentials and local endpoints.
func WithConfigOptions(opts ...func(*config.LoadOptions) error) Option {
	return func(o *options) {
		o.configOpts = append(o.configOpts, opts...)
	}
}

func NewSession(ctx context.Context, opts ...Option) (*Session, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	loadOpts := o.configOpts
	if o.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(o.region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Configuration(fmt.Errorf("loading aws configuration, %w", err))
	}
	if cfg.Region == "" {
		log.FromContext(ctx).Debugf("no region configured, falling back to instance metadata")
		out, err := imds.NewFromConfig(cfg).GetRegion(ctx, &imds.GetRegionInput{})
		if err != nil {
			return nil, errors.Configuration(fmt.Errorf("resolving region from instance metadata, %w", err))
		}
		cfg.Region = out.Region
	}
	if o.roleARN != "" {
		if err := ValidateRoleARN(o.roleARN); err != nil {
			return nil, err
		}
		cfg.Credentials = aws.NewCredentialsCache(stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), o.roleARN, func(aro *stscreds.AssumeRoleOptions) {
			aro.RoleSessionName = SessionName()
			if o.roleDuration > 0 {
				aro.Duration = max(o.roleDuration, MinAssumeRoleDuration)
			}
		}))
		log.FromContext(ctx).Debugf("assuming role %s", o.roleARN)
	}
	return &Session{
		base:        cfg,
		configs:     map[string]aws.Config{},
		ec2:         map[string]sdk.EC2API{},
		rds:         map[string]sdk.RDSAPI{},
		ecs:         map[string]sdk.ECSAPI{},
		autoscaling: map[string]sdk.AutoScalingAPI{},
	}, nil
}

// Region returns the session's default region.
func (s *Session) Region() string {
	return s.base.Region
}

// Config returns a copy of the session configuration pinned to a region. An
// empty region keeps the session default.
func (s *Session) Config(region string) aws.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configLocked(region)
}

func (s *Session) configLocked(region string) aws.Config {
	if cfg, ok := s.configs[region]; ok {
		return cfg
	}
	cfg := s.base.Copy()
	if region != "" {
		cfg.Region = region
	}
	s.configs[region] = cfg
	return cfg
}

func (s *Session) EC2(region string) sdk.EC2API {
	s.mu.Lock()
	defer s.mu.Unlock()
	if api, ok := s.ec2[region]; ok {
		return api
	}
	api := ec2.NewFromConfig(s.configLocked(region))
	s.ec2[region] = api
	return api
}

func (s *Session) RDS(region string) sdk.RDSAPI {
	s.mu.Lock()
	defer s.mu.Unlock()
	if api, ok := s.rds[region]; ok {
		return api
	}
	api := rds.NewFromConfig(s.configLocked(region))
	s.rds[region] = api
	return api
}

func (s *Session) ECS(region string) sdk.ECSAPI {
	s.mu.Lock()
	defer s.mu.Unlock()
	if api, ok := s.ecs[region]; ok {
		return api
	}
	api := ecs.NewFromConfig(s.configLocked(region))
	s.ecs[region] = api
	return api
}

func (s *Session) AutoScaling(region string) sdk.AutoScalingAPI {
	s.mu.Lock()
	defer s.mu.Unlock()
	if api, ok := s.autoscaling[region]; ok {
		return api
	}
	api := autoscaling.NewFromConfig(s.configLocked(region))
	s.autoscaling[region] = api
	return api
}

func (s *Session) STS() sdk.STSAPI {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sts == nil {
		s.sts = sts.NewFromConfig(s.configLocked(""))
	}
	return s.sts
}

// CallerIdentity validates the session credentials and returns who they
// belong to.
func (s *Session) CallerIdentity(ctx context.Context) (Identity, error) {
	out, err := s.STS().GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, errors.Authentication(fmt.Errorf("validating aws credentials, %w", err))
	}
	identity := Identity{
		Account: lo.FromPtr(out.Account),
		Arn:     lo.FromPtr(out.Arn),
		UserID:  lo.FromPtr(out.UserId),
	}
	log.FromContext(ctx).Debugf("authenticated as %s", identity.Arn)
	return identity, nil
}

// CheckAccess verifies EC2 connectivity in a region with a dry-run call. A
// DryRunOperation error is the success signal.
func (s *Session) CheckAccess(ctx context.Context, region string) error {
	_, err := s.EC2(region).DescribeInstances(ctx, &ec2.DescribeInstancesInput{DryRun: aws.Bool(true)})
	if err == nil {
		return nil
	}
	if apiErr, ok := lo.ErrorsAs[smithy.APIError](err); ok && apiErr.ErrorCode() == "DryRunOperation" {
		return nil
	}
	return errors.FromAPIError(fmt.Errorf("checking access in %s, %w", region, err))
}
