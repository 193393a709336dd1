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

package operator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"github.com/awslabs/aws-pause/pkg/auth"
	sdk "github.com/awslabs/aws-pause/pkg/aws"
	"github.com/awslabs/aws-pause/pkg/config"
	"github.com/awslabs/aws-pause/pkg/errors"
	"github.com/awslabs/aws-pause/pkg/log"
	"github.com/awslabs/aws-pause/pkg/metrics"
	"github.com/awslabs/aws-pause/pkg/operator/options"
	"github.com/awslabs/aws-pause/pkg/orchestration"
	"github.com/awslabs/aws-pause/pkg/providers/containerservice"
	"github.com/awslabs/aws-pause/pkg/providers/database"
	"github.com/awslabs/aws-pause/pkg/providers/instance"
	"github.com/awslabs/aws-pause/pkg/providers/instancegroup"
	"github.com/awslabs/aws-pause/pkg/providers/pricing"
	"github.com/awslabs/aws-pause/pkg/resource"
	"github.com/awslabs/aws-pause/pkg/state"
)

// ClientProvider vends regional service clients. auth.Session is the
// production implementation; tests substitute fake-backed ones.
type ClientProvider interface {
	EC2(region string) sdk.EC2API
	RDS(region string) sdk.RDSAPI
	ECS(region string) sdk.ECSAPI
	AutoScaling(region string) sdk.AutoScalingAPI
}

// Operator bundles everything a command needs: the session, the
// snapshot store, the orchestration stack and the pricing provider.
type Operator struct {
	Options         *options.Options
	Session         *auth.Session
	Identity        auth.Identity
	Regions         []string
	Store           *state.Store
	Registry        *orchestration.Registry
	Orchestrator    *orchestration.Orchestrator
	Operations      *orchestration.Operations
	PricingProvider *pricing.Provider
}

// NewOperator builds the session, validates credentials and access, and
// wires the orchestration stack over it.
func NewOperator(ctx context.Context, opts *options.Options) (*Operator, error) {
	var sessionOpts []auth.Option
	if opts.AssumeRoleARN != "" {
		sessionOpts = append(sessionOpts, auth.WithAssumeRole(opts.AssumeRoleARN, opts.AssumeRoleDuration))
	}
	session, err := auth.NewSession(ctx, sessionOpts...)
	if err != nil {
		return nil, err
	}

	regions := opts.ParsedRegions()
	if len(regions) == 0 {
		if session.Region() == "" {
			return nil, errors.Configurationf("no region configured and none could be resolved")
		}
		regions = []string{session.Region()}
	}

	identity, err := session.CallerIdentity(ctx)
	if err != nil {
		return nil, err
	}
	log.FromContext(ctx).Infof("authenticated as %s (account %s)", identity.Arn, identity.Account)
	if err := session.CheckAccess(ctx, regions[0]); err != nil {
		return nil, err
	}

	snapshotDir := opts.SnapshotDir
	if snapshotDir == "" {
		snapshotDir, err = config.DefaultSnapshotDir()
		if err != nil {
			return nil, err
		}
	}
	store, err := state.NewStore(afero.NewOsFs(), snapshotDir)
	if err != nil {
		return nil, err
	}

	registry := orchestration.NewRegistry(NewDriverFactory(session, orchestration.WaitConfig{}))
	orchestrator := orchestration.NewOrchestrator(registry, regions,
		orchestration.WithWorkers(opts.DiscoverWorkers, opts.MutateWorkers))
	pricingProvider := pricing.NewProvider(pricing.NewAPI(session.Config(regions[0]), regions[0]), regions[0])

	return &Operator{
		Options:      opts,
		Session:      session,
		Identity:     identity,
		Regions:      regions,
		Store:        store,
		Registry:     registry,
		Orchestrator: orchestrator,
		Operations: orchestration.NewOperations(orchestrator,
			orchestration.WithAnnotator(pricingProvider.Annotate)),
		PricingProvider: pricingProvider,
	}, nil
}

// NewDriverFactory binds each kind to its regional client. A non-zero
// wait overrides every driver's convergence polling, which tests use to
// keep waits in the millisecond range.
func NewDriverFactory(clients ClientProvider, wait orchestration.WaitConfig) orchestration.Factory {
	return func(kind resource.Kind, region string) (orchestration.Driver, error) {
		switch kind {
		case resource.KindInstance:
			return instance.NewDriver(clients.EC2(region), region, wait), nil
		case resource.KindDatabase:
			return database.NewDriver(clients.RDS(region), region, wait), nil
		case resource.KindContainerService:
			return containerservice.NewDriver(clients.ECS(region), region, wait), nil
		case resource.KindInstanceGroup:
			return instancegroup.NewDriver(clients.AutoScaling(region), region, wait), nil
		default:
			return nil, errors.Configurationf("unknown kind %q", kind)
		}
	}
}

// ServeMetrics exposes the prometheus registry on the configured port
// for the lifetime of the context. A port of zero disables it.
func (o *Operator) ServeMetrics(ctx context.Context) {
	if o.Options.MetricsPort == 0 {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", o.Options.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: time.Second,
	}
	go func() {
		log.FromContext(ctx).Debugf("serving metrics on %s/metrics", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.FromContext(ctx).Warnf("metrics listener failed, %s", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
