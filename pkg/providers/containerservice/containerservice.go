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

package containerservice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/samber/lo"

	sdk "github.com/awslabs/aws-pause/pkg/aws"
	"github.com/awslabs/aws-pause/pkg/log"
	"github.com/awslabs/aws-pause/pkg/orchestration"
	"github.com/awslabs/aws-pause/pkg/resource"
	"github.com/awslabs/aws-pause/pkg/utils/pretty"
)

const (
	// States derived from desired vs running task counts; ECS itself
	// has no paused notion, so scaling to zero stands in for it.
	StateRunning     = "running"
	StateStopped     = "stopped"
	StateScalingUp   = "scaling_up"
	StateScalingDown = "scaling_down"

	statusActive = "ACTIVE"

	// DescribeServices accepts at most ten services per call.
	describeServicesBatch = 10
)

// DefaultWaitConfig mirrors the services-stable waiter cadence: 15
// second polls capped at ten minutes.
var DefaultWaitConfig = orchestration.WaitConfig{Delay: 15 * time.Second, Attempts: 40}

// Driver pauses ECS services by scaling their desired count to zero
// and resumes them by restoring the count recorded at snapshot time.
type Driver struct {
	ecsapi sdk.ECSAPI
	region string
	wait   orchestration.WaitConfig
	cm     *pretty.ChangeMonitor
}

func NewDriver(ecsapi sdk.ECSAPI, region string, wait orchestration.WaitConfig) *Driver {
	return &Driver{
		ecsapi: ecsapi,
		region: region,
		wait:   wait.OrDefault(DefaultWaitConfig),
		cm:     pretty.NewChangeMonitor(),
	}
}

func (d *Driver) Kind() resource.Kind {
	return resource.KindContainerService
}

func (d *Driver) Region() string {
	return d.region
}

// DeriveState classifies a service from its task counts: zero desired
// is stopped, a converged service is running, and everything else is
// scaling towards or away from the desired count.
func DeriveState(desired int32, running int32) string {
	switch {
	case desired == 0:
		return StateStopped
	case running == desired:
		return StateRunning
	case running < desired:
		return StateScalingUp
	default:
		return StateScalingDown
	}
}

// Enumerate walks every active cluster and lists its active services.
func (d *Driver) Enumerate(ctx context.Context) ([]resource.Resource, error) {
	var resources []resource.Resource
	clusters := ecs.NewListClustersPaginator(d.ecsapi, &ecs.ListClustersInput{})
	for clusters.HasMorePages() {
		page, err := clusters.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing clusters, %w", err)
		}
		if len(page.ClusterArns) == 0 {
			continue
		}
		described, err := d.ecsapi.DescribeClusters(ctx, &ecs.DescribeClustersInput{Clusters: page.ClusterArns})
		if err != nil {
			return nil, fmt.Errorf("describing clusters, %w", err)
		}
		for _, cluster := range described.Clusters {
			if lo.FromPtr(cluster.Status) != statusActive {
				continue
			}
			services, err := d.enumerateCluster(ctx, cluster)
			if err != nil {
				return nil, err
			}
			resources = append(resources, services...)
		}
	}
	if d.cm.HasChanged(fmt.Sprintf("container-services/%s", d.region), len(resources)) {
		log.FromContext(ctx).Debugf("discovered %d container services in %s", len(resources), d.region)
	}
	return resources, nil
}

func (d *Driver) enumerateCluster(ctx context.Context, cluster ecstypes.Cluster) ([]resource.Resource, error) {
	clusterArn := lo.FromPtr(cluster.ClusterArn)
	var serviceArns []string
	services := ecs.NewListServicesPaginator(d.ecsapi, &ecs.ListServicesInput{Cluster: lo.ToPtr(clusterArn)})
	for services.HasMorePages() {
		page, err := services.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing services in %s, %w", lo.FromPtr(cluster.ClusterName), err)
		}
		serviceArns = append(serviceArns, page.ServiceArns...)
	}

	var resources []resource.Resource
	for _, batch := range lo.Chunk(serviceArns, describeServicesBatch) {
		described, err := d.ecsapi.DescribeServices(ctx, &ecs.DescribeServicesInput{
			Cluster:  lo.ToPtr(clusterArn),
			Services: batch,
		})
		if err != nil {
			return nil, fmt.Errorf("describing services in %s, %w", lo.FromPtr(cluster.ClusterName), err)
		}
		for _, service := range described.Services {
			if lo.FromPtr(service.Status) != statusActive {
				continue
			}
			id := lo.FromPtr(service.ServiceName)
			if !resource.ValidKeyComponent(id) {
				log.FromContext(ctx).Warnf("skipping service with unusable name %q", id)
				continue
			}
			resources = append(resources, resource.Resource{
				Kind:     resource.KindContainerService,
				ID:       id,
				Region:   d.region,
				State:    DeriveState(service.DesiredCount, service.RunningCount),
				Tags:     d.tags(ctx, lo.FromPtr(service.ServiceArn)),
				Metadata: metadata(cluster, service),
			})
		}
	}
	return resources, nil
}

// Pausable covers every service with tasks either running or in
// flight; scaling an already stopped service to zero is meaningless.
func (d *Driver) Pausable(r resource.Resource) bool {
	return r.State == StateRunning || r.State == StateScalingUp || r.State == StateScalingDown
}

// Resumable is everything except a service already running its
// snapshot-time desired count.
func (d *Driver) Resumable(r resource.Resource) bool {
	desired, _ := resource.MetadataInt32(r.Metadata, "desired_count")
	return !(r.State == StateRunning && desired > 0)
}

// Pause scales the service to zero and waits for it to stabilize.
func (d *Driver) Pause(ctx context.Context, r resource.Resource) (resource.Resource, error) {
	if err := d.scale(ctx, r, 0); err != nil {
		return resource.Resource{}, err
	}
	return r.WithState(StateStopped), nil
}

// Resume restores the snapshot-time desired count. Services that were
// already stopped when the snapshot was taken scale back to zero,
// which stabilizes immediately.
func (d *Driver) Resume(ctx context.Context, r resource.Resource) (resource.Resource, error) {
	desired, ok := resource.MetadataInt32(r.Metadata, "desired_count")
	if !ok {
		return resource.Resource{}, fmt.Errorf("service %s is missing its desired_count", r.ID)
	}
	if err := d.scale(ctx, r, desired); err != nil {
		return resource.Resource{}, err
	}
	return r.WithState(DeriveState(desired, desired)), nil
}

func (d *Driver) scale(ctx context.Context, r resource.Resource, desired int32) error {
	clusterArn, ok := resource.MetadataString(r.Metadata, "cluster_arn")
	if !ok {
		return fmt.Errorf("service %s is missing its cluster_arn", r.ID)
	}
	if _, err := d.ecsapi.UpdateService(ctx, &ecs.UpdateServiceInput{
		Cluster:      lo.ToPtr(clusterArn),
		Service:      lo.ToPtr(r.ID),
		DesiredCount: lo.ToPtr(desired),
	}); err != nil {
		return fmt.Errorf("scaling service %s to %d, %w", r.ID, desired, err)
	}
	waiter := ecs.NewServicesStableWaiter(d.ecsapi, func(o *ecs.ServicesStableWaiterOptions) {
		o.MinDelay = d.wait.Delay
		o.MaxDelay = d.wait.Delay
	})
	if err := waiter.Wait(ctx, &ecs.DescribeServicesInput{
		Cluster:  lo.ToPtr(clusterArn),
		Services: []string{r.ID},
	}, d.wait.MaxDuration()); err != nil {
		return fmt.Errorf("waiting for service %s to stabilize, %w", r.ID, err)
	}
	return nil
}

// tags is best-effort; a tag read failure never blocks discovery.
func (d *Driver) tags(ctx context.Context, arn string) map[string]string {
	if arn == "" {
		return nil
	}
	out, err := d.ecsapi.ListTagsForResource(ctx, &ecs.ListTagsForResourceInput{ResourceArn: lo.ToPtr(arn)})
	if err != nil {
		log.FromContext(ctx).Debugf("listing tags for %s, %s", arn, err)
		return nil
	}
	if len(out.Tags) == 0 {
		return nil
	}
	return lo.SliceToMap(out.Tags, func(t ecstypes.Tag) (string, string) {
		return lo.FromPtr(t.Key), lo.FromPtr(t.Value)
	})
}

func metadata(cluster ecstypes.Cluster, service ecstypes.Service) map[string]any {
	md := map[string]any{
		"cluster_arn":     lo.FromPtr(cluster.ClusterArn),
		"cluster_name":    lo.FromPtr(cluster.ClusterName),
		"task_definition": lo.FromPtr(service.TaskDefinition),
		"desired_count":   service.DesiredCount,
		"running_count":   service.RunningCount,
		"pending_count":   service.PendingCount,
		"launch_type":     string(service.LaunchType),
	}
	if service.NetworkConfiguration != nil {
		md["network_configuration"] = tree(service.NetworkConfiguration)
	}
	if len(service.LoadBalancers) > 0 {
		md["load_balancers"] = tree(service.LoadBalancers)
	}
	if len(service.ServiceRegistries) > 0 {
		md["service_registries"] = tree(service.ServiceRegistries)
	}
	return md
}

// tree converts an SDK struct into the plain JSON shape metadata
// carries, so snapshots round-trip without SDK types.
func tree(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
