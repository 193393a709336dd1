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

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/samber/lo"

	sdk "github.com/awslabs/aws-pause/pkg/aws"
	"github.com/awslabs/aws-pause/pkg/log"
	"github.com/awslabs/aws-pause/pkg/orchestration"
	"github.com/awslabs/aws-pause/pkg/resource"
	"github.com/awslabs/aws-pause/pkg/utils/pretty"
)

const (
	// ResourceTypeInstance marks a standalone db instance in resource
	// metadata; ResourceTypeCluster marks an aurora cluster. The two
	// take different stop/start API calls.
	ResourceTypeInstance = "db_instance"
	ResourceTypeCluster  = "db_cluster"

	StatusAvailable = "available"
	StatusStopped   = "stopped"

	statusDeleting = "deleting"
)

// DefaultWaitConfig polls every 30 seconds for up to 30 minutes; RDS
// stop/start transitions routinely take double-digit minutes.
var DefaultWaitConfig = orchestration.WaitConfig{Delay: 30 * time.Second, Attempts: 60}

// Driver pauses RDS by stopping db instances and aurora clusters.
type Driver struct {
	rdsapi sdk.RDSAPI
	region string
	wait   orchestration.WaitConfig
	cm     *pretty.ChangeMonitor
}

func NewDriver(rdsapi sdk.RDSAPI, region string, wait orchestration.WaitConfig) *Driver {
	return &Driver{
		rdsapi: rdsapi,
		region: region,
		wait:   wait.OrDefault(DefaultWaitConfig),
		cm:     pretty.NewChangeMonitor(),
	}
}

func (d *Driver) Kind() resource.Kind {
	return resource.KindDatabase
}

func (d *Driver) Region() string {
	return d.region
}

// Enumerate lists db instances and clusters in two passes. Cluster
// member instances are covered by their cluster's stop call, so the
// instance pass keeps standalone instances only. Rows already being
// deleted are skipped in both passes.
func (d *Driver) Enumerate(ctx context.Context) ([]resource.Resource, error) {
	var resources []resource.Resource

	instances := rds.NewDescribeDBInstancesPaginator(d.rdsapi, &rds.DescribeDBInstancesInput{})
	for instances.HasMorePages() {
		page, err := instances.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describing db instances, %w", err)
		}
		for _, instance := range page.DBInstances {
			if lo.FromPtr(instance.DBInstanceStatus) == statusDeleting || instance.DBClusterIdentifier != nil {
				continue
			}
			id := lo.FromPtr(instance.DBInstanceIdentifier)
			if !resource.ValidKeyComponent(id) {
				log.FromContext(ctx).Warnf("skipping db instance with unusable id %q", id)
				continue
			}
			resources = append(resources, resource.Resource{
				Kind:     resource.KindDatabase,
				ID:       id,
				Region:   d.region,
				State:    lo.FromPtr(instance.DBInstanceStatus),
				Tags:     d.tags(ctx, lo.FromPtr(instance.DBInstanceArn)),
				Metadata: instanceMetadata(instance),
			})
		}
	}

	clusters := rds.NewDescribeDBClustersPaginator(d.rdsapi, &rds.DescribeDBClustersInput{})
	for clusters.HasMorePages() {
		page, err := clusters.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describing db clusters, %w", err)
		}
		for _, cluster := range page.DBClusters {
			if lo.FromPtr(cluster.Status) == statusDeleting {
				continue
			}
			id := lo.FromPtr(cluster.DBClusterIdentifier)
			if !resource.ValidKeyComponent(id) {
				log.FromContext(ctx).Warnf("skipping db cluster with unusable id %q", id)
				continue
			}
			resources = append(resources, resource.Resource{
				Kind:     resource.KindDatabase,
				ID:       id,
				Region:   d.region,
				State:    lo.FromPtr(cluster.Status),
				Tags:     d.tags(ctx, lo.FromPtr(cluster.DBClusterArn)),
				Metadata: clusterMetadata(cluster),
			})
		}
	}

	if d.cm.HasChanged(fmt.Sprintf("databases/%s", d.region), len(resources)) {
		log.FromContext(ctx).Debugf("discovered %d databases in %s", len(resources), d.region)
	}
	return resources, nil
}

// Pausable reports whether the database is available; RDS rejects
// stops in every other status.
func (d *Driver) Pausable(r resource.Resource) bool {
	return r.State == StatusAvailable
}

// Resumable reports whether the database is stopped.
func (d *Driver) Resumable(r resource.Resource) bool {
	return r.State == StatusStopped
}

// Pause stops the instance or cluster and waits for the stopped
// status to settle.
func (d *Driver) Pause(ctx context.Context, r resource.Resource) (resource.Resource, error) {
	switch resourceType(r) {
	case ResourceTypeInstance:
		if _, err := d.rdsapi.StopDBInstance(ctx, &rds.StopDBInstanceInput{DBInstanceIdentifier: lo.ToPtr(r.ID)}); err != nil {
			return resource.Resource{}, fmt.Errorf("stopping db instance %s, %w", r.ID, err)
		}
		if err := d.awaitInstanceStatus(ctx, r.ID, StatusStopped); err != nil {
			return resource.Resource{}, fmt.Errorf("waiting for db instance %s to stop, %w", r.ID, err)
		}
	case ResourceTypeCluster:
		if _, err := d.rdsapi.StopDBCluster(ctx, &rds.StopDBClusterInput{DBClusterIdentifier: lo.ToPtr(r.ID)}); err != nil {
			return resource.Resource{}, fmt.Errorf("stopping db cluster %s, %w", r.ID, err)
		}
		if err := d.awaitClusterStatus(ctx, r.ID, StatusStopped); err != nil {
			return resource.Resource{}, fmt.Errorf("waiting for db cluster %s to stop, %w", r.ID, err)
		}
	default:
		return resource.Resource{}, fmt.Errorf("unknown database resource type for %s", r.ID)
	}
	return r.WithState(StatusStopped), nil
}

// Resume starts the instance or cluster and waits for it to report
// available again.
func (d *Driver) Resume(ctx context.Context, r resource.Resource) (resource.Resource, error) {
	switch resourceType(r) {
	case ResourceTypeInstance:
		if _, err := d.rdsapi.StartDBInstance(ctx, &rds.StartDBInstanceInput{DBInstanceIdentifier: lo.ToPtr(r.ID)}); err != nil {
			return resource.Resource{}, fmt.Errorf("starting db instance %s, %w", r.ID, err)
		}
		if err := d.awaitInstanceStatus(ctx, r.ID, StatusAvailable); err != nil {
			return resource.Resource{}, fmt.Errorf("waiting for db instance %s to become available, %w", r.ID, err)
		}
	case ResourceTypeCluster:
		if _, err := d.rdsapi.StartDBCluster(ctx, &rds.StartDBClusterInput{DBClusterIdentifier: lo.ToPtr(r.ID)}); err != nil {
			return resource.Resource{}, fmt.Errorf("starting db cluster %s, %w", r.ID, err)
		}
		if err := d.awaitClusterStatus(ctx, r.ID, StatusAvailable); err != nil {
			return resource.Resource{}, fmt.Errorf("waiting for db cluster %s to become available, %w", r.ID, err)
		}
	default:
		return resource.Resource{}, fmt.Errorf("unknown database resource type for %s", r.ID)
	}
	return r.WithState(StatusAvailable), nil
}

func (d *Driver) awaitInstanceStatus(ctx context.Context, id string, target string) error {
	return d.poll(ctx, func() (string, error) {
		out, err := d.rdsapi.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{DBInstanceIdentifier: lo.ToPtr(id)})
		if err != nil {
			return "", err
		}
		if len(out.DBInstances) == 0 {
			return "", fmt.Errorf("db instance %s not found", id)
		}
		return lo.FromPtr(out.DBInstances[0].DBInstanceStatus), nil
	}, target)
}

func (d *Driver) awaitClusterStatus(ctx context.Context, id string, target string) error {
	return d.poll(ctx, func() (string, error) {
		out, err := d.rdsapi.DescribeDBClusters(ctx, &rds.DescribeDBClustersInput{DBClusterIdentifier: lo.ToPtr(id)})
		if err != nil {
			return "", err
		}
		if len(out.DBClusters) == 0 {
			return "", fmt.Errorf("db cluster %s not found", id)
		}
		return lo.FromPtr(out.DBClusters[0].Status), nil
	}, target)
}

func (d *Driver) poll(ctx context.Context, status func() (string, error), target string) error {
	return retry.Do(func() error {
		current, err := status()
		if err != nil {
			return err
		}
		if current != target {
			return fmt.Errorf("status is %s, want %s", current, target)
		}
		return nil
	},
		retry.Context(ctx),
		retry.Delay(d.wait.Delay),
		retry.Attempts(d.wait.Attempts),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

// tags is best-effort: RDS tag reads take a separate permission, and a
// database we cannot read tags for is still worth pausing.
func (d *Driver) tags(ctx context.Context, arn string) map[string]string {
	if arn == "" {
		return nil
	}
	out, err := d.rdsapi.ListTagsForResource(ctx, &rds.ListTagsForResourceInput{ResourceName: lo.ToPtr(arn)})
	if err != nil {
		log.FromContext(ctx).Debugf("listing tags for %s, %s", arn, err)
		return nil
	}
	if len(out.TagList) == 0 {
		return nil
	}
	return lo.SliceToMap(out.TagList, func(t rdstypes.Tag) (string, string) {
		return lo.FromPtr(t.Key), lo.FromPtr(t.Value)
	})
}

func resourceType(r resource.Resource) string {
	rt, _ := resource.MetadataString(r.Metadata, "resource_type")
	return rt
}

func instanceMetadata(instance rdstypes.DBInstance) map[string]any {
	md := map[string]any{
		"resource_type":  ResourceTypeInstance,
		"engine":         lo.FromPtr(instance.Engine),
		"engine_version": lo.FromPtr(instance.EngineVersion),
		"instance_class": lo.FromPtr(instance.DBInstanceClass),
		"multi_az":       lo.FromPtr(instance.MultiAZ),
		"arn":            lo.FromPtr(instance.DBInstanceArn),
	}
	if instance.AllocatedStorage != nil {
		md["allocated_storage"] = lo.FromPtr(instance.AllocatedStorage)
	}
	if instance.AvailabilityZone != nil {
		md["availability_zone"] = lo.FromPtr(instance.AvailabilityZone)
	}
	if instance.Endpoint != nil && instance.Endpoint.Address != nil {
		md["endpoint"] = lo.FromPtr(instance.Endpoint.Address)
	}
	return md
}

func clusterMetadata(cluster rdstypes.DBCluster) map[string]any {
	return map[string]any{
		"resource_type":      ResourceTypeCluster,
		"engine":             lo.FromPtr(cluster.Engine),
		"engine_version":     lo.FromPtr(cluster.EngineVersion),
		"multi_az":           lo.FromPtr(cluster.MultiAZ),
		"availability_zones": cluster.AvailabilityZones,
		"members": lo.Map(cluster.DBClusterMembers, func(m rdstypes.DBClusterMember, _ int) any {
			return lo.FromPtr(m.DBInstanceIdentifier)
		}),
		"arn": lo.FromPtr(cluster.DBClusterArn),
	}
}
