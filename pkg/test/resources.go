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

package test

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Pallinder/go-randomdata"
	astypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/imdario/mergo"
	"github.com/samber/lo"

	"github.com/awslabs/aws-pause/pkg/fake"
	"github.com/awslabs/aws-pause/pkg/utils/rand"
)

var (
	sequentialNumber     = 0
	sequentialNumberLock = new(sync.Mutex)
)

// RandomName returns a unique lowercase name safe for use as a
// resource identifier and inside composite keys.
func RandomName() string {
	sequentialNumberLock.Lock()
	defer sequentialNumberLock.Unlock()
	sequentialNumber++
	return strings.ToLower(fmt.Sprintf("%s-%d-%s", randomdata.SillyName(), sequentialNumber, randomdata.Alphanumeric(10)))
}

func MustMerge[T any](dest T, srcs ...T) T {
	for _, src := range srcs {
		if err := mergo.Merge(&dest, src, mergo.WithOverride); err != nil {
			panic(fmt.Sprintf("merging test fixture, %s", err))
		}
	}
	return dest
}

// Instance returns a running instance with enough populated fields to
// exercise every metadata key the instance driver records.
func Instance(overrides ...ec2types.Instance) ec2types.Instance {
	return MustMerge(ec2types.Instance{
		InstanceId:       lo.ToPtr(fake.InstanceID()),
		InstanceType:     ec2types.InstanceTypeM5Large,
		State:            &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
		Placement:        &ec2types.Placement{AvailabilityZone: lo.ToPtr(fake.DefaultRegion + "a")},
		LaunchTime:       lo.ToPtr(time.Now().UTC()),
		VpcId:            lo.ToPtr("vpc-" + rand.HexString(17)),
		SubnetId:         lo.ToPtr("subnet-" + rand.HexString(17)),
		PrivateIpAddress: lo.ToPtr(randomdata.IpV4Address()),
	}, overrides...)
}

// DBInstance returns an available standalone database instance. The
// arn is derived from the identifier after overrides apply so the two
// always agree.
func DBInstance(overrides ...rdstypes.DBInstance) rdstypes.DBInstance {
	db := MustMerge(rdstypes.DBInstance{
		DBInstanceIdentifier: lo.ToPtr(RandomName()),
		DBInstanceStatus:     lo.ToPtr("available"),
		Engine:               lo.ToPtr("postgres"),
		EngineVersion:        lo.ToPtr("16.3"),
		DBInstanceClass:      lo.ToPtr("db.m5.large"),
		MultiAZ:              lo.ToPtr(false),
		AllocatedStorage:     lo.ToPtr[int32](100),
		AvailabilityZone:     lo.ToPtr(fake.DefaultRegion + "a"),
	}, overrides...)
	if db.DBInstanceArn == nil {
		db.DBInstanceArn = lo.ToPtr(fake.DBInstanceARN(fake.DefaultRegion, lo.FromPtr(db.DBInstanceIdentifier)))
	}
	return db
}

// DBCluster returns an available aurora cluster.
func DBCluster(overrides ...rdstypes.DBCluster) rdstypes.DBCluster {
	cluster := MustMerge(rdstypes.DBCluster{
		DBClusterIdentifier: lo.ToPtr(RandomName()),
		Status:              lo.ToPtr("available"),
		Engine:              lo.ToPtr("aurora-postgresql"),
		EngineVersion:       lo.ToPtr("16.1"),
		MultiAZ:             lo.ToPtr(true),
		AvailabilityZones:   []string{fake.DefaultRegion + "a", fake.DefaultRegion + "b"},
	}, overrides...)
	if cluster.DBClusterArn == nil {
		cluster.DBClusterArn = lo.ToPtr(fake.DBClusterARN(fake.DefaultRegion, lo.FromPtr(cluster.DBClusterIdentifier)))
	}
	if len(cluster.DBClusterMembers) == 0 {
		cluster.DBClusterMembers = []rdstypes.DBClusterMember{
			{DBInstanceIdentifier: lo.ToPtr(lo.FromPtr(cluster.DBClusterIdentifier) + "-writer"), IsClusterWriter: lo.ToPtr(true)},
			{DBInstanceIdentifier: lo.ToPtr(lo.FromPtr(cluster.DBClusterIdentifier) + "-reader"), IsClusterWriter: lo.ToPtr(false)},
		}
	}
	return cluster
}

// Cluster returns an active container cluster.
func Cluster(overrides ...ecstypes.Cluster) ecstypes.Cluster {
	cluster := MustMerge(ecstypes.Cluster{
		ClusterName: lo.ToPtr(RandomName()),
		Status:      lo.ToPtr("ACTIVE"),
	}, overrides...)
	if cluster.ClusterArn == nil {
		cluster.ClusterArn = lo.ToPtr(fake.ClusterARN(fake.DefaultRegion, lo.FromPtr(cluster.ClusterName)))
	}
	return cluster
}

// Service returns an active service converged at one task inside the
// given cluster. Zero counts cannot be expressed through the merge;
// set them directly on the returned value.
func Service(cluster ecstypes.Cluster, overrides ...ecstypes.Service) ecstypes.Service {
	svc := MustMerge(ecstypes.Service{
		ServiceName:  lo.ToPtr(RandomName()),
		ClusterArn:   cluster.ClusterArn,
		Status:       lo.ToPtr("ACTIVE"),
		DesiredCount: 1,
		RunningCount: 1,
		LaunchType:   ecstypes.LaunchTypeFargate,
	}, overrides...)
	if svc.ServiceArn == nil {
		svc.ServiceArn = lo.ToPtr(fake.ServiceARN(fake.DefaultRegion, lo.FromPtr(cluster.ClusterName), lo.FromPtr(svc.ServiceName)))
	}
	if svc.TaskDefinition == nil {
		svc.TaskDefinition = lo.ToPtr(fmt.Sprintf("arn:aws:ecs:%s:%s:task-definition/%s:1", fake.DefaultRegion, fake.DefaultAccount, lo.FromPtr(svc.ServiceName)))
	}
	return svc
}

// AutoScalingGroup returns a group with one in-service instance per
// unit of desired capacity.
func AutoScalingGroup(overrides ...astypes.AutoScalingGroup) astypes.AutoScalingGroup {
	group := MustMerge(astypes.AutoScalingGroup{
		AutoScalingGroupName: lo.ToPtr(RandomName()),
		DesiredCapacity:      lo.ToPtr[int32](1),
		MinSize:              lo.ToPtr[int32](0),
		MaxSize:              lo.ToPtr[int32](4),
		AvailabilityZones:    []string{fake.DefaultRegion + "a"},
		HealthCheckType:      lo.ToPtr("EC2"),
		CreatedTime:          lo.ToPtr(time.Now().UTC()),
	}, overrides...)
	if group.AutoScalingGroupARN == nil {
		group.AutoScalingGroupARN = lo.ToPtr(fake.GroupARN(fake.DefaultRegion, lo.FromPtr(group.AutoScalingGroupName)))
	}
	for int32(len(group.Instances)) < lo.FromPtr(group.DesiredCapacity) {
		group.Instances = append(group.Instances, astypes.Instance{
			InstanceId:     lo.ToPtr(fake.InstanceID()),
			LifecycleState: astypes.LifecycleStateInService,
			HealthStatus:   lo.ToPtr("Healthy"),
		})
	}
	return group
}
