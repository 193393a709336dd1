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

package fake

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/smithy-go"
	"github.com/samber/lo"

	sdk "github.com/awslabs/aws-pause/pkg/aws"
)

// RDSBehavior must be reset between tests otherwise tests will
// pollute each other.
type RDSBehavior struct {
	DescribeDBInstancesBehavior MockedFunction[rds.DescribeDBInstancesInput, rds.DescribeDBInstancesOutput]
	DescribeDBClustersBehavior  MockedFunction[rds.DescribeDBClustersInput, rds.DescribeDBClustersOutput]
	ListTagsForResourceBehavior MockedFunction[rds.ListTagsForResourceInput, rds.ListTagsForResourceOutput]
	StopDBInstanceBehavior      MockedFunction[rds.StopDBInstanceInput, rds.StopDBInstanceOutput]
	StartDBInstanceBehavior     MockedFunction[rds.StartDBInstanceInput, rds.StartDBInstanceOutput]
	StopDBClusterBehavior       MockedFunction[rds.StopDBClusterInput, rds.StopDBClusterOutput]
	StartDBClusterBehavior      MockedFunction[rds.StartDBClusterInput, rds.StartDBClusterOutput]
	DBInstances                 sync.Map // db instance identifier -> *rdstypes.DBInstance
	DBClusters                  sync.Map // db cluster identifier -> *rdstypes.DBCluster
	Tags                        sync.Map // arn -> []rdstypes.Tag
}

type RDSAPI struct {
	sdk.RDSAPI
	RDSBehavior
}

func NewRDSAPI() *RDSAPI {
	return &RDSAPI{}
}

// Reset must be called between tests otherwise tests will pollute
// each other.
func (r *RDSAPI) Reset() {
	r.DescribeDBInstancesBehavior.Reset()
	r.DescribeDBClustersBehavior.Reset()
	r.ListTagsForResourceBehavior.Reset()
	r.StopDBInstanceBehavior.Reset()
	r.StartDBInstanceBehavior.Reset()
	r.StopDBClusterBehavior.Reset()
	r.StartDBClusterBehavior.Reset()
	for _, m := range []*sync.Map{&r.DBInstances, &r.DBClusters, &r.Tags} {
		m.Range(func(k, v any) bool {
			m.Delete(k)
			return true
		})
	}
}

func (r *RDSAPI) AddDBInstance(instance rdstypes.DBInstance, tags ...rdstypes.Tag) {
	r.DBInstances.Store(lo.FromPtr(instance.DBInstanceIdentifier), &instance)
	if instance.DBInstanceArn != nil {
		r.Tags.Store(*instance.DBInstanceArn, tags)
	}
}

func (r *RDSAPI) AddDBCluster(cluster rdstypes.DBCluster, tags ...rdstypes.Tag) {
	r.DBClusters.Store(lo.FromPtr(cluster.DBClusterIdentifier), &cluster)
	if cluster.DBClusterArn != nil {
		r.Tags.Store(*cluster.DBClusterArn, tags)
	}
}

func (r *RDSAPI) SetDBInstanceStatus(id, status string) {
	if v, ok := r.DBInstances.Load(id); ok {
		instance := v.(*rdstypes.DBInstance)
		instance.DBInstanceStatus = lo.ToPtr(status)
		r.DBInstances.Store(id, instance)
	}
}

func (r *RDSAPI) SetDBClusterStatus(id, status string) {
	if v, ok := r.DBClusters.Load(id); ok {
		cluster := v.(*rdstypes.DBCluster)
		cluster.Status = lo.ToPtr(status)
		r.DBClusters.Store(id, cluster)
	}
}

func (r *RDSAPI) DescribeDBInstances(_ context.Context, input *rds.DescribeDBInstancesInput, _ ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	return r.DescribeDBInstancesBehavior.Invoke(input, func(input *rds.DescribeDBInstancesInput) (*rds.DescribeDBInstancesOutput, error) {
		var instances []rdstypes.DBInstance
		if input.DBInstanceIdentifier != nil {
			v, ok := r.DBInstances.Load(*input.DBInstanceIdentifier)
			if !ok {
				return nil, &smithy.GenericAPIError{Code: "DBInstanceNotFound", Message: *input.DBInstanceIdentifier}
			}
			instances = append(instances, *v.(*rdstypes.DBInstance))
		} else {
			r.DBInstances.Range(func(_, v any) bool {
				instances = append(instances, *v.(*rdstypes.DBInstance))
				return true
			})
		}
		return &rds.DescribeDBInstancesOutput{DBInstances: instances}, nil
	})
}

func (r *RDSAPI) DescribeDBClusters(_ context.Context, input *rds.DescribeDBClustersInput, _ ...func(*rds.Options)) (*rds.DescribeDBClustersOutput, error) {
	return r.DescribeDBClustersBehavior.Invoke(input, func(input *rds.DescribeDBClustersInput) (*rds.DescribeDBClustersOutput, error) {
		var clusters []rdstypes.DBCluster
		if input.DBClusterIdentifier != nil {
			v, ok := r.DBClusters.Load(*input.DBClusterIdentifier)
			if !ok {
				return nil, &smithy.GenericAPIError{Code: "DBClusterNotFoundFault", Message: *input.DBClusterIdentifier}
			}
			clusters = append(clusters, *v.(*rdstypes.DBCluster))
		} else {
			r.DBClusters.Range(func(_, v any) bool {
				clusters = append(clusters, *v.(*rdstypes.DBCluster))
				return true
			})
		}
		return &rds.DescribeDBClustersOutput{DBClusters: clusters}, nil
	})
}

func (r *RDSAPI) ListTagsForResource(_ context.Context, input *rds.ListTagsForResourceInput, _ ...func(*rds.Options)) (*rds.ListTagsForResourceOutput, error) {
	return r.ListTagsForResourceBehavior.Invoke(input, func(input *rds.ListTagsForResourceInput) (*rds.ListTagsForResourceOutput, error) {
		if v, ok := r.Tags.Load(lo.FromPtr(input.ResourceName)); ok {
			return &rds.ListTagsForResourceOutput{TagList: v.([]rdstypes.Tag)}, nil
		}
		return &rds.ListTagsForResourceOutput{}, nil
	})
}

func (r *RDSAPI) StopDBInstance(_ context.Context, input *rds.StopDBInstanceInput, _ ...func(*rds.Options)) (*rds.StopDBInstanceOutput, error) {
	return r.StopDBInstanceBehavior.Invoke(input, func(input *rds.StopDBInstanceInput) (*rds.StopDBInstanceOutput, error) {
		id := lo.FromPtr(input.DBInstanceIdentifier)
		v, ok := r.DBInstances.Load(id)
		if !ok {
			return nil, &smithy.GenericAPIError{Code: "DBInstanceNotFound", Message: id}
		}
		instance := v.(*rdstypes.DBInstance)
		instance.DBInstanceStatus = lo.ToPtr("stopped")
		r.DBInstances.Store(id, instance)
		return &rds.StopDBInstanceOutput{DBInstance: instance}, nil
	})
}

func (r *RDSAPI) StartDBInstance(_ context.Context, input *rds.StartDBInstanceInput, _ ...func(*rds.Options)) (*rds.StartDBInstanceOutput, error) {
	return r.StartDBInstanceBehavior.Invoke(input, func(input *rds.StartDBInstanceInput) (*rds.StartDBInstanceOutput, error) {
		id := lo.FromPtr(input.DBInstanceIdentifier)
		v, ok := r.DBInstances.Load(id)
		if !ok {
			return nil, &smithy.GenericAPIError{Code: "DBInstanceNotFound", Message: id}
		}
		instance := v.(*rdstypes.DBInstance)
		instance.DBInstanceStatus = lo.ToPtr("available")
		r.DBInstances.Store(id, instance)
		return &rds.StartDBInstanceOutput{DBInstance: instance}, nil
	})
}

func (r *RDSAPI) StopDBCluster(_ context.Context, input *rds.StopDBClusterInput, _ ...func(*rds.Options)) (*rds.StopDBClusterOutput, error) {
	return r.StopDBClusterBehavior.Invoke(input, func(input *rds.StopDBClusterInput) (*rds.StopDBClusterOutput, error) {
		id := lo.FromPtr(input.DBClusterIdentifier)
		v, ok := r.DBClusters.Load(id)
		if !ok {
			return nil, &smithy.GenericAPIError{Code: "DBClusterNotFoundFault", Message: id}
		}
		cluster := v.(*rdstypes.DBCluster)
		cluster.Status = lo.ToPtr("stopped")
		r.DBClusters.Store(id, cluster)
		return &rds.StopDBClusterOutput{DBCluster: cluster}, nil
	})
}

func (r *RDSAPI) StartDBCluster(_ context.Context, input *rds.StartDBClusterInput, _ ...func(*rds.Options)) (*rds.StartDBClusterOutput, error) {
	return r.StartDBClusterBehavior.Invoke(input, func(input *rds.StartDBClusterInput) (*rds.StartDBClusterOutput, error) {
		id := lo.FromPtr(input.DBClusterIdentifier)
		v, ok := r.DBClusters.Load(id)
		if !ok {
			return nil, &smithy.GenericAPIError{Code: "DBClusterNotFoundFault", Message: id}
		}
		cluster := v.(*rdstypes.DBCluster)
		cluster.Status = lo.ToPtr("available")
		r.DBClusters.Store(id, cluster)
		return &rds.StartDBClusterOutput{DBCluster: cluster}, nil
	})
}
