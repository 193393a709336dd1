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

	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/aws/smithy-go"
	"github.com/samber/lo"

	sdk "github.com/awslabs/aws-pause/pkg/aws"
)

// ECSBehavior must be reset between tests otherwise tests will
// pollute each other.
type ECSBehavior struct {
	ListClustersBehavior        MockedFunction[ecs.ListClustersInput, ecs.ListClustersOutput]
	DescribeClustersBehavior    MockedFunction[ecs.DescribeClustersInput, ecs.DescribeClustersOutput]
	ListServicesBehavior        MockedFunction[ecs.ListServicesInput, ecs.ListServicesOutput]
	DescribeServicesBehavior    MockedFunction[ecs.DescribeServicesInput, ecs.DescribeServicesOutput]
	UpdateServiceBehavior       MockedFunction[ecs.UpdateServiceInput, ecs.UpdateServiceOutput]
	ListTagsForResourceBehavior MockedFunction[ecs.ListTagsForResourceInput, ecs.ListTagsForResourceOutput]
	Clusters                    sync.Map // cluster arn -> *ecstypes.Cluster
	Services                    sync.Map // service arn -> *ecstypes.Service
	Tags                        sync.Map // arn -> []ecstypes.Tag
}

type ECSAPI struct {
	sdk.ECSAPI
	ECSBehavior
}

func NewECSAPI() *ECSAPI {
	return &ECSAPI{}
}

// Reset must be called between tests otherwise tests will pollute
// each other.
func (e *ECSAPI) Reset() {
	e.ListClustersBehavior.Reset()
	e.DescribeClustersBehavior.Reset()
	e.ListServicesBehavior.Reset()
	e.DescribeServicesBehavior.Reset()
	e.UpdateServiceBehavior.Reset()
	e.ListTagsForResourceBehavior.Reset()
	for _, m := range []*sync.Map{&e.Clusters, &e.Services, &e.Tags} {
		m.Range(func(k, v any) bool {
			m.Delete(k)
			return true
		})
	}
}

func (e *ECSAPI) AddCluster(cluster ecstypes.Cluster) {
	e.Clusters.Store(lo.FromPtr(cluster.ClusterArn), &cluster)
}

// AddService seeds a service into the fake account. Services without a
// deployment get a single primary one so that the SDK services-stable
// waiter can converge against the fake.
func (e *ECSAPI) AddService(service ecstypes.Service, tags ...ecstypes.Tag) {
	if len(service.Deployments) == 0 {
		service.Deployments = []ecstypes.Deployment{{
			Status:       lo.ToPtr("PRIMARY"),
			DesiredCount: service.DesiredCount,
			RunningCount: service.RunningCount,
		}}
	}
	e.Services.Store(lo.FromPtr(service.ServiceArn), &service)
	if service.ServiceArn != nil && len(tags) > 0 {
		e.Tags.Store(*service.ServiceArn, tags)
	}
}

// Service returns the stored service by name, for assertions on the
// counts the driver wrote back.
func (e *ECSAPI) Service(name string) (ecstypes.Service, bool) {
	var found *ecstypes.Service
	e.Services.Range(func(_, v any) bool {
		svc := v.(*ecstypes.Service)
		if lo.FromPtr(svc.ServiceName) == name {
			found = svc
			return false
		}
		return true
	})
	if found == nil {
		return ecstypes.Service{}, false
	}
	return *found, true
}

func (e *ECSAPI) ListClusters(_ context.Context, input *ecs.ListClustersInput, _ ...func(*ecs.Options)) (*ecs.ListClustersOutput, error) {
	return e.ListClustersBehavior.Invoke(input, func(input *ecs.ListClustersInput) (*ecs.ListClustersOutput, error) {
		var arns []string
		e.Clusters.Range(func(k, _ any) bool {
			arns = append(arns, k.(string))
			return true
		})
		return &ecs.ListClustersOutput{ClusterArns: arns}, nil
	})
}

func (e *ECSAPI) DescribeClusters(_ context.Context, input *ecs.DescribeClustersInput, _ ...func(*ecs.Options)) (*ecs.DescribeClustersOutput, error) {
	return e.DescribeClustersBehavior.Invoke(input, func(input *ecs.DescribeClustersInput) (*ecs.DescribeClustersOutput, error) {
		var clusters []ecstypes.Cluster
		var failures []ecstypes.Failure
		for _, arn := range input.Clusters {
			if v, ok := e.Clusters.Load(arn); ok {
				clusters = append(clusters, *v.(*ecstypes.Cluster))
			} else {
				failures = append(failures, ecstypes.Failure{Arn: lo.ToPtr(arn), Reason: lo.ToPtr("MISSING")})
			}
		}
		return &ecs.DescribeClustersOutput{Clusters: clusters, Failures: failures}, nil
	})
}

func (e *ECSAPI) ListServices(_ context.Context, input *ecs.ListServicesInput, _ ...func(*ecs.Options)) (*ecs.ListServicesOutput, error) {
	return e.ListServicesBehavior.Invoke(input, func(input *ecs.ListServicesInput) (*ecs.ListServicesOutput, error) {
		var arns []string
		e.Services.Range(func(k, v any) bool {
			if lo.FromPtr(v.(*ecstypes.Service).ClusterArn) == lo.FromPtr(input.Cluster) {
				arns = append(arns, k.(string))
			}
			return true
		})
		return &ecs.ListServicesOutput{ServiceArns: arns}, nil
	})
}

func (e *ECSAPI) DescribeServices(_ context.Context, input *ecs.DescribeServicesInput, _ ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error) {
	return e.DescribeServicesBehavior.Invoke(input, func(input *ecs.DescribeServicesInput) (*ecs.DescribeServicesOutput, error) {
		var services []ecstypes.Service
		var failures []ecstypes.Failure
		for _, ref := range input.Services {
			svc, ok := e.lookupService(ref, lo.FromPtr(input.Cluster))
			if !ok {
				failures = append(failures, ecstypes.Failure{Arn: lo.ToPtr(ref), Reason: lo.ToPtr("MISSING")})
				continue
			}
			services = append(services, svc)
		}
		return &ecs.DescribeServicesOutput{Services: services, Failures: failures}, nil
	})
}

func (e *ECSAPI) UpdateService(_ context.Context, input *ecs.UpdateServiceInput, _ ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error) {
	return e.UpdateServiceBehavior.Invoke(input, func(input *ecs.UpdateServiceInput) (*ecs.UpdateServiceOutput, error) {
		svc, ok := e.lookupService(lo.FromPtr(input.Service), lo.FromPtr(input.Cluster))
		if !ok {
			return nil, &smithy.GenericAPIError{Code: "ServiceNotFoundException", Message: lo.FromPtr(input.Service)}
		}
		if input.DesiredCount != nil {
			// The fake converges immediately so stable waits return on
			// their first poll.
			svc.DesiredCount = *input.DesiredCount
			svc.RunningCount = *input.DesiredCount
			svc.PendingCount = 0
			svc.Deployments = []ecstypes.Deployment{{
				Status:       lo.ToPtr("PRIMARY"),
				DesiredCount: svc.DesiredCount,
				RunningCount: svc.RunningCount,
			}}
		}
		e.Services.Store(lo.FromPtr(svc.ServiceArn), &svc)
		return &ecs.UpdateServiceOutput{Service: &svc}, nil
	})
}

func (e *ECSAPI) ListTagsForResource(_ context.Context, input *ecs.ListTagsForResourceInput, _ ...func(*ecs.Options)) (*ecs.ListTagsForResourceOutput, error) {
	return e.ListTagsForResourceBehavior.Invoke(input, func(input *ecs.ListTagsForResourceInput) (*ecs.ListTagsForResourceOutput, error) {
		if v, ok := e.Tags.Load(lo.FromPtr(input.ResourceArn)); ok {
			return &ecs.ListTagsForResourceOutput{Tags: v.([]ecstypes.Tag)}, nil
		}
		return &ecs.ListTagsForResourceOutput{}, nil
	})
}

// lookupService resolves a service by arn or by (cluster, name).
func (e *ECSAPI) lookupService(ref, clusterArn string) (ecstypes.Service, bool) {
	if v, ok := e.Services.Load(ref); ok {
		return *v.(*ecstypes.Service), true
	}
	var found *ecstypes.Service
	e.Services.Range(func(_, v any) bool {
		svc := v.(*ecstypes.Service)
		if lo.FromPtr(svc.ServiceName) == ref && lo.FromPtr(svc.ClusterArn) == clusterArn {
			found = svc
			return false
		}
		return true
	})
	if found == nil {
		return ecstypes.Service{}, false
	}
	return *found, true
}
