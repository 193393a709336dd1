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
	"fmt"

	"github.com/awslabs/aws-pause/pkg/utils/rand"
)

const (
	DefaultRegion  = "us-east-1"
	DefaultAccount = "123456789012"
)

// InstanceID returns a plausible EC2 instance id.
func InstanceID() string {
	return fmt.Sprintf("i-%s", rand.HexString(17))
}

// DBInstanceARN returns the ARN for a db instance identifier in the
// default fake account.
func DBInstanceARN(region string, id string) string {
	return fmt.Sprintf("arn:aws:rds:%s:%s:db:%s", region, DefaultAccount, id)
}

// DBClusterARN returns the ARN for a db cluster identifier in the
// default fake account.
func DBClusterARN(region string, id string) string {
	return fmt.Sprintf("arn:aws:rds:%s:%s:cluster:%s", region, DefaultAccount, id)
}

// ClusterARN returns the ARN for an ECS cluster name in the default
// fake account.
func ClusterARN(region string, name string) string {
	return fmt.Sprintf("arn:aws:ecs:%s:%s:cluster/%s", region, DefaultAccount, name)
}

// ServiceARN returns the ARN for an ECS service in the default fake
// account, using the long ARN format that includes the cluster name.
func ServiceARN(region string, clusterName string, name string) string {
	return fmt.Sprintf("arn:aws:ecs:%s:%s:service/%s/%s", region, DefaultAccount, clusterName, name)
}

// GroupARN returns the ARN for an auto scaling group name in the
// default fake account.
func GroupARN(region string, name string) string {
	return fmt.Sprintf("arn:aws:autoscaling:%s:%s:autoScalingGroup:%s:autoScalingGroupName/%s", region, DefaultAccount, rand.HexString(8), name)
}

// RoleARN returns the ARN for an IAM role name in the default fake
// account.
func RoleARN(name string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", DefaultAccount, name)
}
