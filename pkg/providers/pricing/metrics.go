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

package pricing

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/awslabs/aws-pause/pkg/metrics"
)

const (
	pricingSubsystem = "pricing"
)

var (
	InstanceTypeLabel = "instance_type"
	PriceEstimate     = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: pricingSubsystem,
			Name:      "price_estimate_dollars_per_hour",
			Help:      "Estimated hourly price used when computing pause savings. Seeded from a static table and refreshed from the Pricing API at most once per update period.",
		},
		[]string{
			InstanceTypeLabel,
			metrics.RegionLabel,
		})
)

func init() {
	metrics.Registry.MustRegister(PriceEstimate)
}
