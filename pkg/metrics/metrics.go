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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Common namespace for application metrics.
	Namespace = "awspause"

	orchestrationSubsystem = "orchestration"
	discoverySubsystem     = "discovery"
	snapshotSubsystem      = "snapshot"

	// Common set of metric label names.
	KindLabel    = "kind"
	RegionLabel  = "region"
	OpLabel      = "op"
	OutcomeLabel = "outcome"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Registry collects all tool metrics; the CLI serves it when a metrics
// listener is configured.
var Registry = prometheus.NewRegistry()

var (
	DiscoveredResources = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: discoverySubsystem,
			Name:      "resources",
			Help:      "Resources found by the most recent enumeration, by kind and region.",
		},
		[]string{KindLabel, RegionLabel},
	)
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: orchestrationSubsystem,
			Name:      "operations_total",
			Help:      "Pause/resume operations attempted, by outcome.",
		},
		[]string{OpLabel, KindLabel, OutcomeLabel},
	)
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: orchestrationSubsystem,
			Name:      "operation_duration_seconds",
			Help:      "Duration of per-resource pause/resume operations, including convergence waits.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{OpLabel, KindLabel},
	)
	SnapshotSavingsEstimate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: snapshotSubsystem,
			Name:      "estimated_monthly_savings_dollars",
			Help:      "Estimated monthly savings recorded in the most recent snapshot.",
		},
	)
)

func init() {
	Registry.MustRegister(DiscoveredResources, OperationsTotal, OperationDuration, SnapshotSavingsEstimate)
}
