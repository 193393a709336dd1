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

package orchestration

import (
	"github.com/samber/lo"

	"github.com/awslabs/aws-pause/pkg/resource"
)

// KindBreakdown counts outcomes for one resource kind.
type KindBreakdown struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Failure identifies one failed resource and why it failed.
type Failure struct {
	Kind    resource.Kind `json:"kind"`
	ID      string        `json:"id"`
	Region  string        `json:"region"`
	Message string        `json:"message"`
}

// Summary aggregates a result set for reporting. SuccessRate is a
// ratio in [0, 1]; DurationSeconds sums per-resource driver time, so
// with a concurrent pool it exceeds wall time.
type Summary struct {
	Total           int                             `json:"total_operations"`
	Succeeded       int                             `json:"successful_operations"`
	Failed          int                             `json:"failed_operations"`
	SuccessRate     float64                         `json:"success_rate"`
	DurationSeconds float64                         `json:"total_duration_seconds"`
	ByKind          map[resource.Kind]KindBreakdown `json:"by_kind"`
	Failures        []Failure                       `json:"failed_resources"`
}

// Summarize reduces a result set to totals, a per-kind breakdown and
// the list of failed resources.
func Summarize(results []resource.OperationResult) Summary {
	summary := Summary{
		Total:  len(results),
		ByKind: map[resource.Kind]KindBreakdown{},
	}
	for _, result := range results {
		breakdown := summary.ByKind[result.Resource.Kind]
		breakdown.Total++
		if result.Success {
			summary.Succeeded++
			breakdown.Succeeded++
		} else {
			summary.Failed++
			breakdown.Failed++
			summary.Failures = append(summary.Failures, Failure{
				Kind:    result.Resource.Kind,
				ID:      result.Resource.ID,
				Region:  result.Resource.Region,
				Message: result.Message,
			})
		}
		summary.ByKind[result.Resource.Kind] = breakdown
	}
	summary.DurationSeconds = lo.SumBy(results, func(r resource.OperationResult) float64 { return r.DurationSeconds })
	if summary.Total > 0 {
		summary.SuccessRate = float64(summary.Succeeded) / float64(summary.Total)
	}
	return summary
}
