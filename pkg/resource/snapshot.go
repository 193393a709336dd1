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

package resource

import (
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"k8s.io/utils/clock"
)

const (
	// hoursPerMonth backs the monthly savings estimate (24h x 30d).
	hoursPerMonth = 24 * 30

	snapshotIDPrefix = "pause"
	snapshotIDFormat = "20060102-150405"
)

// Snapshot is the authoritative pre-pause record. It is immutable once
// saved; resume constructs new results but never rewrites it.
type Snapshot struct {
	ID        string    `json:"snapshot_id"`
	Timestamp time.Time `json:"timestamp"`
	// Region is the primary region (the first resource's), empty when
	// the snapshot holds no resources.
	Region                string                   `json:"region,omitempty"`
	Resources             []Resource               `json:"resources"`
	OriginalStates        map[string]OriginalState `json:"original_states"`
	OperationResults      []OperationResult        `json:"operation_results,omitempty"`
	TotalEstimatedSavings float64                  `json:"total_estimated_savings"`
}

// Validate checks the integrity rules a snapshot must satisfy before
// resume can trust it: a non-empty resource list, a populated original
// state map, and an original state entry for every resource.
func (s *Snapshot) Validate() error {
	if len(s.Resources) == 0 {
		return fmt.Errorf("snapshot %s contains no resources", s.ID)
	}
	if len(s.OriginalStates) == 0 {
		return fmt.Errorf("snapshot %s has no original states", s.ID)
	}
	for _, r := range s.Resources {
		if _, ok := s.OriginalStates[r.Key()]; !ok {
			return fmt.Errorf("snapshot %s is missing original state for %s", s.ID, r.Key())
		}
	}
	return nil
}

// PrimaryRegion returns the first resource's region, or empty.
func (s *Snapshot) PrimaryRegion() string {
	if len(s.Resources) == 0 {
		return ""
	}
	return s.Resources[0].Region
}

// EstimatedMonthlySavings sums cost hints over a month, skipping
// resources that carry no hint.
func EstimatedMonthlySavings(resources []Resource) float64 {
	return lo.SumBy(resources, func(r Resource) float64 {
		return lo.FromPtr(r.CostHint) * hoursPerMonth
	})
}

var (
	snapshotIDMu   sync.Mutex
	snapshotIDBase string
	snapshotIDSeq  int
)

// NewSnapshotID produces "pause-<UTC yyyymmdd-HHMMSS>" ids, appending
// a numeric suffix when more than one snapshot is created within the
// same second so that ids stay unique and ordered.
func NewSnapshotID(clk clock.Clock) string {
	snapshotIDMu.Lock()
	defer snapshotIDMu.Unlock()

	base := fmt.Sprintf("%s-%s", snapshotIDPrefix, clk.Now().UTC().Format(snapshotIDFormat))
	if base != snapshotIDBase {
		snapshotIDBase = base
		snapshotIDSeq = 1
		return base
	}
	snapshotIDSeq++
	return fmt.Sprintf("%s-%d", base, snapshotIDSeq)
}
