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
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind identifies one of the service families the tool can pause.
type Kind string

const (
	KindInstance         Kind = "instance"
	KindDatabase         Kind = "database"
	KindContainerService Kind = "container-service"
	KindInstanceGroup    Kind = "instance-group"
)

// Kinds returns all supported kinds in a stable order.
func Kinds() []Kind {
	return []Kind{KindInstance, KindDatabase, KindContainerService, KindInstanceGroup}
}

// ParseKind maps a user-supplied string onto a known Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == strings.ToLower(strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown resource kind %q", s)
}

// Op is the operation that produced an OperationResult.
type Op string

const (
	OpPause    Op = "pause"
	OpResume   Op = "resume"
	OpDiscover Op = "discover"
)

// Resource describes a single cloud object at the moment it was
// enumerated. Values are never mutated after construction; pause and
// resume produce new Resource values instead.
type Resource struct {
	Kind     Kind              `json:"kind"`
	ID       string            `json:"id"`
	Region   string            `json:"region"`
	State    string            `json:"state"`
	Tags     map[string]string `json:"tags,omitempty"`
	Metadata map[string]any    `json:"metadata,omitempty"`
	// CostHint is an hourly cost supplied by the caller. It is
	// propagated into savings arithmetic, never computed here.
	CostHint *float64 `json:"cost_hint,omitempty"`
}

// Key returns the composite key "<kind>:<region>:<id>" that uniquely
// identifies the resource within a snapshot. Components must not
// contain ':'; drivers enforce this at enumerate time.
func (r Resource) Key() string {
	return fmt.Sprintf("%s:%s:%s", r.Kind, r.Region, r.ID)
}

// WithState returns a copy of the resource carrying the given state.
func (r Resource) WithState(state string) Resource {
	r.State = state
	return r
}

// ValidKeyComponent reports whether s can participate in a composite
// key without colliding with the ':' separator.
func ValidKeyComponent(s string) bool {
	return s != "" && !strings.Contains(s, ":")
}

// OperationResult records the outcome of one attempted mutation or
// discovery. It is always constructed, for failures as well as
// successes; errors never cross the orchestrator boundary raw.
type OperationResult struct {
	Success         bool      `json:"success"`
	Resource        Resource  `json:"resource"`
	Op              Op        `json:"op"`
	Message         string    `json:"message"`
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
}

// OriginalState is the state+metadata tuple captured for a resource
// before any mutation, keyed in a snapshot by Resource.Key().
type OriginalState struct {
	CurrentState string         `json:"current_state"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// CloneMetadata deep-copies a metadata tree through its JSON
// representation so that frozen snapshot state cannot alias live
// resource values.
func CloneMetadata(md map[string]any) map[string]any {
	if md == nil {
		return nil
	}
	raw, err := json.Marshal(md)
	if err != nil {
		// Metadata trees are built from JSON-compatible primitives;
		// a marshal failure here is a programming error.
		panic(fmt.Sprintf("cloning metadata, %s", err))
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("cloning metadata, %s", err))
	}
	return out
}

// MetadataInt32 reads an integer-valued metadata key, tolerating the
// numeric types produced both by enumeration (int32/int64) and by a
// JSON round-trip (float64, json.Number).
func MetadataInt32(md map[string]any, key string) (int32, bool) {
	v, ok := md[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return int32(n), true
	case int32:
		return n, true
	case int64:
		return int32(n), true
	case float64:
		return int32(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int32(i), true
	default:
		return 0, false
	}
}

// MetadataString reads a string-valued metadata key.
func MetadataString(md map[string]any, key string) (string, bool) {
	v, ok := md[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
