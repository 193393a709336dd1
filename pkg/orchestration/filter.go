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

// Filter narrows a discovered resource set. Criteria combine with AND
// semantics: a resource survives only when it matches every populated
// criterion. Empty criteria match everything.
type Filter struct {
	Kinds   []resource.Kind
	Regions []string
	// Tags requires every listed key to be present with the listed
	// value.
	Tags map[string]string
	// ExcludeTags drops a resource when any listed key is present with
	// the listed value.
	ExcludeTags map[string]string
	IDs         []string
	ExcludeIDs  []string
}

// Empty reports whether the filter matches everything.
func (f Filter) Empty() bool {
	return len(f.Kinds) == 0 && len(f.Regions) == 0 && len(f.Tags) == 0 &&
		len(f.ExcludeTags) == 0 && len(f.IDs) == 0 && len(f.ExcludeIDs) == 0
}

// Apply returns the resources matching the filter, preserving order.
func (f Filter) Apply(resources []resource.Resource) []resource.Resource {
	if f.Empty() {
		return resources
	}
	return lo.Filter(resources, func(r resource.Resource, _ int) bool { return f.Matches(r) })
}

// Matches evaluates the filter against a single resource.
func (f Filter) Matches(r resource.Resource) bool {
	if len(f.Kinds) > 0 && !lo.Contains(f.Kinds, r.Kind) {
		return false
	}
	if len(f.Regions) > 0 && !lo.Contains(f.Regions, r.Region) {
		return false
	}
	for key, value := range f.Tags {
		if v, ok := r.Tags[key]; !ok || v != value {
			return false
		}
	}
	for key, value := range f.ExcludeTags {
		if v, ok := r.Tags[key]; ok && v == value {
			return false
		}
	}
	if len(f.IDs) > 0 && !lo.Contains(f.IDs, r.ID) {
		return false
	}
	if len(f.ExcludeIDs) > 0 && lo.Contains(f.ExcludeIDs, r.ID) {
		return false
	}
	return true
}
