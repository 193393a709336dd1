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

package pretty

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/patrickmn/go-cache"
)

// Concise returns a single-line JSON rendering for log messages.
func Concise(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(out)
}

// ChangeMonitor deduplicates repeated log lines: HasChanged only
// returns true when the hashed value differs from the last one seen
// under the same key within the expiry window.
type ChangeMonitor struct {
	lastSeen *cache.Cache
}

func NewChangeMonitor() *ChangeMonitor {
	return &ChangeMonitor{
		lastSeen: cache.New(24*time.Hour, 12*time.Hour),
	}
}

func (c *ChangeMonitor) HasChanged(key string, value any) bool {
	hv, err := hashstructure.Hash(value, hashstructure.FormatV2, &hashstructure.HashOptions{SlicesAsSets: true})
	if err != nil {
		// Unhashable values are treated as always-changed.
		return true
	}
	existing, ok := c.lastSeen.Get(key)
	c.lastSeen.SetDefault(key, hv)
	if !ok {
		return true
	}
	return existing.(uint64) != hv
}

// Reconfigure swaps the expiration window, for callers that want a
// shorter dedupe horizon than the default day.
func (c *ChangeMonitor) Reconfigure(expiry time.Duration) {
	c.lastSeen = cache.New(expiry, expiry/2)
}
