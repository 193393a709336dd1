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
	"sync"

	"github.com/awslabs/aws-pause/pkg/resource"
)

// Factory builds the driver for a (kind, region) pair. It returns a
// configuration error for kinds it does not know.
type Factory func(kind resource.Kind, region string) (Driver, error)

type driverKey struct {
	kind   resource.Kind
	region string
}

// Registry hands out drivers, constructing each (kind, region) pair
// lazily on first use and reusing it afterwards so that regional
// clients and their connection pools are shared across operations.
type Registry struct {
	mu      sync.Mutex
	factory Factory
	drivers map[driverKey]Driver
}

func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory: factory,
		drivers: map[driverKey]Driver{},
	}
}

// Driver returns the cached driver for the pair, building it through
// the factory on first use.
func (r *Registry) Driver(kind resource.Kind, region string) (Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := driverKey{kind: kind, region: region}
	if driver, ok := r.drivers[key]; ok {
		return driver, nil
	}
	driver, err := r.factory(kind, region)
	if err != nil {
		return nil, err
	}
	r.drivers[key] = driver
	return driver, nil
}

// ForResource resolves the driver responsible for a resource.
func (r *Registry) ForResource(res resource.Resource) (Driver, error) {
	return r.Driver(res.Kind, res.Region)
}
