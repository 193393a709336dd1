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

const (
	// Flat fallbacks used when a type or class has no table entry. The
	// cluster rate covers Aurora clusters, which are billed per cluster
	// capacity rather than per instance class.
	defaultInstancePrice = 0.05
	defaultDatabasePrice = 0.10
	clusterBasePrice     = 0.10
)

// Static us-east-1 on-demand prices for common instance types. They keep
// estimates available when the Pricing API is unreachable and are replaced by
// live data when UpdatePrices succeeds.
var initialOnDemandPrices = map[string]float64{
	"t2.micro":   0.0116,
	"t2.small":   0.023,
	"t2.medium":  0.0464,
	"t2.large":   0.0928,
	"t3.micro":   0.0104,
	"t3.small":   0.0208,
	"t3.medium":  0.0416,
	"t3.large":   0.0832,
	"m5.large":   0.096,
	"m5.xlarge":  0.192,
	"m5.2xlarge": 0.384,
	"c5.large":   0.085,
	"c5.xlarge":  0.17,
	"r5.large":   0.126,
	"r5.xlarge":  0.252,
}

var initialDatabasePrices = map[string]float64{
	"db.t3.micro":  0.017,
	"db.t3.small":  0.034,
	"db.t3.medium": 0.068,
	"db.t3.large":  0.136,
	"db.m5.large":  0.171,
	"db.m5.xlarge": 0.342,
	"db.r5.large":  0.24,
	"db.r5.xlarge": 0.48,
}
