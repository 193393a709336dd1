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
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
	"github.com/patrickmn/go-cache"
	"github.com/samber/lo"

	sdk "github.com/awslabs/aws-pause/pkg/aws"
	"github.com/awslabs/aws-pause/pkg/log"
	"github.com/awslabs/aws-pause/pkg/resource"
	"github.com/awslabs/aws-pause/pkg/utils/pretty"
)

const (
	// UpdatePeriod caps how often UpdatePrices will call the Pricing API.
	// Between refreshes the last fetched values, or the static seed, are
	// served.
	UpdatePeriod = 12 * time.Hour

	updateCheckInterval = 1 * time.Minute
	onDemandUpdatedKey  = "on-demand-prices-updated"
)

// Provider serves hourly on-demand price estimates for pausable resources.
// It is seeded at construction with a static price list so estimates remain
// available in regions or accounts where the Pricing API is unreachable.
// UpdatePrices replaces the instance prices with live data when it succeeds
// and retains the previous values when it fails.
type Provider struct {
	pricing sdk.PricingAPI
	region  string
	cm      *pretty.ChangeMonitor
	updated *cache.Cache

	mu             sync.RWMutex
	onDemandPrices map[string]float64
	databasePrices map[string]float64
}

// APIRegion returns the region serving pricing data for the given region.
// The Pricing API is only served from a handful of endpoints.
func APIRegion(region string) string {
	if strings.HasPrefix(region, "ap-") {
		return "ap-south-1"
	}
	if strings.HasPrefix(region, "cn-") {
		return "cn-northwest-1"
	}
	if strings.HasPrefix(region, "eu-") {
		return "eu-central-1"
	}
	return "us-east-1"
}

// NewAPI returns a Pricing API client pinned to the endpoint covering the
// given region rather than the region itself.
func NewAPI(cfg aws.Config, region string) sdk.PricingAPI {
	return pricing.NewFromConfig(cfg, func(o *pricing.Options) {
		o.Region = APIRegion(region)
	})
}

func NewProvider(pricingAPI sdk.PricingAPI, region string) *Provider {
	p := &Provider{
		pricing: pricingAPI,
		region:  region,
		cm:      pretty.NewChangeMonitor(),
		updated: cache.New(UpdatePeriod, updateCheckInterval),
	}
	p.Reset()
	return p
}

// Reset restores the static seed prices and clears the refresh marker.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDemandPrices = lo.Assign(initialOnDemandPrices)
	p.databasePrices = lo.Assign(initialDatabasePrices)
	p.updated.Flush()
	p.publish()
}

// InstanceTypes returns every instance type and database instance class with
// a known price.
func (p *Provider) InstanceTypes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return lo.Union(lo.Keys(p.onDemandPrices), lo.Keys(p.databasePrices))
}

// OnDemandPrice returns the last known hourly on-demand price for an instance
// type, and false when the type has no recorded price.
func (p *Provider) OnDemandPrice(instanceType string) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.onDemandPrices[instanceType]
	if !ok {
		return 0.0, false
	}
	return price, true
}

// DatabasePrice returns the last known hourly price for a database instance
// class, and false when the class has no recorded price.
func (p *Provider) DatabasePrice(instanceClass string) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.databasePrices[instanceClass]
	if !ok {
		return 0.0, false
	}
	return price, true
}

// Annotate returns copies of the given resources with hourly cost hints
// attached. Instances are priced by instance type and databases by instance
// class, falling back to a flat default when the exact price is unknown.
// Container services and instance groups carry no hint of their own, the
// instances behind them are billed separately.
func (p *Provider) Annotate(resources []resource.Resource) []resource.Resource {
	return lo.Map(resources, func(r resource.Resource, _ int) resource.Resource {
		switch r.Kind {
		case resource.KindInstance:
			r.CostHint = lo.ToPtr(p.instanceEstimate(r))
		case resource.KindDatabase:
			r.CostHint = lo.ToPtr(p.databaseEstimate(r))
		}
		return r
	})
}

func (p *Provider) instanceEstimate(r resource.Resource) float64 {
	if instanceType, ok := resource.MetadataString(r.Metadata, "instance_type"); ok {
		if price, found := p.OnDemandPrice(instanceType); found {
			return price
		}
	}
	return defaultInstancePrice
}

func (p *Provider) databaseEstimate(r resource.Resource) float64 {
	// clusters carry no instance class, the shared capacity is billed at a
	// flat base rate
	class, ok := resource.MetadataString(r.Metadata, "instance_class")
	if !ok {
		return clusterBasePrice
	}
	if price, found := p.DatabasePrice(class); found {
		return price
	}
	return defaultDatabasePrice
}

// UpdatePrices refreshes instance prices from the Pricing API. Refreshes are
// rate limited to once per UpdatePeriod; a call inside the window is a no-op.
func (p *Provider) UpdatePrices(ctx context.Context) error {
	if _, fresh := p.updated.Get(onDemandUpdatedKey); fresh {
		return nil
	}
	prices, err := p.fetchOnDemandPricing(ctx)
	if err != nil {
		return fmt.Errorf("retrieving on-demand pricing data, %w", err)
	}
	if len(prices) == 0 {
		return fmt.Errorf("no on-demand pricing found")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDemandPrices = prices
	p.updated.SetDefault(onDemandUpdatedKey, time.Now())
	p.publish()
	if p.cm.HasChanged("on-demand-prices", p.onDemandPrices) {
		log.FromContext(ctx).With("instance-type-count", len(p.onDemandPrices)).Debugf("updated on-demand pricing")
	}
	return nil
}

func (p *Provider) fetchOnDemandPricing(ctx context.Context) (map[string]float64, error) {
	prices := map[string]float64{}
	filters := []pricingtypes.Filter{
		{
			Field: aws.String("regionCode"),
			Type:  pricingtypes.FilterTypeTermMatch,
			Value: aws.String(p.region),
		},
		{
			Field: aws.String("serviceCode"),
			Type:  pricingtypes.FilterTypeTermMatch,
			Value: aws.String("AmazonEC2"),
		},
		{
			Field: aws.String("preInstalledSw"),
			Type:  pricingtypes.FilterTypeTermMatch,
			Value: aws.String("NA"),
		},
		{
			Field: aws.String("operatingSystem"),
			Type:  pricingtypes.FilterTypeTermMatch,
			Value: aws.String("Linux"),
		},
		{
			Field: aws.String("capacitystatus"),
			Type:  pricingtypes.FilterTypeTermMatch,
			Value: aws.String("Used"),
		},
		{
			Field: aws.String("marketoption"),
			Type:  pricingtypes.FilterTypeTermMatch,
			Value: aws.String("OnDemand"),
		},
		{
			Field: aws.String("tenancy"),
			Type:  pricingtypes.FilterTypeTermMatch,
			Value: aws.String("Shared"),
		},
		{
			Field: aws.String("productFamily"),
			Type:  pricingtypes.FilterTypeTermMatch,
			Value: aws.String("Compute Instance"),
		},
	}

	paginator := pricing.NewGetProductsPaginator(p.pricing, &pricing.GetProductsInput{
		Filters:     filters,
		ServiceCode: aws.String("AmazonEC2"),
	})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		p.onDemandPage(ctx, prices, output)
	}
	return prices, nil
}

func (p *Provider) onDemandPage(ctx context.Context, prices map[string]float64, output *pricing.GetProductsOutput) {
	// this isn't the full pricing struct, just the portions we care about
	type priceItem struct {
		Product struct {
			Attributes struct {
				InstanceType string
			}
		}
		Terms struct {
			OnDemand map[string]struct {
				PriceDimensions map[string]struct {
					PricePerUnit map[string]string
				}
			}
		}
	}

	currency := "USD"
	if strings.HasPrefix(p.region, "cn-") {
		currency = "CNY"
	}
	for _, outer := range output.PriceList {
		var pItem priceItem
		if err := json.Unmarshal([]byte(outer), &pItem); err != nil {
			log.FromContext(ctx).Errorf("decoding price record, %s", err)
			continue
		}
		if pItem.Product.Attributes.InstanceType == "" {
			continue
		}
		for _, term := range pItem.Terms.OnDemand {
			for _, v := range term.PriceDimensions {
				price, err := strconv.ParseFloat(v.PricePerUnit[currency], 64)
				if err != nil || price == 0 {
					continue
				}
				prices[pItem.Product.Attributes.InstanceType] = price
			}
		}
	}
}

// publish pushes the current price tables to the estimate gauge. Callers must
// hold p.mu.
func (p *Provider) publish() {
	for instanceType, price := range p.onDemandPrices {
		PriceEstimate.WithLabelValues(instanceType, p.region).Set(price)
	}
	for instanceClass, price := range p.databasePrices {
		PriceEstimate.WithLabelValues(instanceClass, p.region).Set(price)
	}
}
