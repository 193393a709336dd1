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

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/awslabs/aws-pause/pkg/log"
	"github.com/awslabs/aws-pause/pkg/resource"
)

func (c *CLI) newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show discovered resources and their states",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			filter, err := c.filter()
			if err != nil {
				return err
			}
			op, err := c.operator(ctx)
			if err != nil {
				return err
			}
			if err := op.PricingProvider.UpdatePrices(ctx); err != nil {
				log.FromContext(ctx).Debugf("using static pricing, %s", err)
			}
			resources, err := op.Operations.Discover(ctx, c.opts.ParsedKinds(), filter)
			if err != nil {
				return err
			}
			if len(resources) == 0 {
				fmt.Fprintln(c.out, "No resources found.")
				return nil
			}
			renderResources(c.out, resources)
			if savings := resource.EstimatedMonthlySavings(resources); savings > 0 {
				fmt.Fprintf(c.out, "Estimated monthly cost of listed resources: $%.2f\n", savings)
			}
			return nil
		},
	}
	c.registerFilterFlags(cmd)
	return cmd
}
