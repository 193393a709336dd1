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
	"strings"

	"github.com/spf13/cobra"

	"github.com/awslabs/aws-pause/pkg/cancellation"
	"github.com/awslabs/aws-pause/pkg/log"
	"github.com/awslabs/aws-pause/pkg/orchestration"
)

func (c *CLI) newPauseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause every pausable resource and record a snapshot",
		Long:  "Discovers resources across the configured regions and kinds, stops or scales down everything in a pausable state, and saves a snapshot holding the pre-pause configuration. Press ESC to stop scheduling further resources.",
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
			op.ServeMetrics(ctx)
			if err := op.PricingProvider.UpdatePrices(ctx); err != nil {
				log.FromContext(ctx).Debugf("using static pricing, %s", err)
			}

			if !c.opts.DryRun && !c.confirm(fmt.Sprintf("Pause resources in %s?", strings.Join(op.Regions, ", "))) {
				fmt.Fprintln(c.out, "Aborted.")
				return nil
			}

			cancellation.Reset()
			stop := StartESCWatcher(ctx, cancellation.Default())
			defer stop()

			results, snapshot, runErr := op.Operations.PauseAll(ctx, orchestration.PauseRequest{
				Kinds:  c.opts.ParsedKinds(),
				Filter: filter,
				DryRun: c.opts.DryRun,
			})
			stop()

			// The snapshot is saved even when the run was cancelled or
			// partially failed; it is the only road back.
			if snapshot != nil {
				path, err := op.Store.Save(ctx, snapshot)
				if err != nil {
					return err
				}
				if _, err := op.Store.Trim(ctx, c.opts.SnapshotRetention); err != nil {
					log.FromContext(ctx).Warnf("trimming snapshots, %s", err)
				}
				fmt.Fprintf(c.out, "Snapshot %s saved to %s\n", snapshot.ID, path)
			}
			if len(results) == 0 && runErr == nil {
				fmt.Fprintln(c.out, "Nothing to pause.")
				return nil
			}
			renderResults(c.out, results)
			renderSummary(c.out, orchestration.Summarize(results))
			if snapshot != nil && snapshot.TotalEstimatedSavings > 0 {
				fmt.Fprintf(c.out, "Estimated monthly savings: $%.2f\n", snapshot.TotalEstimatedSavings)
			}
			return runErr
		},
	}
	c.registerFilterFlags(cmd)
	cmd.Flags().BoolVar(&c.yes, "yes", false, "Skip the confirmation prompt.")
	return cmd
}
