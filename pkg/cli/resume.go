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

	"github.com/awslabs/aws-pause/pkg/cancellation"
	"github.com/awslabs/aws-pause/pkg/orchestration"
	"github.com/awslabs/aws-pause/pkg/resource"
)

func (c *CLI) newResumeCommand() *cobra.Command {
	var snapshotID string
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Restore resources from a snapshot",
		Long:  "Loads a snapshot (the most recent one by default) and restores every resource it holds to its recorded configuration. Press ESC to stop scheduling further resources.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			op, err := c.operator(ctx)
			if err != nil {
				return err
			}
			op.ServeMetrics(ctx)

			snapshot, err := c.loadSnapshot(cmd, op.Regions[0], snapshotID)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Snapshot %s from %s holds %d resources.\n",
				snapshot.ID, snapshot.Timestamp.Format("2006-01-02 15:04:05 UTC"), len(snapshot.Resources))
			if !c.opts.DryRun && !c.confirm("Resume these resources?") {
				fmt.Fprintln(c.out, "Aborted.")
				return nil
			}

			cancellation.Reset()
			stop := StartESCWatcher(ctx, cancellation.Default())
			defer stop()

			results, runErr := op.Operations.ResumeSnapshot(ctx, snapshot, c.opts.DryRun)
			stop()

			renderResults(c.out, results)
			renderSummary(c.out, orchestration.Summarize(results))
			return runErr
		},
	}
	cmd.Flags().StringVar(&snapshotID, "snapshot", "", "Snapshot id to resume from. Defaults to the most recent snapshot for the primary region.")
	cmd.Flags().BoolVar(&c.yes, "yes", false, "Skip the confirmation prompt.")
	return cmd
}

func (c *CLI) loadSnapshot(cmd *cobra.Command, region string, id string) (*resource.Snapshot, error) {
	op, err := c.operator(cmd.Context())
	if err != nil {
		return nil, err
	}
	if id != "" {
		return op.Store.Load(cmd.Context(), id)
	}
	return op.Store.LoadLatest(cmd.Context(), region)
}
