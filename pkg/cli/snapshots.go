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
)

// Snapshot management never talks to AWS; it works straight against
// the snapshot directory.
func (c *CLI) newSnapshotsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Manage stored snapshots",
	}
	cmd.AddCommand(
		c.newSnapshotsListCommand(),
		c.newSnapshotsDeleteCommand(),
		c.newSnapshotsTrimCommand(),
	)
	return cmd
}

func (c *CLI) newSnapshotsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.store()
			if err != nil {
				return err
			}
			summaries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(c.out, "No snapshots found.")
				return nil
			}
			renderSnapshots(c.out, summaries)
			return nil
		},
	}
}

func (c *CLI) newSnapshotsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <snapshot-id>",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.store()
			if err != nil {
				return err
			}
			existed, err := store.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !existed {
				fmt.Fprintf(c.out, "Snapshot %s does not exist.\n", args[0])
				return nil
			}
			fmt.Fprintf(c.out, "Deleted snapshot %s.\n", args[0])
			return nil
		},
	}
}

func (c *CLI) newSnapshotsTrimCommand() *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "trim",
		Short: "Delete all but the most recent snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.store()
			if err != nil {
				return err
			}
			removed, err := store.Trim(cmd.Context(), keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Removed %d snapshots, kept the %d most recent.\n", removed, keep)
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 10, "Number of snapshots to keep.")
	return cmd
}
