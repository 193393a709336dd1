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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/awslabs/aws-pause/pkg/config"
	"github.com/awslabs/aws-pause/pkg/errors"
	"github.com/awslabs/aws-pause/pkg/log"
	"github.com/awslabs/aws-pause/pkg/operator"
	"github.com/awslabs/aws-pause/pkg/operator/options"
	"github.com/awslabs/aws-pause/pkg/orchestration"
	"github.com/awslabs/aws-pause/pkg/state"
)

// CLI carries the parsed options and the lazily constructed operator
// shared by every subcommand.
type CLI struct {
	opts *options.Options
	op   *operator.Operator

	// Filter flags shared by pause and status.
	tags        []string
	excludeTags []string
	ids         []string
	excludeIDs  []string

	// yes skips interactive confirmation.
	yes bool

	in  io.Reader
	out io.Writer
}

// New builds the root command. Config file values seed the flag
// defaults; environment variables and flags override them.
func New(ctx context.Context) *cobra.Command {
	c := &CLI{in: os.Stdin, out: os.Stdout}
	c.opts = options.New(config.Default().Merge(loadConfig(ctx)))

	root := &cobra.Command{
		Use:           "aws-pause",
		Short:         "Emergency pause and resume for AWS compute resources",
		Long:          "aws-pause stops EC2 instances, RDS databases, ECS services and auto scaling groups across regions, records their pre-pause configuration in a snapshot, and restores it on resume.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log.Setup(c.opts.Debug)
			return c.opts.Validate()
		},
	}
	root.PersistentFlags().AddGoFlagSet(c.opts.FlagSet)

	root.AddCommand(
		c.newPauseCommand(),
		c.newResumeCommand(),
		c.newStatusCommand(),
		c.newSnapshotsCommand(),
		newVersionCommand(),
	)
	return root
}

// loadConfig reads ~/.aws-pause/config.toml. A missing or unreadable
// file degrades to built-in defaults rather than blocking startup.
func loadConfig(ctx context.Context) config.Config {
	dir, err := config.Dir()
	if err != nil {
		return config.Config{}
	}
	manager, err := config.NewManager(afero.NewOsFs(), dir)
	if err != nil {
		return config.Config{}
	}
	cfg, err := manager.Load(ctx)
	if err != nil {
		log.FromContext(ctx).Warnf("ignoring config file, %s", err)
		return config.Config{}
	}
	return cfg
}

// operator builds the session-backed operator on first use so that
// commands not touching AWS never require credentials.
func (c *CLI) operator(ctx context.Context) (*operator.Operator, error) {
	if c.op != nil {
		return c.op, nil
	}
	op, err := operator.NewOperator(ctx, c.opts)
	if err != nil {
		return nil, err
	}
	c.op = op
	return op, nil
}

// store opens the snapshot store without a session, for snapshot
// management commands that never call AWS.
func (c *CLI) store() (*state.Store, error) {
	dir := c.opts.SnapshotDir
	if dir == "" {
		var err error
		dir, err = config.DefaultSnapshotDir()
		if err != nil {
			return nil, err
		}
	}
	return state.NewStore(afero.NewOsFs(), dir)
}

func (c *CLI) registerFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&c.tags, "tag", nil, "Keep only resources carrying this key=value tag. Repeatable.")
	cmd.Flags().StringArrayVar(&c.excludeTags, "exclude-tag", nil, "Drop resources carrying this key=value tag. Repeatable.")
	cmd.Flags().StringArrayVar(&c.ids, "id", nil, "Keep only resources with this id. Repeatable.")
	cmd.Flags().StringArrayVar(&c.excludeIDs, "exclude-id", nil, "Drop resources with this id. Repeatable.")
}

// filter assembles the resource filter from the repeatable flags.
// Kinds and regions are not part of it; they scope discovery itself.
func (c *CLI) filter() (orchestration.Filter, error) {
	tags, err := parseTagPairs(c.tags)
	if err != nil {
		return orchestration.Filter{}, err
	}
	excludeTags, err := parseTagPairs(c.excludeTags)
	if err != nil {
		return orchestration.Filter{}, err
	}
	return orchestration.Filter{
		Tags:        tags,
		ExcludeTags: excludeTags,
		IDs:         c.ids,
		ExcludeIDs:  c.excludeIDs,
	}, nil
}

func parseTagPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	tags := map[string]string{}
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, errors.Configurationf("invalid tag %q, expected key=value", pair)
		}
		tags[key] = value
	}
	return tags, nil
}

// confirm prompts on stdin unless --yes was given. Anything but an
// explicit yes declines.
func (c *CLI) confirm(prompt string) bool {
	if c.yes {
		return true
	}
	fmt.Fprintf(c.out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// ExitCode maps the error taxonomy onto process exit codes so shell
// callers can tell a declined credential from a half-finished pause.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.IsConfiguration(err):
		return 2
	case errors.IsAuthentication(err):
		return 3
	case errors.IsState(err):
		return 4
	case errors.IsCancelled(err):
		return 130
	default:
		return 1
	}
}
