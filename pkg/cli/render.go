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
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/awslabs/aws-pause/pkg/orchestration"
	"github.com/awslabs/aws-pause/pkg/resource"
	"github.com/awslabs/aws-pause/pkg/state"
)

func renderResources(out io.Writer, resources []resource.Resource) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Kind", "ID", "Region", "State", "Cost/hr"})
	table.SetBorder(false)
	table.AppendBulk(lo.Map(resources, func(r resource.Resource, _ int) []string {
		cost := "-"
		if r.CostHint != nil {
			cost = fmt.Sprintf("$%.4f", *r.CostHint)
		}
		return []string{string(r.Kind), r.ID, r.Region, r.State, cost}
	}))
	table.Render()
}

func renderResults(out io.Writer, results []resource.OperationResult) {
	if len(results) == 0 {
		return
	}
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"", "Kind", "ID", "Region", "Message"})
	table.SetBorder(false)
	table.AppendBulk(lo.Map(results, func(r resource.OperationResult, _ int) []string {
		return []string{
			lo.Ternary(r.Success, "ok", "FAIL"),
			string(r.Resource.Kind), r.Resource.ID, r.Resource.Region, r.Message,
		}
	}))
	table.Render()
}

func renderSummary(out io.Writer, summary orchestration.Summary) {
	if summary.Total == 0 {
		return
	}
	fmt.Fprintf(out, "%d/%d succeeded (%.0f%%) in %.1fs of driver time\n",
		summary.Succeeded, summary.Total, summary.SuccessRate*100, summary.DurationSeconds)
}

func renderSnapshots(out io.Writer, summaries []state.Summary) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Snapshot", "Created", "Region", "Resources", "Est. savings/mo"})
	table.SetBorder(false)
	table.AppendBulk(lo.Map(summaries, func(s state.Summary, _ int) []string {
		return []string{
			s.ID,
			s.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			lo.Ternary(s.Region != "", s.Region, "-"),
			fmt.Sprintf("%d", s.ResourceCount),
			fmt.Sprintf("$%.2f", s.EstimatedMonthlySavings),
		}
	}))
	table.Render()
}
