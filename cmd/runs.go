package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect past search runs",
}

var runsLimit int

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent search runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		runs, err := env.Store.ListSearchRuns(ctx, runsLimit)
		if err != nil {
			return err
		}

		for _, r := range runs {
			flag := ""
			if r.Partial {
				flag = "  [partial]"
			}
			fmt.Printf("%s  %s  target=%d%s\n",
				r.CreatedAt.Format("2006-01-02 15:04"), r.ID, r.Target, flag)
			fmt.Printf("    %q\n", r.Query)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a search run round by round",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Store.GetSearchRun(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s  target=%d  partial=%v\n", run.ID, run.Target, run.Partial)
		fmt.Printf("  %q\n", run.Query)
		for _, round := range run.Rounds {
			fmt.Printf("  round %d: raw=%d qualifying=%d new=%d cumulative=%d\n",
				round.Number, round.RawCount, round.QualifyingCount,
				round.NewUniqueCount, round.CumulativeUnique)
			var filters []string
			if len(round.Criteria.Titles) > 0 {
				filters = append(filters, "titles="+strings.Join(round.Criteria.Titles, "|"))
			}
			if len(round.Criteria.Locations) > 0 {
				filters = append(filters, "locations="+strings.Join(round.Criteria.Locations, "|"))
			}
			if len(round.Criteria.Industries) > 0 {
				filters = append(filters, "industries="+strings.Join(round.Criteria.Industries, "|"))
			}
			if len(round.Criteria.EmployeeRanges) > 0 {
				filters = append(filters, "sizes="+strings.Join(round.Criteria.EmployeeRanges, "|"))
			}
			if len(filters) > 0 {
				fmt.Printf("    %s\n", strings.Join(filters, " "))
			}
		}
		return nil
	},
}

func init() {
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "max runs to list")

	runsCmd.AddCommand(runsListCmd, runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
