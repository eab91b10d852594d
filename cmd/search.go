package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadon/outreach-cli/internal/intent"
	"github.com/leadon/outreach-cli/internal/resilience"
	"github.com/leadon/outreach-cli/internal/search"
	"github.com/leadon/outreach-cli/pkg/anthropic"
	"github.com/leadon/outreach-cli/pkg/apollo"
)

var searchTarget int

var searchCmd = &cobra.Command{
	Use:   "search <request>",
	Short: "Find contacts matching a natural-language request",
	Long:  "Parses the request into directory filters, then runs iterative search rounds against Apollo, scoring and deduping candidates until the target count is reached or the loop budget runs out.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		query := strings.Join(args, " ")

		if cfg.Anthropic.Key == "" {
			return eris.New("anthropic key is required (OUTREACH_ANTHROPIC_KEY)")
		}
		if cfg.Apollo.Key == "" {
			return eris.New("apollo key is required (OUTREACH_APOLLO_KEY)")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		parser := intent.NewParser(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic)
		parsed, err := parser.Parse(ctx, query)
		if err != nil {
			return err
		}

		target := searchTarget
		if target == 0 {
			target = parsed.Target
		}
		if target == 0 {
			target = 25
		}

		zap.L().Info("intent parsed",
			zap.Strings("titles", parsed.Criteria.Titles),
			zap.Strings("locations", parsed.Criteria.Locations),
			zap.Strings("industries", parsed.Criteria.Industries),
			zap.Int("target", target),
		)

		provider := apollo.NewClient(cfg.Apollo.Key,
			apollo.WithBaseURL(cfg.Apollo.BaseURL),
			apollo.WithRateLimit(cfg.Apollo.RateLimit),
			apollo.WithTimeout(time.Duration(cfg.Apollo.TimeoutSecs)*time.Second),
		)

		loop := search.NewLoop(provider, env.Store, cfg.Search,
			search.WithRetry(resilience.RetryConfig{
				MaxAttempts: cfg.Apollo.Retries + 1,
				OnRetry:     resilience.RetryLogger("apollo", "search_people"),
			}))

		result, err := loop.Run(ctx, query, parsed.Criteria, target)
		if err != nil {
			return err
		}

		fmt.Printf("Found %d contacts in %d rounds", len(result.Contacts), result.RoundsUsed)
		if result.Partial {
			fmt.Print(" (partial: provider fault cut the search short)")
		}
		fmt.Println()
		for _, c := range result.Contacts {
			fmt.Printf("  %3d  %-28s %-30s %s\n", c.RelevanceScore, c.Name, c.Title, c.Company)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchTarget, "target", 0, "contacts to find (default from the request, else 25)")
	rootCmd.AddCommand(searchCmd)
}
