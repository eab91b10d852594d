package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/leadon/outreach-cli/internal/model"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage channel accounts and their send budgets",
}

var (
	accountChannel string
	accountName    string
)

var accountsAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Register a channel account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ch := model.Channel(accountChannel)
		if ch != model.ChannelLinkedIn && ch != model.ChannelTelegram {
			return eris.Errorf("unknown channel: %s", accountChannel)
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.SaveAccount(ctx, &model.ChannelAccount{
			ID:          args[0],
			Channel:     ch,
			DisplayName: accountName,
			UpdatedAt:   time.Now().UTC(),
		}); err != nil {
			return err
		}

		fmt.Printf("Registered %s account %s\n", ch, args[0])
		return nil
	},
}

var accountsStatusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show send counters against the channel ceilings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var ids []string
		if len(args) == 1 {
			ids = args
		} else {
			accounts, err := env.Store.ListAccounts(ctx)
			if err != nil {
				return err
			}
			for _, a := range accounts {
				ids = append(ids, a.ID)
			}
		}
		if len(ids) == 0 {
			fmt.Println("No accounts registered.")
			return nil
		}

		for _, id := range ids {
			acct, policy, err := env.Gate.Status(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("%s (%s): day %d/%d, hour %d/%d",
				acct.ID, acct.Channel,
				acct.SentInDay, policy.DailyCap,
				acct.SentInHour, policy.HourlyCap)
			if acct.BlockedUntil != nil && acct.BlockedUntil.After(time.Now()) {
				fmt.Printf(", paused until %s", acct.BlockedUntil.Format(time.RFC3339))
			}
			fmt.Println()
		}
		return nil
	},
}

var accountsRebuildCmd = &cobra.Command{
	Use:   "rebuild <id>",
	Short: "Recompute send counters from the attempt ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Gate.Rebuild(ctx, args[0]); err != nil {
			return err
		}

		acct, policy, err := env.Gate.Status(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Rebuilt %s: day %d/%d, hour %d/%d\n",
			acct.ID, acct.SentInDay, policy.DailyCap, acct.SentInHour, policy.HourlyCap)
		return nil
	},
}

func init() {
	accountsAddCmd.Flags().StringVar(&accountChannel, "channel", "linkedin", "channel: linkedin or telegram")
	accountsAddCmd.Flags().StringVar(&accountName, "name", "", "display name")

	accountsCmd.AddCommand(accountsAddCmd, accountsStatusCmd, accountsRebuildCmd)
	rootCmd.AddCommand(accountsCmd)
}
