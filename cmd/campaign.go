package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadon/outreach-cli/internal/campaign"
	"github.com/leadon/outreach-cli/internal/export"
	"github.com/leadon/outreach-cli/internal/model"
	"github.com/leadon/outreach-cli/internal/store"
	"github.com/leadon/outreach-cli/internal/workflow"
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Run and track the outreach sequence",
}

var (
	campaignAccount      string
	campaignChannel      string
	campaignLimit        int
	campaignDeadlineMins int
)

var campaignRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Dispatch due outreach actions for one account",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ch := model.Channel(campaignChannel)
		stages := workflow.ActionableStages(ch)
		if len(stages) == 0 {
			return eris.Errorf("unknown channel: %s", campaignChannel)
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		// Reconcile in-memory counters with the attempt ledger before sending.
		if err := env.Gate.Rebuild(ctx, campaignAccount); err != nil {
			return err
		}

		now := time.Now()
		contacts, err := env.Store.ListDueContacts(ctx, stages, now, campaignLimit)
		if err != nil {
			return err
		}
		if len(contacts) == 0 {
			fmt.Println("No contacts due.")
			return nil
		}

		batch := campaign.Batch{
			AccountID: campaignAccount,
			Channel:   ch,
			Contacts:  contacts,
		}
		if campaignDeadlineMins > 0 {
			batch.Deadline = now.Add(time.Duration(campaignDeadlineMins) * time.Minute)
		}

		scheduler := campaign.NewScheduler(env.Gate, env.Adapters, env.Store, env.Policies, cfg.Campaign)
		result, err := scheduler.RunBatch(ctx, batch)
		if err != nil {
			return err
		}

		fmt.Printf("Attempted %d: %d sent, %d failed, %d skipped\n",
			result.Attempted, result.Sent, result.Failed, result.Skipped)
		return nil
	},
}

var markChannel string

// observableActions maps CLI disposition names onto ledger actions.
var observableActions = map[string]model.ActionKind{
	"accepted":   model.ActionObserveAccept,
	"replied":    model.ActionObserveReply,
	"qualify":    model.ActionQualify,
	"disqualify": model.ActionDisqualify,
}

var campaignMarkCmd = &cobra.Command{
	Use:   "mark <fingerprint> <disposition>",
	Short: "Record an observed response or manual disposition",
	Long:  "Dispositions: accepted, replied, qualify, disqualify. Connection acceptances and replies arrive out of band, so they are recorded here rather than dispatched.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		action, ok := observableActions[args[1]]
		if !ok {
			return eris.Errorf("unknown disposition: %s", args[1])
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		contact, err := env.Store.GetContactByFingerprint(ctx, args[0])
		if err != nil {
			return err
		}

		scheduler := campaign.NewScheduler(env.Gate, env.Adapters, env.Store, env.Policies, cfg.Campaign)
		updated, err := scheduler.Observe(ctx, *contact, model.Channel(markChannel), action)
		if err != nil {
			return err
		}

		fmt.Printf("%s: %s -> %s\n", updated.Fingerprint, contact.Stage, updated.Stage)
		return nil
	},
}

var statusStages = []model.Stage{
	model.StageNew, model.StageConnectSent, model.StageConnected,
	model.StageLiked, model.StageCommented, model.StageMessaged,
	model.StageReplied, model.StageQualified, model.StageDisqualified,
}

var campaignStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the funnel: contact counts per stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		for _, stage := range statusStages {
			contacts, err := env.Store.ListContacts(ctx, store.ContactFilter{Stage: stage, Limit: 100000})
			if err != nil {
				return err
			}
			fmt.Printf("  %-14s %d\n", stage, len(contacts))
		}
		return nil
	},
}

var campaignExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Push qualified contacts to Salesforce as Leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sfClient, err := initSalesforce()
		if err != nil {
			return err
		}

		exporter := export.NewExporter(sfClient, env.Store)
		summary, err := exporter.Export(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.Int("qualified", summary.Qualified),
			zap.Int("exported", summary.Exported),
			zap.Int("matched_existing", summary.MatchedExisting),
			zap.Int("already_exported", summary.AlreadyExported),
			zap.Int("failed", summary.Failed),
		)
		fmt.Printf("Exported %d of %d qualified contacts (%d already in Salesforce, %d failed)\n",
			summary.Exported, summary.Qualified,
			summary.MatchedExisting+summary.AlreadyExported, summary.Failed)
		return nil
	},
}

func init() {
	campaignRunCmd.Flags().StringVar(&campaignAccount, "account", "", "channel account ID (required)")
	campaignRunCmd.Flags().StringVar(&campaignChannel, "channel", "linkedin", "channel: linkedin or telegram")
	campaignRunCmd.Flags().IntVar(&campaignLimit, "limit", 50, "max contacts to consider")
	campaignRunCmd.Flags().IntVar(&campaignDeadlineMins, "deadline-mins", 0, "stop dispatching after this many minutes (0 = no deadline)")
	_ = campaignRunCmd.MarkFlagRequired("account")

	campaignMarkCmd.Flags().StringVar(&markChannel, "channel", "linkedin", "channel the observation came from")

	campaignCmd.AddCommand(campaignRunCmd, campaignMarkCmd, campaignStatusCmd, campaignExportCmd)
	rootCmd.AddCommand(campaignCmd)
}
