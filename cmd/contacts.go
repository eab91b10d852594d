package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leadon/outreach-cli/internal/model"
	"github.com/leadon/outreach-cli/internal/store"
)

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Inspect stored contacts",
}

var (
	contactsStage  string
	contactsSource string
	contactsLimit  int
)

var contactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contacts, optionally filtered by stage or source",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		contacts, err := env.Store.ListContacts(ctx, store.ContactFilter{
			Stage:  model.Stage(contactsStage),
			Source: contactsSource,
			Limit:  contactsLimit,
		})
		if err != nil {
			return err
		}

		for _, c := range contacts {
			fmt.Printf("%-16s %-14s %3d  %-28s %-30s %s\n",
				c.Fingerprint, c.Stage, c.RelevanceScore, c.Name, c.Title, c.Company)
		}
		fmt.Printf("%d contacts\n", len(contacts))
		return nil
	},
}

var contactsShowCmd = &cobra.Command{
	Use:   "show <fingerprint>",
	Short: "Show one contact with its outreach history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := env.Store.GetContactByFingerprint(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s\n", c.Name)
		fmt.Printf("  fingerprint: %s\n", c.Fingerprint)
		fmt.Printf("  title:       %s @ %s\n", c.Title, c.Company)
		fmt.Printf("  email:       %s\n", c.Email)
		fmt.Printf("  location:    %s\n", c.Location)
		fmt.Printf("  stage:       %s\n", c.Stage)
		fmt.Printf("  score:       %d\n", c.RelevanceScore)
		if c.NextAction != "" && c.NextActionAt != nil {
			fmt.Printf("  next:        %s at %s\n", c.NextAction, c.NextActionAt.Format("2006-01-02 15:04"))
		}

		attempts, err := env.Store.ListAttempts(ctx, c.Fingerprint, 20)
		if err != nil {
			return err
		}
		if len(attempts) > 0 {
			fmt.Println("  history:")
			for _, a := range attempts {
				line := fmt.Sprintf("    %s  %-16s %-10s %s -> %s",
					a.AttemptedAt.Format("2006-01-02 15:04"), a.Action, a.Status, a.FromStage, a.ToStage)
				if a.Error != "" {
					line += "  (" + a.Error + ")"
				}
				fmt.Println(line)
			}
		}
		return nil
	},
}

func init() {
	contactsListCmd.Flags().StringVar(&contactsStage, "stage", "", "filter by stage")
	contactsListCmd.Flags().StringVar(&contactsSource, "source", "", "filter by source")
	contactsListCmd.Flags().IntVar(&contactsLimit, "limit", 100, "max contacts to list")

	contactsCmd.AddCommand(contactsListCmd, contactsShowCmd)
	rootCmd.AddCommand(contactsCmd)
}
