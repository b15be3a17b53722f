package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbellot/tally/internal/model"
)

func dupesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dupes",
		Short: "Review and merge duplicate transactions",
		Long: `Find transactions imported twice from overlapping sources, review the
scored matches, and merge or unmerge them. Merging hides the duplicate
behind the primary; nothing is deleted and every merge can be undone.`,
	}

	cmd.AddCommand(dupesFindCmd())
	cmd.AddCommand(dupesListCmd())
	cmd.AddCommand(dupesConfirmCmd())
	cmd.AddCommand(dupesRejectCmd())
	cmd.AddCommand(dupesMergeCmd())
	cmd.AddCommand(dupesUnmergeCmd())

	return cmd
}

func dupesFindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find <transaction-id>",
		Short: "Score duplicate candidates for a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			candidates, err := a.matcher.FindCandidates(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				fmt.Println("no candidates found")
				return nil
			}
			for _, cand := range candidates {
				fmt.Printf("%.2f  %-8s  %s  %s  %s\n",
					cand.Confidence,
					model.TierForConfidence(cand.Confidence),
					cand.Transaction.ID,
					cand.Transaction.Date.Format(dateLayout),
					cand.Transaction.Description)
			}
			return nil
		},
	}
}

func dupesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <transaction-id>",
		Short: "List recorded matches for a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			matches, err := a.storage.ListMatchesForTransaction(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				fmt.Println("no matches recorded")
				return nil
			}
			for _, m := range matches {
				fmt.Printf("%s  %.2f  %-8s  %-9s  %s <-> %s\n",
					m.ID, m.Confidence, m.Tier, m.Status, m.PrimaryID, m.DuplicateID)
			}
			return nil
		},
	}
}

func dupesConfirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <match-id>",
		Short: "Confirm a match as a real duplicate",
		Args:  cobra.ExactArgs(1),
		RunE:  statusRunE(model.StatusConfirmed),
	}
}

func dupesRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <match-id>",
		Short: "Reject a match as a false positive",
		Args:  cobra.ExactArgs(1),
		RunE:  statusRunE(model.StatusRejected),
	}
}

func statusRunE(status model.MatchStatus) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.matcher.UpdateStatus(cmd.Context(), args[0], status); err != nil {
			return err
		}
		fmt.Printf("match %s is now %s\n", args[0], status)
		return nil
	}
}

func dupesMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <primary-id> <duplicate-id>",
		Short: "Merge a duplicate into its primary",
		Long: `Hide the duplicate transaction behind the primary. The duplicate stays
in the database and is restored exactly by 'dupes unmerge'.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.merger.Merge(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("merged %s into %s\n", args[1], args[0])
			return nil
		},
	}
}

func dupesUnmergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unmerge <transaction-id>",
		Short: "Restore a hidden duplicate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.merger.Unmerge(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("unmerged %s\n", args[0])
			return nil
		},
	}
}
