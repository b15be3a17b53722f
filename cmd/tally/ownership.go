package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mbellot/tally/internal/common"
)

func ownershipCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ownership",
		Short: "Manage fractional account ownership",
		Long:  `Assign, remove and show per-user ownership shares of accounts.`,
	}

	cmd.AddCommand(ownershipSetCmd())
	cmd.AddCommand(ownershipRemoveCmd())
	cmd.AddCommand(ownershipShowCmd())

	return cmd
}

func ownershipSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <account-path> <user> <percentage>",
		Short: "Set a user's share of an account",
		Long: `Assign a fractional share, given as a decimal in (0, 1]. The shares
of one account may not exceed 100%.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			percentage, err := decimal.NewFromString(args[2])
			if err != nil {
				return fmt.Errorf("invalid percentage %q: %w", args[2], err)
			}

			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			account, err := a.directory.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			user, err := a.storage.GetUserByName(ctx, args[1])
			if err != nil {
				return err
			}

			err = common.WithRetry(ctx, func() error {
				return a.ownership.Set(ctx, account.ID, user.ID, percentage)
			}, common.RetryOptions{})
			if err != nil {
				return err
			}
			fmt.Printf("%s owns %s%% of %s\n", user.Name, percentage.Mul(decimal.NewFromInt(100)), account.FullPath)
			return nil
		},
	}
}

func ownershipRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <account-path> <user>",
		Short: "Remove a user's share of an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			account, err := a.directory.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			user, err := a.storage.GetUserByName(ctx, args[1])
			if err != nil {
				return err
			}

			if err := a.ownership.Remove(ctx, account.ID, user.ID); err != nil {
				return err
			}
			fmt.Printf("removed %s from %s\n", user.Name, account.FullPath)
			return nil
		},
	}
}

func ownershipShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <account-path>",
		Short: "Show the ownership shares of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			account, err := a.directory.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			shares, err := a.ownership.Shares(ctx, account.ID)
			if err != nil {
				return err
			}

			if len(shares) == 0 {
				fmt.Printf("%s has no ownership shares\n", account.FullPath)
				return nil
			}
			for _, share := range shares {
				user, err := a.storage.GetUser(ctx, share.UserID)
				if err != nil {
					return err
				}
				fmt.Printf("%-20s %s%%\n", user.Name, share.Percentage.Mul(decimal.NewFromInt(100)))
			}
			return nil
		},
	}
}
