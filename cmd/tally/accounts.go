package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbellot/tally/internal/model"
)

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage the account tree",
		Long:  `Create, list, move and deactivate accounts in the hierarchical account tree.`,
	}

	// Subcommands
	cmd.AddCommand(accountsListCmd())
	cmd.AddCommand(accountsAddCmd())
	cmd.AddCommand(accountsMoveCmd())
	cmd.AddCommand(accountsDeactivateCmd())

	return cmd
}

func accountsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Long:  `List all accounts by full path.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			includeInactive, _ := cmd.Flags().GetBool("all")

			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			accounts, err := a.storage.ListAccounts(cmd.Context(), includeInactive)
			if err != nil {
				return err
			}
			for _, account := range accounts {
				marker := ""
				if !account.Active {
					marker = " (inactive)"
				}
				fmt.Printf("%-50s %-10s %s%s\n", account.FullPath, account.Type, account.Subtype, marker)
			}
			return nil
		},
	}
	cmd.Flags().Bool("all", false, "Include deactivated accounts")
	return cmd
}

func accountsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Create an account by path",
		Long: `Create an account by colon-delimited path, e.g. "Assets:Bank:Checking".
Missing intermediate accounts are created as categories of the same type.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountType, _ := cmd.Flags().GetString("type")
			subtype, _ := cmd.Flags().GetString("subtype")
			currency, _ := cmd.Flags().GetString("currency")
			notes, _ := cmd.Flags().GetString("notes")

			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			account, err := a.directory.Create(cmd.Context(), ledgerSpec(args[0], accountType, subtype, currency, notes))
			if err != nil {
				return err
			}
			fmt.Printf("created %s (%s)\n", account.FullPath, account.ID)
			return nil
		},
	}
	cmd.Flags().String("type", string(model.TypeAsset), "Account type (ASSET, LIABILITY, EQUITY, INCOME, EXPENSE)")
	cmd.Flags().String("subtype", "", "Account subtype (default CATEGORY)")
	cmd.Flags().String("currency", "", "Currency code (default from config)")
	cmd.Flags().String("notes", "", "Free-form notes")
	return cmd
}

func accountsMoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <path>",
		Short: "Rename or reparent an account",
		Long: `Rename an account and/or move it under a new parent. Cached paths of
the whole moved subtree are recomputed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			newName, _ := cmd.Flags().GetString("name")
			newParent, _ := cmd.Flags().GetString("parent")

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

			var parentID *string
			if newParent != "" {
				parent, err := a.directory.Resolve(ctx, newParent)
				if err != nil {
					return err
				}
				parentID = &parent.ID
			} else {
				parentID = account.ParentID
			}

			if err := a.directory.Move(ctx, account.ID, newName, parentID); err != nil {
				return err
			}

			moved, err := a.storage.GetAccount(ctx, account.ID)
			if err != nil {
				return err
			}
			fmt.Printf("moved to %s\n", moved.FullPath)
			return nil
		},
	}
	cmd.Flags().String("name", "", "New account name (default: keep current)")
	cmd.Flags().String("parent", "", "Path of the new parent account")
	return cmd
}

func accountsDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <path>",
		Short: "Soft-delete an account",
		Long:  `Deactivate an account. The row survives so history stays intact.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			account, err := a.directory.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := a.directory.Deactivate(cmd.Context(), account.ID); err != nil {
				return err
			}
			fmt.Printf("deactivated %s\n", account.FullPath)
			return nil
		},
	}
}
