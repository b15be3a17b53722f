package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mbellot/tally/internal/model"
)

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage ledger users",
		Long:  `Create the users that can hold ownership shares of accounts.`,
	}

	cmd.AddCommand(usersAddCmd())

	return cmd
}

func usersAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			displayName, _ := cmd.Flags().GetString("display-name")
			if displayName == "" {
				displayName = args[0]
			}

			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			user := &model.User{
				ID:          uuid.NewString(),
				Name:        args[0],
				DisplayName: displayName,
				Active:      true,
			}
			if err := a.storage.CreateUser(cmd.Context(), user); err != nil {
				return err
			}
			fmt.Printf("created user %s (%s)\n", user.Name, user.ID)
			return nil
		},
	}
	cmd.Flags().String("display-name", "", "Display name (default: same as name)")
	return cmd
}
