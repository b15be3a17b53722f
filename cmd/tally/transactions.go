package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbellot/tally/internal/service"
)

func transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List transactions",
		Long:  `List transactions with their entries, newest first.`,
		RunE:  runTransactions,
	}

	cmd.Flags().String("from", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "End date (YYYY-MM-DD)")
	cmd.Flags().String("source", "", "Filter by import source")
	cmd.Flags().String("batch", "", "Filter by import batch id")
	cmd.Flags().Int("limit", 50, "Maximum number of transactions")
	cmd.Flags().Bool("hidden", false, "Include merged duplicates")

	return cmd
}

func runTransactions(cmd *cobra.Command, _ []string) error {
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")
	source, _ := cmd.Flags().GetString("source")
	batch, _ := cmd.Flags().GetString("batch")
	limit, _ := cmd.Flags().GetInt("limit")
	hidden, _ := cmd.Flags().GetBool("hidden")

	filter := service.TransactionFilter{
		ImportSource:  source,
		ImportBatchID: batch,
		Limit:         limit,
		IncludeHidden: hidden,
	}
	if fromStr != "" {
		from, err := time.Parse(dateLayout, fromStr)
		if err != nil {
			return fmt.Errorf("invalid from date %q: %w", fromStr, err)
		}
		filter.StartDate = &from
	}
	if toStr != "" {
		to, err := time.Parse(dateLayout, toStr)
		if err != nil {
			return fmt.Errorf("invalid to date %q: %w", toStr, err)
		}
		filter.EndDate = &to
	}

	a, err := initApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	transactions, err := a.storage.ListTransactions(ctx, filter)
	if err != nil {
		return err
	}

	for _, txn := range transactions {
		marker := ""
		if txn.Transaction.IsDuplicate {
			marker = " [hidden]"
		}
		fmt.Printf("%s  %s  %s%s\n",
			txn.Transaction.Date.Format(dateLayout),
			txn.Transaction.ID,
			txn.Transaction.Description,
			marker)
		for _, entry := range txn.Entries {
			account, err := a.storage.GetAccount(ctx, entry.AccountID)
			if err != nil {
				return err
			}
			fmt.Printf("    %-50s %12s\n", account.FullPath, entry.Amount)
		}
	}
	return nil
}
