package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbellot/tally/internal/common"
	"github.com/mbellot/tally/internal/importer"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import bank exports",
		Long:  `Import transactions from bank export files into the ledger.`,
	}

	cmd.AddCommand(importCSVCmd())

	return cmd
}

func importCSVCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csv <file>",
		Short: "Import a CSV bank export",
		Long: `Import a CSV file as one batch of balanced transactions. Each row
becomes a two-entry transaction between the account and the offset
account. Re-importing the same file is refused by content hash, and
duplicate detection runs over the new batch against earlier imports.`,
		Args: cobra.ExactArgs(1),
		RunE: runImportCSV,
	}

	cmd.Flags().String("source", "", "Import source label, e.g. bank name")
	cmd.Flags().String("account", "", "Account path the file describes")
	cmd.Flags().String("offset", "Expenses:Uncategorized", "Offset account path for the balancing leg")
	cmd.Flags().String("date-format", "2006-01-02", "Go time layout of the date column")
	cmd.Flags().Int("date-col", 1, "Date column (1-based)")
	cmd.Flags().Int("desc-col", 2, "Description column (1-based)")
	cmd.Flags().Int("amount-col", 3, "Amount column (1-based)")
	cmd.Flags().Int("ref-col", 0, "Reference column (1-based, 0 = none)")
	cmd.Flags().Bool("header", true, "Skip the first row as a header")
	cmd.Flags().Bool("auto-confirm", false, "Auto-confirm exact duplicate matches")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func runImportCSV(cmd *cobra.Command, args []string) error {
	source, _ := cmd.Flags().GetString("source")
	account, _ := cmd.Flags().GetString("account")
	offset, _ := cmd.Flags().GetString("offset")
	dateFormat, _ := cmd.Flags().GetString("date-format")
	dateCol, _ := cmd.Flags().GetInt("date-col")
	descCol, _ := cmd.Flags().GetInt("desc-col")
	amountCol, _ := cmd.Flags().GetInt("amount-col")
	refCol, _ := cmd.Flags().GetInt("ref-col")
	header, _ := cmd.Flags().GetBool("header")
	autoConfirm, _ := cmd.Flags().GetBool("auto-confirm")

	a, err := initApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	imp, err := importer.NewCSVImporter(a.storage, a.poster, a.matcher, importer.CSVOptions{
		Source:            source,
		AccountPath:       account,
		OffsetPath:        offset,
		DateFormat:        dateFormat,
		DateColumn:        dateCol,
		DescriptionColumn: descCol,
		AmountColumn:      amountCol,
		ReferenceColumn:   refCol,
		HasHeader:         header,
		AutoConfirmExact:  autoConfirm,
	})
	if err != nil {
		return err
	}

	result, err := imp.ImportFile(cmd.Context(), args[0])
	if errors.Is(err, common.ErrFileAlreadyImported) {
		return common.NewUserError("this file was already imported; identical content is skipped by hash", err)
	}
	if err != nil {
		return err
	}

	fmt.Printf("imported %d transactions as batch %s\n", result.Imported, result.BatchID)
	if len(result.Matches) > 0 {
		fmt.Printf("%d potential duplicates found; review with 'tally dupes list'\n", len(result.Matches))
	}
	return nil
}
