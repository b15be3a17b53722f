package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mbellot/tally/internal/ledger"
	"github.com/mbellot/tally/internal/model"
)

const dateLayout = "2006-01-02"

func postCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post a balanced transaction",
		Long: `Post a transaction from entry legs given as PATH=AMOUNT pairs. The
amounts must sum to exactly zero, e.g.:

  tally post --date 2026-03-01 --desc "Salary" \
    --entry "Assets:Checking=3000.00" \
    --entry "Income:Salary=-3000.00"`,
		RunE: runPost,
	}

	cmd.Flags().String("date", "", "Transaction date (YYYY-MM-DD, default today)")
	cmd.Flags().String("desc", "", "Transaction description")
	cmd.Flags().String("ref", "", "External reference")
	cmd.Flags().StringArray("entry", nil, "Entry leg as PATH=AMOUNT (repeatable)")
	cmd.Flags().Bool("no-create", false, "Fail instead of creating missing accounts")
	_ = cmd.MarkFlagRequired("entry")

	return cmd
}

func runPost(cmd *cobra.Command, _ []string) error {
	dateStr, _ := cmd.Flags().GetString("date")
	desc, _ := cmd.Flags().GetString("desc")
	ref, _ := cmd.Flags().GetString("ref")
	rawEntries, _ := cmd.Flags().GetStringArray("entry")
	noCreate, _ := cmd.Flags().GetBool("no-create")

	date := time.Now()
	if dateStr != "" {
		var err error
		date, err = time.Parse(dateLayout, dateStr)
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", dateStr, err)
		}
	}

	entries := make([]ledger.EntryDraft, 0, len(rawEntries))
	for _, raw := range rawEntries {
		entry, err := parseEntry(raw)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}

	a, err := initApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	id, err := a.poster.Post(cmd.Context(), ledger.Draft{
		Date:        date,
		Description: desc,
		Reference:   ref,
		Entries:     entries,
		AutoCreate:  !noCreate,
	})
	if err != nil {
		return err
	}
	fmt.Printf("posted %s\n", id)
	return nil
}

// parseEntry splits a PATH=AMOUNT leg. The last = wins so account names
// containing = still parse.
func parseEntry(raw string) (ledger.EntryDraft, error) {
	idx := strings.LastIndex(raw, "=")
	if idx <= 0 || idx == len(raw)-1 {
		return ledger.EntryDraft{}, fmt.Errorf("invalid entry %q, want PATH=AMOUNT", raw)
	}
	amount, err := decimal.NewFromString(raw[idx+1:])
	if err != nil {
		return ledger.EntryDraft{}, fmt.Errorf("invalid amount in entry %q: %w", raw, err)
	}
	return ledger.EntryDraft{
		AccountPath: raw[:idx],
		Amount:      amount,
		Type:        model.TypeAsset,
	}, nil
}

func transferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer <from-path> <to-path> <amount>",
		Short: "Transfer between accounts",
		Long:  `Post a two-entry transfer from one account to another.`,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			dateStr, _ := cmd.Flags().GetString("date")
			desc, _ := cmd.Flags().GetString("desc")

			amount, err := decimal.NewFromString(args[2])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[2], err)
			}

			date := time.Now()
			if dateStr != "" {
				date, err = time.Parse(dateLayout, dateStr)
				if err != nil {
					return fmt.Errorf("invalid date %q: %w", dateStr, err)
				}
			}
			if desc == "" {
				desc = fmt.Sprintf("Transfer %s -> %s", args[0], args[1])
			}

			a, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			id, err := a.poster.Transfer(cmd.Context(), args[0], args[1], amount, date, desc)
			if err != nil {
				return err
			}
			fmt.Printf("posted %s\n", id)
			return nil
		},
	}
	cmd.Flags().String("date", "", "Transaction date (YYYY-MM-DD, default today)")
	cmd.Flags().String("desc", "", "Transaction description")
	return cmd
}
