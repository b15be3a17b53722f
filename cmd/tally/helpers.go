package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mbellot/tally/internal/config"
	"github.com/mbellot/tally/internal/dedupe"
	"github.com/mbellot/tally/internal/ledger"
	"github.com/mbellot/tally/internal/model"
	"github.com/mbellot/tally/internal/service"
	"github.com/mbellot/tally/internal/storage"
)

// app bundles the engines behind the CLI commands.
type app struct {
	cfg       config.Config
	storage   service.Storage
	directory *ledger.Directory
	ownership *ledger.Ownership
	poster    *ledger.Poster
	matcher   *dedupe.Matcher
	merger    *dedupe.Merger
}

// initApp opens storage, runs migrations and wires the engines.
func initApp(ctx context.Context) (*app, error) {
	cfg := config.Load()

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	directory := ledger.NewDirectory(store, cfg.DefaultOwner, cfg.Currency)
	return &app{
		cfg:       cfg,
		storage:   store,
		directory: directory,
		ownership: ledger.NewOwnership(store),
		poster:    ledger.NewPoster(store, directory),
		matcher:   dedupe.NewMatcher(store, cfg.Matcher),
		merger:    dedupe.NewMerger(store),
	}, nil
}

func (a *app) close() {
	_ = a.storage.Close()
}

// ledgerSpec builds an AccountSpec from CLI flags, upper-casing the
// type and subtype names.
func ledgerSpec(path, accountType, subtype, currency, notes string) ledger.AccountSpec {
	return ledger.AccountSpec{
		Path:     path,
		Type:     model.AccountType(strings.ToUpper(accountType)),
		Subtype:  model.AccountSubtype(strings.ToUpper(subtype)),
		Currency: currency,
		Notes:    notes,
	}
}
