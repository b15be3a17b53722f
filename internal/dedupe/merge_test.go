package dedupe

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbellot/tally/internal/common"
	"github.com/mbellot/tally/internal/model"
	"github.com/mbellot/tally/internal/service"
	"github.com/mbellot/tally/internal/storage"
)

func setupMergePair(t *testing.T) (*Merger, *storage.SQLiteStorage) {
	t.Helper()
	store := newTestStorage(t)
	seedAccounts(t, store)
	seedTxn(t, store, txnSpec{id: "primary", description: "VIR SALAIRE", amount: "3000.00", source: "boursorama", date: day(10)})
	seedTxn(t, store, txnSpec{id: "duplicate", description: "vir salaire", amount: "3000.00", source: "fortuneo", date: day(10)})
	return NewMerger(store), store
}

func TestMergeHidesDuplicateAndConfirmsMatch(t *testing.T) {
	merger, store := setupMergePair(t)
	ctx := context.Background()

	matcher := NewMatcher(store, DefaultMatcherOptions())
	matchID, err := matcher.RecordMatch(ctx, "primary", "duplicate", 0.95, model.MatchCriteria{
		SameDate: true, SameAmount: true, TextSimilarity: 1, AmountDelta: decimal.Zero,
	})
	require.NoError(t, err)

	require.NoError(t, merger.Merge(ctx, "primary", "duplicate"))

	hidden, err := store.GetTransaction(ctx, "duplicate")
	require.NoError(t, err)
	assert.True(t, hidden.IsDuplicate)
	require.NotNil(t, hidden.MergedInto)
	assert.Equal(t, "primary", *hidden.MergedInto)

	match, err := store.GetMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, match.Status)

	// The duplicate disappears from default listings.
	visible, err := store.ListTransactions(ctx, service.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "primary", visible[0].Transaction.ID)
}

func TestMergeWithoutRecordedMatchCreatesManualOne(t *testing.T) {
	merger, store := setupMergePair(t)
	ctx := context.Background()

	require.NoError(t, merger.Merge(ctx, "primary", "duplicate"))

	matches, err := store.ListMatchesForTransaction(ctx, "duplicate")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Confidence, 1e-9)
	assert.Equal(t, model.TierExact, matches[0].Tier)
	assert.Equal(t, model.StatusConfirmed, matches[0].Status)
}

func TestMergeGuards(t *testing.T) {
	merger, store := setupMergePair(t)
	ctx := context.Background()

	assert.ErrorIs(t, merger.Merge(ctx, "primary", "primary"), common.ErrSelfMerge)

	require.NoError(t, merger.Merge(ctx, "primary", "duplicate"))

	// A hidden transaction cannot be merged again, on either side.
	assert.ErrorIs(t, merger.Merge(ctx, "primary", "duplicate"), common.ErrAlreadyMerged)
	seedTxn(t, store, txnSpec{id: "third", description: "VIR SALAIRE", amount: "3000.00", date: day(10)})
	assert.ErrorIs(t, merger.Merge(ctx, "duplicate", "third"), common.ErrAlreadyMerged)
}

func TestUnmergeRestoresExactly(t *testing.T) {
	merger, store := setupMergePair(t)
	ctx := context.Background()

	before, err := store.GetEntries(ctx, "duplicate")
	require.NoError(t, err)

	require.NoError(t, merger.Merge(ctx, "primary", "duplicate"))
	require.NoError(t, merger.Unmerge(ctx, "duplicate"))

	restored, err := store.GetTransaction(ctx, "duplicate")
	require.NoError(t, err)
	assert.False(t, restored.IsDuplicate)
	assert.Nil(t, restored.MergedInto)

	// Entries were never touched by the merge round trip.
	after, err := store.GetEntries(ctx, "duplicate")
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.True(t, before[i].Amount.Equal(after[i].Amount))
		assert.Equal(t, before[i].AccountID, after[i].AccountID)
	}

	// The confirmed match reopened for review.
	matches, err := store.ListMatchesForTransaction(ctx, "duplicate")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, model.StatusPending, matches[0].Status)

	// Both transactions are visible again.
	visible, err := store.ListTransactions(ctx, service.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, visible, 2)
}

func TestUnmergeRequiresHiddenTransaction(t *testing.T) {
	merger, _ := setupMergePair(t)

	err := merger.Unmerge(context.Background(), "primary")
	assert.ErrorIs(t, err, common.ErrNotMerged)
}

func TestMergeUnmergeMergeAgain(t *testing.T) {
	merger, store := setupMergePair(t)
	ctx := context.Background()

	require.NoError(t, merger.Merge(ctx, "primary", "duplicate"))
	require.NoError(t, merger.Unmerge(ctx, "duplicate"))
	require.NoError(t, merger.Merge(ctx, "primary", "duplicate"))

	hidden, err := store.GetTransaction(ctx, "duplicate")
	require.NoError(t, err)
	assert.True(t, hidden.IsDuplicate)

	// Still a single match row for the pair.
	matches, err := store.ListMatchesForTransaction(ctx, "duplicate")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}
