package ledger

import (
	"context"
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/coinpilot/internal/domain"
)

func setupHoldingsDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE holdings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user TEXT NOT NULL,
			symbol TEXT NOT NULL,
			category TEXT NOT NULL,
			idx INTEGER NOT NULL,
			UNIQUE (user, symbol, category)
		)
	`)
	require.NoError(t, err)
	return db
}

func TestRepository_ReplaceAndFetch(t *testing.T) {
	repo := NewRepository(setupHoldingsDB(t), zerolog.Nop())
	ctx := context.Background()

	items := []domain.HoldingLedgerEntry{
		{User: "user1", Symbol: "BTC", Category: domain.CategoryCoinMajor, Index: 0},
		{User: "user1", Symbol: "ETH", Category: domain.CategoryCoinMajor, Index: 1},
	}
	require.NoError(t, repo.ReplaceHoldingsForUser(ctx, "user1", items))

	fetched, err := repo.FetchHoldingsByUser(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, items, fetched)
}

func TestRepository_ReplaceIsFullReplacement(t *testing.T) {
	repo := NewRepository(setupHoldingsDB(t), zerolog.Nop())
	ctx := context.Background()

	first := []domain.HoldingLedgerEntry{
		{User: "user1", Symbol: "BTC", Category: domain.CategoryCoinMajor, Index: 0},
		{User: "user1", Symbol: "ETH", Category: domain.CategoryCoinMajor, Index: 1},
	}
	require.NoError(t, repo.ReplaceHoldingsForUser(ctx, "user1", first))

	second := []domain.HoldingLedgerEntry{
		{User: "user1", Symbol: "SOL", Category: domain.CategoryCoinMinor, Index: 0},
	}
	require.NoError(t, repo.ReplaceHoldingsForUser(ctx, "user1", second))

	fetched, err := repo.FetchHoldingsByUser(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, second, fetched)
}

func TestRepository_ReplaceScopedToUser(t *testing.T) {
	repo := NewRepository(setupHoldingsDB(t), zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, repo.ReplaceHoldingsForUser(ctx, "user1", []domain.HoldingLedgerEntry{
		{User: "user1", Symbol: "BTC", Category: domain.CategoryCoinMajor, Index: 0},
	}))
	require.NoError(t, repo.ReplaceHoldingsForUser(ctx, "user2", []domain.HoldingLedgerEntry{
		{User: "user2", Symbol: "ETH", Category: domain.CategoryCoinMajor, Index: 0},
	}))

	// Emptying user1's ledger must not touch user2's rows
	require.NoError(t, repo.ReplaceHoldingsForUser(ctx, "user1", nil))

	user1, err := repo.FetchHoldingsByUser(ctx, "user1")
	require.NoError(t, err)
	assert.Empty(t, user1)

	user2, err := repo.FetchHoldingsByUser(ctx, "user2")
	require.NoError(t, err)
	require.Len(t, user2, 1)
	assert.Equal(t, "ETH", user2[0].Symbol)
}

func TestRepository_FetchOrderedByIndex(t *testing.T) {
	repo := NewRepository(setupHoldingsDB(t), zerolog.Nop())
	ctx := context.Background()

	items := []domain.HoldingLedgerEntry{
		{User: "user1", Symbol: "C", Category: domain.CategoryOther, Index: 2},
		{User: "user1", Symbol: "A", Category: domain.CategoryOther, Index: 0},
		{User: "user1", Symbol: "B", Category: domain.CategoryOther, Index: 1},
	}
	require.NoError(t, repo.ReplaceHoldingsForUser(ctx, "user1", items))

	fetched, err := repo.FetchHoldingsByUser(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, fetched, 3)
	assert.Equal(t, "A", fetched[0].Symbol)
	assert.Equal(t, "B", fetched[1].Symbol)
	assert.Equal(t, "C", fetched[2].Symbol)
}
