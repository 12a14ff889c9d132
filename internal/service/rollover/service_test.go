package rollover

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raspaplay/wallet-api/internal/domain"
	"github.com/raspaplay/wallet-api/internal/repository"
	"github.com/raspaplay/wallet-api/internal/settings"
	"github.com/raspaplay/wallet-api/internal/testutil"
)

func insertLedgerEntry(t *testing.T, db *sql.DB, accountID uuid.UUID, entryType domain.EntryType, amount, before int64) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO ledger_entries (id, account_id, entry_type, amount, balance_before, balance_after)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), accountID, entryType, amount, before, before+amount,
	)
	require.NoError(t, err)
}

func newTestService(db *sql.DB, multiplier decimal.Decimal) *Service {
	return NewService(
		repository.NewAccountRepository(db),
		repository.NewLedgerRepository(db),
		settings.Static(&domain.Settings{RolloverMultiplier: multiplier}),
		db,
	)
}

func TestService_RecomputeCorrectsDrift(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	// Two deposits totalling 15_000 but a stale requirement of zero, the
	// drift the sweep exists to repair.
	drifted := testutil.SeedAccount(t, db, "drifted", 15_000, nil)
	insertLedgerEntry(t, db, drifted.ID, domain.EntryTypeDeposit, 10_000, 0)
	insertLedgerEntry(t, db, drifted.ID, domain.EntryTypeDeposit, 5_000, 10_000)

	// Refunds and claims must not count toward the requirement.
	noisy := testutil.SeedAccount(t, db, "noisy", 8_000, nil)
	insertLedgerEntry(t, db, noisy.ID, domain.EntryTypeDeposit, 5_000, 0)
	insertLedgerEntry(t, db, noisy.ID, domain.EntryTypeWithdrawalRefund, 2_000, 5_000)
	insertLedgerEntry(t, db, noisy.ID, domain.EntryTypeCommissionClaim, 1_000, 7_000)

	correct := testutil.SeedAccount(t, db, "correct", 0, nil)

	svc := newTestService(db, decimal.NewFromInt(1))
	result, err := svc.Recompute(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 2, result.Corrected)
	assert.Zero(t, result.Failed)

	_, _, driftedReq := testutil.GetAccount(t, db, drifted.ID)
	_, _, noisyReq := testutil.GetAccount(t, db, noisy.ID)
	_, _, correctReq := testutil.GetAccount(t, db, correct.ID)
	assert.Equal(t, int64(15_000), driftedReq)
	assert.Equal(t, int64(5_000), noisyReq, "only DEPOSIT entries count")
	assert.Zero(t, correctReq)
}

func TestService_RecomputeIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.SeedAccount(t, db, "steady", 10_000, nil)
	insertLedgerEntry(t, db, account.ID, domain.EntryTypeDeposit, 10_000, 0)

	svc := newTestService(db, decimal.RequireFromString("2.0"))

	first, err := svc.Recompute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Corrected)
	assert.Equal(t, int64(20_000), first.TotalDiff)

	second, err := svc.Recompute(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Corrected, "an unchanged ledger rewrites nothing")
	assert.Zero(t, second.TotalDiff)

	_, _, requirement := testutil.GetAccount(t, db, account.ID)
	assert.Equal(t, int64(20_000), requirement)
}
