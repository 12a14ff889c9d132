package commission

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raspaplay/wallet-api/internal/domain"
	"github.com/raspaplay/wallet-api/internal/repository"
	"github.com/raspaplay/wallet-api/internal/settings"
	"github.com/raspaplay/wallet-api/internal/testutil"
)

func newTestEngine(db *sql.DB, plan *domain.Settings) *Engine {
	return NewEngine(
		repository.NewAccountRepository(db),
		repository.NewCommissionRepository(db),
		settings.Static(plan),
		db,
	)
}

func defaultPlan() *domain.Settings {
	return &domain.Settings{
		Level1Rate: decimal.RequireFromString("0.10"),
		Level2Rate: decimal.RequireFromString("0.05"),
		Level3Rate: decimal.RequireFromString("0.02"),
	}
}

func TestEngine_CreditsThreeLevels(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	root := testutil.SeedAccount(t, db, "root", 0, nil)
	mid := testutil.SeedAccount(t, db, "mid", 0, &root.ID)
	leaf := testutil.SeedAccount(t, db, "leaf", 0, &mid.ID)
	depositor := testutil.SeedAccount(t, db, "depositor", 0, &leaf.ID)

	deposit := testutil.SeedDeposit(t, db, depositor.ID, 10_000, domain.DepositStatusCompleted)

	engine := newTestEngine(db, defaultPlan())
	require.NoError(t, engine.Credit(ctx, deposit))

	_, leafCommission, _ := testutil.GetAccount(t, db, leaf.ID)
	_, midCommission, _ := testutil.GetAccount(t, db, mid.ID)
	_, rootCommission, _ := testutil.GetAccount(t, db, root.ID)

	assert.Equal(t, int64(1000), leafCommission, "level 1 gets 10%")
	assert.Equal(t, int64(500), midCommission, "level 2 gets 5%")
	assert.Equal(t, int64(200), rootCommission, "level 3 gets 2%")
	assert.Equal(t, 3, testutil.CountCommissions(t, db, deposit.ID))
}

func TestEngine_ReplayCreditsOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	affiliate := testutil.SeedAccount(t, db, "affiliate", 0, nil)
	depositor := testutil.SeedAccount(t, db, "depositor", 0, &affiliate.ID)
	deposit := testutil.SeedDeposit(t, db, depositor.ID, 5_000, domain.DepositStatusCompleted)

	engine := newTestEngine(db, defaultPlan())
	for range 3 {
		require.NoError(t, engine.Credit(ctx, deposit))
	}

	_, commissionBalance, _ := testutil.GetAccount(t, db, affiliate.ID)
	assert.Equal(t, int64(500), commissionBalance, "replays must not double-credit")
	assert.Equal(t, 1, testutil.CountCommissions(t, db, deposit.ID))
}

func TestEngine_ZeroRateStillRecords(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	root := testutil.SeedAccount(t, db, "root", 0, nil)
	depositor := testutil.SeedAccount(t, db, "depositor", 0, &root.ID)
	deposit := testutil.SeedDeposit(t, db, depositor.ID, 10_000, domain.DepositStatusCompleted)

	plan := &domain.Settings{
		Level1Rate: decimal.Zero,
		Level2Rate: decimal.RequireFromString("0.05"),
		Level3Rate: decimal.RequireFromString("0.02"),
	}
	engine := newTestEngine(db, plan)
	require.NoError(t, engine.Credit(ctx, deposit))

	_, commissionBalance, _ := testutil.GetAccount(t, db, root.ID)
	assert.Zero(t, commissionBalance)
	assert.Equal(t, 1, testutil.CountCommissions(t, db, deposit.ID), "zero-rate level still leaves a record")

	var earned int64
	require.NoError(t, db.QueryRow(
		`SELECT commission_earned FROM commissions WHERE deposit_id = $1`, deposit.ID,
	).Scan(&earned))
	assert.Zero(t, earned)
}

func TestEngine_OrganicDepositorCreditsNothing(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	depositor := testutil.SeedAccount(t, db, "organic", 0, nil)
	deposit := testutil.SeedDeposit(t, db, depositor.ID, 10_000, domain.DepositStatusCompleted)

	engine := newTestEngine(db, defaultPlan())
	require.NoError(t, engine.Credit(ctx, deposit))

	assert.Zero(t, testutil.CountCommissions(t, db, deposit.ID))
}

func TestEngine_RateSnapshotAtCreditingTime(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	affiliate := testutil.SeedAccount(t, db, "affiliate", 0, nil)
	depositor := testutil.SeedAccount(t, db, "depositor", 0, &affiliate.ID)
	deposit := testutil.SeedDeposit(t, db, depositor.ID, 10_000, domain.DepositStatusCompleted)

	plan := &domain.Settings{
		Level1Rate: decimal.RequireFromString("0.20"),
		Level2Rate: decimal.Zero,
		Level3Rate: decimal.Zero,
	}
	engine := newTestEngine(db, plan)
	require.NoError(t, engine.Credit(ctx, deposit))

	var rate decimal.Decimal
	require.NoError(t, db.QueryRow(
		`SELECT commission_rate FROM commissions WHERE deposit_id = $1 AND affiliate_id = $2`,
		deposit.ID, affiliate.ID,
	).Scan(&rate))
	assert.True(t, rate.Equal(decimal.RequireFromString("0.20")), "record stores the rate used, got %s", rate)

	_, commissionBalance, _ := testutil.GetAccount(t, db, affiliate.ID)
	assert.Equal(t, int64(2000), commissionBalance)
}
