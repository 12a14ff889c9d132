package deposit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raspaplay/wallet-api/internal/domain"
	"github.com/raspaplay/wallet-api/internal/gateway"
	"github.com/raspaplay/wallet-api/internal/repository"
	"github.com/raspaplay/wallet-api/internal/settings"
	"github.com/raspaplay/wallet-api/internal/testutil"
)

type fakeChargeGateway struct {
	err   error
	calls int
}

func (f *fakeChargeGateway) CreateCharge(_ context.Context, req gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &gateway.ChargeResponse{
		TransactionID: uuid.NewString(),
		Identifier:    req.Identifier,
		PixCode:       "00020126pixcode",
		Status:        "PENDING",
	}, nil
}

type noopAudit struct{}

func (noopAudit) RecordBestEffort(context.Context, string, string, string, any) {}

func newTestService(db *sql.DB, gw *fakeChargeGateway, plan *domain.Settings) *Service {
	return NewService(
		repository.NewDepositRepository(db),
		repository.NewAccountRepository(db),
		repository.NewLedgerRepository(db),
		noopAudit{},
		gw,
		settings.Static(plan),
		db,
	)
}

func testPlan() *domain.Settings {
	return &domain.Settings{
		MinDeposit:         1_000,
		RolloverMultiplier: decimal.NewFromInt(1),
	}
}

func TestService_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.SeedAccount(t, db, "payer", 0, nil)
	gw := &fakeChargeGateway{}
	svc := newTestService(db, gw, testPlan())

	d, err := svc.Create(ctx, account.ID, 5_000)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusPending, d.Status)
	assert.NotEmpty(t, d.Identifier)
	require.NotNil(t, d.PixCode)
	assert.Equal(t, 1, gw.calls)
}

func TestService_CreateBelowMinimum(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.SeedAccount(t, db, "payer", 0, nil)
	svc := newTestService(db, &fakeChargeGateway{}, testPlan())

	_, err := svc.Create(ctx, account.ID, 500)
	assert.ErrorIs(t, err, domain.ErrAmountBelowMinimum)
}

func TestService_CreateGatewayFailureMarksFailed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.SeedAccount(t, db, "payer", 0, nil)
	gw := &fakeChargeGateway{err: errors.New("gateway down")}
	svc := newTestService(db, gw, testPlan())

	_, err := svc.Create(ctx, account.ID, 5_000)
	require.Error(t, err)

	var status string
	require.NoError(t, db.QueryRow(
		`SELECT status FROM deposits WHERE account_id = $1`, account.ID,
	).Scan(&status))
	assert.Equal(t, string(domain.DepositStatusFailed), status)
}

func TestService_ConfirmCreditsOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.SeedAccount(t, db, "payer", 0, nil)
	deposit := testutil.SeedDeposit(t, db, account.ID, 10_000, domain.DepositStatusPending)

	plan := testPlan()
	plan.RolloverMultiplier = decimal.RequireFromString("1.5")
	svc := newTestService(db, &fakeChargeGateway{}, plan)

	paidAt := time.Now().UTC()
	result, err := svc.Confirm(ctx, deposit.Identifier, paidAt)
	require.NoError(t, err)
	assert.False(t, result.AlreadyCompleted)

	balance, _, rollover := testutil.GetAccount(t, db, account.ID)
	assert.Equal(t, int64(10_000), balance)
	assert.Equal(t, int64(15_000), rollover, "requirement rises by amount x multiplier")
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, db, deposit.ID, domain.EntryTypeDeposit))

	// Redeliveries must not credit again.
	for range 3 {
		result, err = svc.Confirm(ctx, deposit.Identifier, paidAt)
		require.NoError(t, err)
		assert.True(t, result.AlreadyCompleted)
	}

	balance, _, rollover = testutil.GetAccount(t, db, account.ID)
	assert.Equal(t, int64(10_000), balance)
	assert.Equal(t, int64(15_000), rollover)
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, db, deposit.ID, domain.EntryTypeDeposit))
	assert.Equal(t, int64(10_000), testutil.ReconstructBalance(t, db, account.ID))
}

func TestService_ConfirmUnknownIdentifier(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	svc := newTestService(db, &fakeChargeGateway{}, testPlan())

	_, err := svc.Confirm(ctx, "no-such-identifier", time.Now().UTC())
	assert.True(t, IsNotFound(err))
}
