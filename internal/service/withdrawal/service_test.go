package withdrawal

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raspaplay/wallet-api/internal/domain"
	"github.com/raspaplay/wallet-api/internal/gateway"
	"github.com/raspaplay/wallet-api/internal/repository"
	"github.com/raspaplay/wallet-api/internal/settings"
	"github.com/raspaplay/wallet-api/internal/testutil"
)

type fakeTransferGateway struct {
	err        error
	transferID string
	calls      int
}

func (f *fakeTransferGateway) CreateTransfer(_ context.Context, _ gateway.TransferRequest) (*gateway.TransferResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &gateway.TransferResponse{TransferID: f.transferID, Status: "PROCESSING"}, nil
}

func (f *fakeTransferGateway) PublicIP(context.Context) (string, error) {
	return "203.0.113.10", nil
}

type noopAudit struct{}

func (noopAudit) RecordBestEffort(context.Context, string, string, string, any) {}

func newTestService(db *sql.DB, gw *fakeTransferGateway) *Service {
	return NewService(
		repository.NewWithdrawalRepository(db),
		repository.NewAccountRepository(db),
		repository.NewLedgerRepository(db),
		noopAudit{},
		gw,
		settings.Static(&domain.Settings{MinWithdrawal: 3_000}),
		db,
	)
}

func validRequest(accountID uuid.UUID, amount int64) CreateRequest {
	return CreateRequest{
		AccountID:  accountID,
		Amount:     amount,
		PixKey:     "12345678901",
		PixKeyType: domain.PixKeyTypeCPF,
	}
}

func withdrawalStatus(t *testing.T, db *sql.DB, id uuid.UUID) domain.WithdrawalStatus {
	t.Helper()
	var status domain.WithdrawalStatus
	require.NoError(t, db.QueryRow(`SELECT status FROM withdrawals WHERE id = $1`, id).Scan(&status))
	return status
}

func TestService_CreateDebitsUpfront(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.SeedAccount(t, db, "withdrawer", 10_000, nil)
	svc := newTestService(db, &fakeTransferGateway{})

	w, err := svc.Create(ctx, validRequest(account.ID, 4_000))
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusPending, w.Status)

	balance, _, _ := testutil.GetAccount(t, db, account.ID)
	assert.Equal(t, int64(6_000), balance, "debit happens at request time")
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, db, w.ID, domain.EntryTypeWithdrawalRequest))
}

func TestService_CreateInsufficientFunds(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.SeedAccount(t, db, "broke", 3_500, nil)
	svc := newTestService(db, &fakeTransferGateway{})

	_, err := svc.Create(ctx, validRequest(account.ID, 4_000))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	balance, _, _ := testutil.GetAccount(t, db, account.ID)
	assert.Equal(t, int64(3_500), balance)
}

func TestService_CreateRolloverNotMet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.SeedAccount(t, db, "gambler", 10_000, nil)
	_, err := db.Exec(
		`UPDATE accounts SET rollover_requirement = 10000, rollover_progress = 2500 WHERE id = $1`,
		account.ID,
	)
	require.NoError(t, err)

	svc := newTestService(db, &fakeTransferGateway{})
	_, err = svc.Create(ctx, validRequest(account.ID, 4_000))
	assert.ErrorIs(t, err, domain.ErrRolloverNotMet)
}

func TestService_CreateInvalidPixKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.SeedAccount(t, db, "typo", 10_000, nil)
	svc := newTestService(db, &fakeTransferGateway{})

	req := validRequest(account.ID, 4_000)
	req.PixKey = "not-a-cpf"
	_, err := svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidPixKey)
}

func TestService_CancelRefundsOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.SeedAccount(t, db, "canceller", 10_000, nil)
	svc := newTestService(db, &fakeTransferGateway{})

	w, err := svc.Create(ctx, validRequest(account.ID, 4_000))
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, w.ID, account.ID)
	require.NoError(t, err)

	balance, _, _ := testutil.GetAccount(t, db, account.ID)
	assert.Equal(t, int64(10_000), balance, "cancel restores the exact amount")
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, db, w.ID, domain.EntryTypeWithdrawalRefund))

	_, err = svc.Cancel(ctx, w.ID, account.ID)
	assert.ErrorIs(t, err, domain.ErrWithdrawalNotPending)

	balance, _, _ = testutil.GetAccount(t, db, account.ID)
	assert.Equal(t, int64(10_000), balance)
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, db, w.ID, domain.EntryTypeWithdrawalRefund))
}

func TestService_CancelWrongOwner(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	owner := testutil.SeedAccount(t, db, "owner", 10_000, nil)
	other := testutil.SeedAccount(t, db, "other", 0, nil)
	svc := newTestService(db, &fakeTransferGateway{})

	w, err := svc.Create(ctx, validRequest(owner.ID, 4_000))
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, w.ID, other.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_RejectRefunds(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.SeedAccount(t, db, "rejected", 10_000, nil)
	svc := newTestService(db, &fakeTransferGateway{})

	w, err := svc.Create(ctx, validRequest(account.ID, 4_000))
	require.NoError(t, err)

	_, err = svc.Reject(ctx, w.ID, "document mismatch")
	require.NoError(t, err)

	assert.Equal(t, domain.WithdrawalStatusRejected, withdrawalStatus(t, db, w.ID))
	balance, _, _ := testutil.GetAccount(t, db, account.ID)
	assert.Equal(t, int64(10_000), balance)
}

func TestService_ApproveGatewayRejectionRefundsOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.SeedAccount(t, db, "unlucky", 10_000, nil)
	gw := &fakeTransferGateway{err: &gateway.Error{StatusCode: 422, Body: "invalid pix key"}}
	svc := newTestService(db, gw)

	w, err := svc.Create(ctx, validRequest(account.ID, 4_000))
	require.NoError(t, err)

	result, err := svc.Approve(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusFailed, result.Status)

	balance, _, _ := testutil.GetAccount(t, db, account.ID)
	assert.Equal(t, int64(10_000), balance)
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, db, w.ID, domain.EntryTypeWithdrawalRefund))
}

func TestService_PayoutLifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.SeedAccount(t, db, "payee", 10_000, nil)
	gw := &fakeTransferGateway{transferID: "tr-123"}
	svc := newTestService(db, gw)

	w, err := svc.Create(ctx, validRequest(account.ID, 4_000))
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusApproved, approved.Status)
	require.NotNil(t, approved.GatewayTransferID)
	assert.Equal(t, "tr-123", *approved.GatewayTransferID)

	outcome, err := svc.HandlePayoutEvent(ctx, w.ID, "TRANSFER_COMPLETED")
	require.NoError(t, err)
	assert.Equal(t, PayoutOutcomeCompleted, outcome)
	assert.Equal(t, domain.WithdrawalStatusCompleted, withdrawalStatus(t, db, w.ID))

	// Completion is an audit marker, not a balance change.
	balance, _, _ := testutil.GetAccount(t, db, account.ID)
	assert.Equal(t, int64(6_000), balance)
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, db, w.ID, domain.EntryTypeWithdrawalComplete))

	// Late or duplicated events bounce off the terminal state.
	outcome, err = svc.HandlePayoutEvent(ctx, w.ID, "TRANSFER_COMPLETED")
	require.NoError(t, err)
	assert.Equal(t, PayoutOutcomeIgnored, outcome)

	outcome, err = svc.HandlePayoutEvent(ctx, w.ID, "TRANSFER_FAILED")
	require.NoError(t, err)
	assert.Equal(t, PayoutOutcomeIgnored, outcome)

	balance, _, _ = testutil.GetAccount(t, db, account.ID)
	assert.Equal(t, int64(6_000), balance)
}

func TestService_PayoutFailureRefunds(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.SeedAccount(t, db, "returned", 10_000, nil)
	gw := &fakeTransferGateway{transferID: "tr-456"}
	svc := newTestService(db, gw)

	w, err := svc.Create(ctx, validRequest(account.ID, 4_000))
	require.NoError(t, err)
	_, err = svc.Approve(ctx, w.ID)
	require.NoError(t, err)

	outcome, err := svc.HandlePayoutEvent(ctx, w.ID, "TRANSFER_RETURNED")
	require.NoError(t, err)
	assert.Equal(t, PayoutOutcomeFailed, outcome)
	assert.Equal(t, domain.WithdrawalStatusFailed, withdrawalStatus(t, db, w.ID))

	balance, _, _ := testutil.GetAccount(t, db, account.ID)
	assert.Equal(t, int64(10_000), balance)

	// Replay after the refund is a no-op.
	outcome, err = svc.HandlePayoutEvent(ctx, w.ID, "TRANSFER_RETURNED")
	require.NoError(t, err)
	assert.Equal(t, PayoutOutcomeIgnored, outcome)

	balance, _, _ = testutil.GetAccount(t, db, account.ID)
	assert.Equal(t, int64(10_000), balance)
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, db, w.ID, domain.EntryTypeWithdrawalRefund))
}

func TestService_PayoutUnknownEventAnnotates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.SeedAccount(t, db, "inflight", 10_000, nil)
	gw := &fakeTransferGateway{transferID: "tr-789"}
	svc := newTestService(db, gw)

	w, err := svc.Create(ctx, validRequest(account.ID, 4_000))
	require.NoError(t, err)
	_, err = svc.Approve(ctx, w.ID)
	require.NoError(t, err)

	outcome, err := svc.HandlePayoutEvent(ctx, w.ID, "TRANSFER_PROCESSING")
	require.NoError(t, err)
	assert.Equal(t, PayoutOutcomeAnnotated, outcome)

	var gatewayStatus sql.NullString
	require.NoError(t, db.QueryRow(`SELECT gateway_status FROM withdrawals WHERE id = $1`, w.ID).Scan(&gatewayStatus))
	assert.Equal(t, "TRANSFER_PROCESSING", gatewayStatus.String)
	assert.Equal(t, domain.WithdrawalStatusApproved, withdrawalStatus(t, db, w.ID))
}
