package account

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raspaplay/wallet-api/internal/auth"
	"github.com/raspaplay/wallet-api/internal/domain"
	"github.com/raspaplay/wallet-api/internal/repository"
	"github.com/raspaplay/wallet-api/internal/testutil"
)

const testJWTSecret = "test-secret"

func newTestService(db *sql.DB) *Service {
	return NewService(
		repository.NewAccountRepository(db),
		repository.NewLedgerRepository(db),
		db,
		testJWTSecret,
		time.Hour,
	)
}

func TestService_RegisterWithReferral(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	referrer := testutil.SeedAccount(t, db, "referrer", 0, nil)
	svc := newTestService(db)

	acc, err := svc.Register(ctx, RegisterRequest{
		Email:        "new@test.local",
		Password:     "password123",
		Name:         "New Player",
		CPF:          "52998224725",
		ReferralCode: referrer.ReferralCode,
	})
	require.NoError(t, err)
	require.NotNil(t, acc.ReferredBy)
	assert.Equal(t, referrer.ID, *acc.ReferredBy)
	assert.NotEmpty(t, acc.ReferralCode)
	assert.NotEqual(t, referrer.ReferralCode, acc.ReferralCode)
}

func TestService_RegisterUnknownReferralCode(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	svc := newTestService(db)
	_, err := svc.Register(ctx, RegisterRequest{
		Email:        "new@test.local",
		Password:     "password123",
		Name:         "New Player",
		CPF:          "52998224725",
		ReferralCode: "NOSUCHCODE",
	})
	assert.ErrorIs(t, err, domain.ErrReferralCodeNotFound)
}

func TestService_RegisterDuplicateEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	svc := newTestService(db)
	req := RegisterRequest{
		Email:    "dup@test.local",
		Password: "password123",
		Name:     "First",
		CPF:      "52998224725",
	}
	_, err := svc.Register(ctx, req)
	require.NoError(t, err)

	req.Name = "Second"
	_, err = svc.Register(ctx, req)
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestService_Login(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	svc := newTestService(db)
	registered, err := svc.Register(ctx, RegisterRequest{
		Email:    "login@test.local",
		Password: "password123",
		Name:     "Login Test",
		CPF:      "52998224725",
	})
	require.NoError(t, err)

	token, acc, err := svc.Login(ctx, "login@test.local", "password123")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, acc.ID)

	claims, err := auth.ValidateToken(token, testJWTSecret)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, claims.AccountID)
	assert.Equal(t, domain.RoleUser, claims.Role)

	_, _, err = svc.Login(ctx, "login@test.local", "wrong-password")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "ghost@test.local", "password123")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestService_ClaimCommission(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	account := testutil.SeedAccount(t, db, "claimer", 1_000, nil)
	_, err := db.Exec(`UPDATE accounts SET commission_balance = 2500 WHERE id = $1`, account.ID)
	require.NoError(t, err)

	svc := newTestService(db)
	claimed, err := svc.ClaimCommission(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2_500), claimed)

	balance, commissionBalance, _ := testutil.GetAccount(t, db, account.ID)
	assert.Equal(t, int64(3_500), balance)
	assert.Zero(t, commissionBalance)

	// Nothing left for a second claim.
	_, err = svc.ClaimCommission(ctx, account.ID)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)

	balance, _, _ = testutil.GetAccount(t, db, account.ID)
	assert.Equal(t, int64(3_500), balance)
}
