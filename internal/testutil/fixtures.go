package testutil

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/raspaplay/wallet-api/internal/domain"
)

var seedCounter int

// SeedAccount inserts an active account with the given balance. referredBy
// builds referral chains for commission tests; nil means organic signup.
func SeedAccount(t *testing.T, db *sql.DB, name string, balance int64, referredBy *uuid.UUID) *domain.Account {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	seedCounter++
	a := &domain.Account{
		ID:           uuid.New(),
		Email:        fmt.Sprintf("%s-%d@test.local", name, seedCounter),
		Name:         name,
		PasswordHash: string(hash),
		CPF:          fmt.Sprintf("%011d", seedCounter),
		Role:         domain.RoleUser,
		Status:       domain.AccountStatusActive,
		ReferralCode: fmt.Sprintf("REF%08d", seedCounter),
		ReferredBy:   referredBy,
		Balance:      balance,
		CreatedAt:    time.Now().UTC(),
	}

	var refBy any
	if a.ReferredBy != nil {
		refBy = *a.ReferredBy
	}
	_, err = db.Exec(
		`INSERT INTO accounts (id, email, name, password_hash, cpf, role, status, referral_code, referred_by, balance, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.Email, a.Name, a.PasswordHash, a.CPF, a.Role, a.Status, a.ReferralCode, refBy, a.Balance, a.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed account %s: %v", name, err)
	}
	return a
}

// SeedDeposit inserts a deposit in the given status.
func SeedDeposit(t *testing.T, db *sql.DB, accountID uuid.UUID, amount int64, status domain.DepositStatus) *domain.Deposit {
	t.Helper()

	d := &domain.Deposit{
		ID:         uuid.New(),
		AccountID:  accountID,
		Identifier: uuid.NewString(),
		Amount:     amount,
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO deposits (id, account_id, identifier, amount, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.AccountID, d.Identifier, d.Amount, d.Status, d.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed deposit: %v", err)
	}
	return d
}

// SetCommissionRates overwrites the commission plan in platform_settings.
func SetCommissionRates(t *testing.T, db *sql.DB, l1, l2, l3 decimal.Decimal) {
	t.Helper()
	_, err := db.Exec(
		`UPDATE platform_settings SET level1_rate = $1, level2_rate = $2, level3_rate = $3 WHERE id = 1`,
		l1, l2, l3,
	)
	if err != nil {
		t.Fatalf("set commission rates: %v", err)
	}
}

// SetRolloverMultiplier overwrites the rollover multiplier.
func SetRolloverMultiplier(t *testing.T, db *sql.DB, m decimal.Decimal) {
	t.Helper()
	if _, err := db.Exec(`UPDATE platform_settings SET rollover_multiplier = $1 WHERE id = 1`, m); err != nil {
		t.Fatalf("set rollover multiplier: %v", err)
	}
}

// SetMinimums overwrites the deposit and withdrawal floors.
func SetMinimums(t *testing.T, db *sql.DB, minDeposit, minWithdrawal int64) {
	t.Helper()
	if _, err := db.Exec(
		`UPDATE platform_settings SET min_deposit = $1, min_withdrawal = $2 WHERE id = 1`,
		minDeposit, minWithdrawal,
	); err != nil {
		t.Fatalf("set minimums: %v", err)
	}
}

func GetAccount(t *testing.T, db *sql.DB, accountID uuid.UUID) (balance, commissionBalance, rolloverRequirement int64) {
	t.Helper()
	err := db.QueryRow(
		`SELECT balance, commission_balance, rollover_requirement FROM accounts WHERE id = $1`,
		accountID,
	).Scan(&balance, &commissionBalance, &rolloverRequirement)
	if err != nil {
		t.Fatalf("get account %s: %v", accountID, err)
	}
	return balance, commissionBalance, rolloverRequirement
}

func CountLedgerEntries(t *testing.T, db *sql.DB, refID uuid.UUID, entryType domain.EntryType) int {
	t.Helper()
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM ledger_entries WHERE ref_id = $1 AND entry_type = $2`,
		refID, entryType,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count ledger entries: %v", err)
	}
	return count
}

func CountCommissions(t *testing.T, db *sql.DB, depositID uuid.UUID) int {
	t.Helper()
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM commissions WHERE deposit_id = $1`, depositID).Scan(&count); err != nil {
		t.Fatalf("count commissions: %v", err)
	}
	return count
}

// ReconstructBalance folds an account's ledger and checks the running
// balance transitions are contiguous. It returns the final balance.
func ReconstructBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) int64 {
	t.Helper()

	rows, err := db.Query(
		`SELECT amount, balance_before, balance_after FROM ledger_entries
		 WHERE account_id = $1 ORDER BY created_at, id`,
		accountID,
	)
	if err != nil {
		t.Fatalf("query ledger: %v", err)
	}
	defer rows.Close()

	var running int64
	first := true
	for rows.Next() {
		var amount, before, after int64
		if err := rows.Scan(&amount, &before, &after); err != nil {
			t.Fatalf("scan ledger row: %v", err)
		}
		if first {
			running = before
			first = false
		}
		if before != running {
			t.Fatalf("ledger gap: entry balance_before=%d, expected %d", before, running)
		}
		running = after
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("ledger rows: %v", err)
	}
	return running
}
