package account

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/raspaplay/wallet-api/internal/auth"
	"github.com/raspaplay/wallet-api/internal/domain"
	"github.com/raspaplay/wallet-api/internal/logging"
)

type accountRepo interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByReferralCode(ctx context.Context, code string) (*domain.Account, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	UpdateBalances(ctx context.Context, tx *sql.Tx, a *domain.Account, newVersion int64) error
}

type ledgerRepo interface {
	Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
	GetByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error)
}

type Service struct {
	accounts  accountRepo
	ledger    ledgerRepo
	db        *sql.DB
	jwtSecret string
	jwtExpiry time.Duration
}

func NewService(accounts accountRepo, ledger ledgerRepo, db *sql.DB, jwtSecret string, jwtExpiry time.Duration) *Service {
	return &Service{
		accounts:  accounts,
		ledger:    ledger,
		db:        db,
		jwtSecret: jwtSecret,
		jwtExpiry: jwtExpiry,
	}
}

type RegisterRequest struct {
	Email        string
	Password     string
	Name         string
	CPF          string
	Phone        *string
	ReferralCode string
}

// Register creates an account. A referral code, when present, must resolve
// to an existing account; the edge is immutable afterwards.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.Account, error) {
	log := logging.FromContext(ctx)

	var referredBy *uuid.UUID
	if req.ReferralCode != "" {
		referrer, err := s.accounts.GetByReferralCode(ctx, req.ReferralCode)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("Register: %w", domain.ErrReferralCodeNotFound)
			}
			return nil, fmt.Errorf("Register: %w", err)
		}
		referredBy = &referrer.ID
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("Register: hash password: %w", err)
	}

	account := &domain.Account{
		ID:           uuid.New(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
		CPF:          req.CPF,
		Phone:        req.Phone,
		Role:         domain.RoleUser,
		Status:       domain.AccountStatusActive,
		ReferralCode: newReferralCode(),
		ReferredBy:   referredBy,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("Register: %w", err)
	}

	log.Info("account registered", "account_id", account.ID, "referred", referredBy != nil)
	return account, nil
}

// Login verifies credentials and issues a JWT. The same error comes back for
// an unknown email and a bad password.
func (s *Service) Login(ctx context.Context, email, password string) (string, *domain.Account, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", nil, fmt.Errorf("Login: %w", domain.ErrInvalidCredentials)
		}
		return "", nil, fmt.Errorf("Login: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return "", nil, fmt.Errorf("Login: %w", domain.ErrInvalidCredentials)
	}
	if account.Status == domain.AccountStatusClosed {
		return "", nil, fmt.Errorf("Login: %w", domain.ErrAccountClosed)
	}

	token, err := auth.GenerateToken(account.ID, account.Email, account.Role, s.jwtSecret, s.jwtExpiry)
	if err != nil {
		return "", nil, fmt.Errorf("Login: %w", err)
	}
	return token, account, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return account, nil
}

// Ledger returns a page of the account's ledger entries, newest first, plus
// the total entry count.
func (s *Service) Ledger(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	entries, total, err := s.ledger.GetByAccountID(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("Ledger: %w", err)
	}
	return entries, total, nil
}

// ClaimCommission moves the whole commission balance into the withdrawable
// balance. The transfer is a single row-locked transaction with one ledger
// entry for the moved amount, so two concurrent claims can never both pay.
func (s *Service) ClaimCommission(ctx context.Context, accountID uuid.UUID) (int64, error) {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ClaimCommission: begin tx: %w", err)
	}
	defer tx.Rollback()

	account, err := s.accounts.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return 0, fmt.Errorf("ClaimCommission: lock account: %w", err)
	}
	if account.Status != domain.AccountStatusActive {
		return 0, fmt.Errorf("ClaimCommission: %w", domain.ErrAccountSuspended)
	}

	amount := account.CommissionBalance
	if amount <= 0 {
		return 0, fmt.Errorf("ClaimCommission: %w", domain.ErrNothingToClaim)
	}

	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     account.ID,
		EntryType:     domain.EntryTypeCommissionClaim,
		Amount:        amount,
		BalanceBefore: account.Balance,
		BalanceAfter:  account.Balance + amount,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.ledger.Create(ctx, tx, entry); err != nil {
		return 0, fmt.Errorf("ClaimCommission: ledger: %w", err)
	}

	account.Balance += amount
	account.CommissionBalance = 0
	if err := s.accounts.UpdateBalances(ctx, tx, account, account.Version+1); err != nil {
		return 0, fmt.Errorf("ClaimCommission: update account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ClaimCommission: commit: %w", err)
	}

	log.Info("commission claimed", "account_id", accountID, "amount", amount)
	return amount, nil
}

const referralAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// newReferralCode returns a 10-character code from an unambiguous alphabet.
func newReferralCode() string {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("newReferralCode: %v", err))
	}
	for i := range buf {
		buf[i] = referralAlphabet[int(buf[i])%len(referralAlphabet)]
	}
	return string(buf)
}
