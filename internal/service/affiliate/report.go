package affiliate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/raspaplay/wallet-api/internal/domain"
)

type accountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetAll(ctx context.Context) ([]domain.Account, error)
}

type depositRepo interface {
	CompletedTotals(ctx context.Context) (map[uuid.UUID]int64, error)
}

type commissionRepo interface {
	EarnedTotals(ctx context.Context, affiliateID uuid.UUID) (map[uuid.UUID]int64, error)
}

// Reporter builds the affiliate network report: the three-level downline of
// an account with per-referral deposit and commission totals.
type Reporter struct {
	accounts    accountRepo
	deposits    depositRepo
	commissions commissionRepo
}

func NewReporter(accounts accountRepo, deposits depositRepo, commissions commissionRepo) *Reporter {
	return &Reporter{accounts: accounts, deposits: deposits, commissions: commissions}
}

// ReferralRow is one referred account in the report.
type ReferralRow struct {
	AccountID        uuid.UUID `json:"accountId"`
	Name             string    `json:"name"`
	Level            int       `json:"level"`
	TotalDeposited   int64     `json:"totalDeposited"`
	CommissionEarned int64     `json:"commissionEarned"`
	JoinedAt         time.Time `json:"joinedAt"`
}

// Report is the aggregate view over an affiliate's network.
type Report struct {
	AffiliateID       uuid.UUID     `json:"affiliateId"`
	ReferralCode      string        `json:"referralCode"`
	LevelCounts       [3]int        `json:"levelCounts"`
	TotalDeposited    int64         `json:"totalDeposited"`
	TotalEarned       int64         `json:"totalEarned"`
	CommissionBalance int64         `json:"commissionBalance"`
	Referrals         []ReferralRow `json:"referrals"`
}

// Build walks the referral edges breadth-first from the affiliate, three
// levels deep, and joins each referred account against completed-deposit
// and commission-earned totals. Totals reflect commissions as recorded at
// crediting time, not today's rates.
func (r *Reporter) Build(ctx context.Context, affiliateID uuid.UUID) (*Report, error) {
	affiliate, err := r.accounts.GetByID(ctx, affiliateID)
	if err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	}

	all, err := r.accounts.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("Build: accounts: %w", err)
	}

	children := make(map[uuid.UUID][]*domain.Account, len(all))
	for i := range all {
		if ref := all[i].ReferredBy; ref != nil {
			children[*ref] = append(children[*ref], &all[i])
		}
	}

	depositTotals, err := r.deposits.CompletedTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("Build: deposit totals: %w", err)
	}
	earnedTotals, err := r.commissions.EarnedTotals(ctx, affiliateID)
	if err != nil {
		return nil, fmt.Errorf("Build: commission totals: %w", err)
	}

	report := &Report{
		AffiliateID:       affiliate.ID,
		ReferralCode:      affiliate.ReferralCode,
		CommissionBalance: affiliate.CommissionBalance,
	}

	frontier := []uuid.UUID{affiliate.ID}
	for level := 1; level <= 3 && len(frontier) > 0; level++ {
		var next []uuid.UUID
		for _, parent := range frontier {
			for _, child := range children[parent] {
				row := ReferralRow{
					AccountID:        child.ID,
					Name:             child.Name,
					Level:            level,
					TotalDeposited:   depositTotals[child.ID],
					CommissionEarned: earnedTotals[child.ID],
					JoinedAt:         child.CreatedAt,
				}
				report.Referrals = append(report.Referrals, row)
				report.LevelCounts[level-1]++
				report.TotalDeposited += row.TotalDeposited
				report.TotalEarned += row.CommissionEarned
				next = append(next, child.ID)
			}
		}
		frontier = next
	}

	sort.Slice(report.Referrals, func(i, j int) bool {
		a, b := report.Referrals[i], report.Referrals[j]
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		return a.JoinedAt.After(b.JoinedAt)
	})

	return report, nil
}
