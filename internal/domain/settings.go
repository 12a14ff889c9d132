package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Settings is the singleton row of mutable platform configuration. It is
// read per-operation through a staleness-bounded provider, never cached for
// the process lifetime: a rate change applies to all in-flight operations
// immediately.
type Settings struct {
	Level1Rate         decimal.Decimal
	Level2Rate         decimal.Decimal
	Level3Rate         decimal.Decimal
	RolloverMultiplier decimal.Decimal
	MinDeposit         int64
	MinWithdrawal      int64
	WebhookAllowedIPs  []string
	GatewayPublicKey   string
	GatewaySecretKey   string
	PostbackURL        string
	UpdatedAt          time.Time
}

// CommissionRate returns the configured rate for an upline level, zero for
// anything outside 1..3.
func (s *Settings) CommissionRate(level int) decimal.Decimal {
	switch level {
	case 1:
		return s.Level1Rate
	case 2:
		return s.Level2Rate
	case 3:
		return s.Level3Rate
	}
	return decimal.Zero
}
