package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusClosed    AccountStatus = "closed"
)

// Account is the single wallet row per user. Balance fields are derived
// caches over the ledger: they are only ever written inside a row-locked
// transaction that also appends the matching ledger entry.
type Account struct {
	ID                  uuid.UUID
	Email               string
	Name                string
	PasswordHash        string
	CPF                 string
	Phone               *string
	Role                Role
	Status              AccountStatus
	ReferralCode        string
	ReferredBy          *uuid.UUID
	Balance             int64
	PrizeBalance        int64
	CommissionBalance   int64
	RolloverRequirement int64
	RolloverProgress    int64
	Version             int64
	CreatedAt           time.Time
}
