package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FiatCurrency is the settlement currency all crypto rates are quoted
// against.
const FiatCurrency = "RUB"

// fiatRailAliases are payment-rail names accepted as fiat-denominated
// order legs (bank rails settle in RUB).
var fiatRailAliases = map[string]bool{
	FiatCurrency: true,
	"SBER":       true,
	"T-BANK":     true,
	"SBP":        true,
}

// IsFiatLeg reports whether a currency symbol denotes the fiat currency
// or a recognized fiat payment rail.
func IsFiatLeg(symbol string) bool {
	return fiatRailAliases[strings.ToUpper(symbol)]
}

// Status is the shared lifecycle vocabulary for orders and withdrawal
// requests.
type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ValidStatus reports whether s is a known lifecycle status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusNew, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether a withdrawal in this status no longer counts
// toward the pending payout sum.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// User represents a registered user.
type User struct {
	ID                 uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	Login              string          `json:"login" gorm:"uniqueIndex"`
	Email              string          `json:"email" gorm:"uniqueIndex"`
	PasswordHash       string          `json:"-" gorm:"column:password_hash"`
	FirstName          string          `json:"first_name"`
	LastName           string          `json:"last_name"`
	Phone              string          `json:"phone"`
	Telegram           string          `json:"tg"`
	Role               string          `json:"role" gorm:"default:user"` // user, admin
	TwoFAEnabled       bool            `json:"two_fa_enabled"`
	TOTPSecret         string          `json:"-" gorm:"column:totp_secret"`
	EmailNotifications bool            `json:"email_notifications" gorm:"default:true"`
	ReferralCode       string          `json:"referral_code" gorm:"uniqueIndex"`
	ReferrerID         *uuid.UUID      `json:"referrer_id" gorm:"type:uuid;index"`
	BonusBalance       decimal.Decimal `json:"bonus_balance" gorm:"type:decimal(20,2);default:0"`
	EarnedTotal        decimal.Decimal `json:"earned_total" gorm:"type:decimal(20,2);default:0"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Order represents an exchange order. OrderID is the short
// human-shareable identifier; ID is internal only.
type Order struct {
	ID              uuid.UUID       `json:"-" gorm:"primaryKey;type:uuid"`
	OrderID         string          `json:"order_id" gorm:"uniqueIndex"`
	UserID          *uuid.UUID      `json:"user_id" gorm:"type:uuid;index"`
	AmountGive      decimal.Decimal `json:"amount_give" gorm:"type:decimal(28,8)"`
	CurrencyGive    string          `json:"currency_give"`
	AmountReceive   decimal.Decimal `json:"amount_receive" gorm:"type:decimal(28,8)"`
	CurrencyReceive string          `json:"currency_receive"`
	Network         string          `json:"network"` // payment rail or chain qualifier
	Contact         string          `json:"contact"`
	Status          Status          `json:"status" gorm:"index;default:new"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// FiatLegAmount returns the order amount denominated in fiat, or zero
// when neither leg is fiat-denominated.
func (o *Order) FiatLegAmount() decimal.Decimal {
	if IsFiatLeg(o.CurrencyGive) {
		return o.AmountGive
	}
	if IsFiatLeg(o.CurrencyReceive) {
		return o.AmountReceive
	}
	return decimal.Zero
}

// Withdrawal represents a partner bonus payout request. Amount is in
// fiat units.
type Withdrawal struct {
	ID           uuid.UUID       `json:"-" gorm:"primaryKey;type:uuid"`
	WithdrawalID string          `json:"withdrawal_id" gorm:"uniqueIndex"`
	UserID       uuid.UUID       `json:"user_id" gorm:"type:uuid;index"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:decimal(20,2)"`
	Contact      string          `json:"contact"`
	Status       Status          `json:"status" gorm:"index;default:new"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// CommissionTier is one volume tier of a commission table. The range is
// half-open: Min inclusive, Max exclusive. Amounts are fiat-equivalent.
type CommissionTier struct {
	ID         uint            `json:"-" gorm:"primaryKey"`
	AssetClass string          `json:"-" gorm:"index"`
	Position   int             `json:"-"`
	Min        decimal.Decimal `json:"min" gorm:"type:decimal(20,2)"`
	Max        decimal.Decimal `json:"max" gorm:"type:decimal(20,2)"`
	Rate       decimal.Decimal `json:"commission" gorm:"type:decimal(6,4)"`
}

// RateSnapshot is the persisted copy of a rate refresh. Rates is the
// JSON-encoded symbol -> fiat rate map.
type RateSnapshot struct {
	ID        uint      `gorm:"primaryKey"`
	Rates     string    `gorm:"type:text"`
	Timestamp time.Time `gorm:"index"`
}

// Requisite is a saved user payment detail (bank account or wallet
// address) used to settle orders and payouts.
type Requisite struct {
	ID            uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	UserID        uuid.UUID `json:"-" gorm:"type:uuid;index"`
	System        string    `json:"system"` // e.g. Sber, BTC
	AccountNumber string    `json:"account_number"`
	ExtraInfo     string    `json:"extra_info"` // recipient name or network
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
