// Package partner maintains referral bonus balances and partner payout
// requests.
package partner

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rubex-exchange/rubex/pkg/metrics"
	"github.com/rubex-exchange/rubex/pkg/models"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the
	// current bonus balance.
	ErrInsufficientBalance = errors.New("insufficient bonus balance")
	// ErrBelowMinimum is returned for withdrawal requests under the
	// minimum payout amount.
	ErrBelowMinimum = errors.New("withdrawal amount below minimum")
	// ErrNotFound is returned when a withdrawal id does not exist.
	ErrNotFound = errors.New("withdrawal request not found")
)

// ReferralRate is the flat partner accrual rate applied to the
// fiat-denominated leg of a completed referred order. It is distinct
// from the tiered commission schedule used for quoting.
var ReferralRate = decimal.RequireFromString("0.001")

// ReferralBonus computes the accrual for a fiat leg amount, in fiat
// minor-unit precision.
func ReferralBonus(fiatLeg decimal.Decimal) decimal.Decimal {
	return fiatLeg.Mul(ReferralRate).Round(2)
}

// Credit adds amount to a user's bonus balance and lifetime earned
// counter. It runs against the passed handle so callers can include the
// credit in the same transaction as the triggering state change.
func Credit(tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("credit amount must be positive")
	}
	res := tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"bonus_balance": gorm.Expr("bonus_balance + ?", amount),
		"earned_total":  gorm.Expr("earned_total + ?", amount),
		"updated_at":    time.Now(),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to credit bonus: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s not found", userID)
	}
	metrics.BonusCredited.Inc()
	return nil
}

// Debit subtracts amount from a user's bonus balance. The balance guard
// is part of the UPDATE itself, so concurrent debits cannot take the
// balance negative.
func Debit(tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("debit amount must be positive")
	}
	res := tx.Model(&models.User{}).
		Where("id = ? AND bonus_balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"bonus_balance": gorm.Expr("bonus_balance - ?", amount),
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to debit bonus: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientBalance
	}
	return nil
}
