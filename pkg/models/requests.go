package models

import (
	"time"

	"github.com/google/uuid"
)

// Amounts cross the API boundary as decimal strings so clients never
// see binary floating-point artifacts.

// RegisterRequest is the payload for user registration.
type RegisterRequest struct {
	Login        string `json:"login" binding:"required,min=3,max=30"`
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=8"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Phone        string `json:"phone"`
	Telegram     string `json:"tg"`
	ReferralCode string `json:"referral_code"` // code of the referring user, optional
}

// LoginRequest is the payload for authentication.
type LoginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the issued token, or a 2FA challenge.
type LoginResponse struct {
	User        *User     `json:"user,omitempty"`
	Token       string    `json:"token,omitempty"`
	Requires2FA bool      `json:"requires_2fa"`
	UserID      uuid.UUID `json:"user_id,omitempty"`
}

// QuoteRequest asks for a conversion quote. Amount refers to the side
// named by FixedSide: "give" is what the user sends, "receive" is what
// the user wants to end up with.
type QuoteRequest struct {
	FromCurrency string `json:"from_currency" binding:"required,currency_symbol"`
	ToCurrency   string `json:"to_currency" binding:"required,currency_symbol"`
	Amount       string `json:"amount" binding:"required"`
	FixedSide    string `json:"fixed_side" binding:"required,oneof=give receive"`
}

// QuoteResult is the solved counter-leg of a quote.
type QuoteResult struct {
	Rate         string `json:"rate"`
	ResultAmount string `json:"result_amount"`
}

// SubmitOrderRequest creates a new exchange order.
type SubmitOrderRequest struct {
	AmountGive      string `json:"amount_give" binding:"required"`
	CurrencyGive    string `json:"currency_give" binding:"required,currency_symbol"`
	AmountReceive   string `json:"amount_receive" binding:"required"`
	CurrencyReceive string `json:"currency_receive" binding:"required,currency_symbol"`
	Network         string `json:"network"`
	Contact         string `json:"contact" binding:"required"`
}

// CreateWithdrawalRequest creates a partner payout request.
type CreateWithdrawalRequest struct {
	Amount  string `json:"amount" binding:"required"`
	Contact string `json:"contact" binding:"required"`
}

// TransitionStatusRequest moves an order or withdrawal to a new status.
type TransitionStatusRequest struct {
	Status Status `json:"status" binding:"required"`
}

// CommissionUpdateRequest replaces one or more tier tables wholesale.
// Omitted classes keep their current tiers.
type CommissionUpdateRequest struct {
	Stablecoin    []CommissionTier `json:"usdt,omitempty"`
	PrimaryCrypto []CommissionTier `json:"btc,omitempty"`
	Other         []CommissionTier `json:"alt,omitempty"`
}

// RequisiteRequest creates or updates a saved payment detail.
type RequisiteRequest struct {
	System        string `json:"system" binding:"required"`
	AccountNumber string `json:"account_number" binding:"required"`
	ExtraInfo     string `json:"extra_info"`
}

// PartnerStats is the referral program report for one user.
type PartnerStats struct {
	AccountID        uuid.UUID `json:"account_id"`
	RegistrationDate time.Time `json:"registration_date"`
	Email            string    `json:"email"`
	PartnerPercent   string    `json:"partner_percent"`
	ReferralCount    int64     `json:"referral_count"`
	ExchangesCount   int64     `json:"exchanges_count"`
	ExchangesSum     string    `json:"exchanges_sum"`
	EarnedAllTime    string    `json:"earned_all_time"`
	PendingPayout    string    `json:"pending_payout"`
	TotalPaid        string    `json:"total_paid"`
	CurrentBalance   string    `json:"current_balance"`
	AvailablePayout  string    `json:"available_payout"`
}
