package partner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rubex-exchange/rubex/internal/events"
	"github.com/rubex-exchange/rubex/internal/shortid"
	"github.com/rubex-exchange/rubex/pkg/metrics"
	"github.com/rubex-exchange/rubex/pkg/models"
)

const idAttempts = 5

// Service implements the partner bonus ledger and withdrawal lifecycle.
type Service struct {
	logger    *zap.Logger
	db        *gorm.DB
	publisher events.Publisher
	minAmount decimal.Decimal
}

// NewService creates a new partner Service. minAmount is the smallest
// payout request accepted, in fiat units; zero disables the floor.
func NewService(logger *zap.Logger, db *gorm.DB, publisher events.Publisher, minAmount decimal.Decimal) (*Service, error) {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	svc := &Service{
		logger:    logger,
		db:        db,
		publisher: publisher,
		minAmount: minAmount,
	}
	return svc, nil
}

// CreateWithdrawal creates a payout request and debits the requested
// amount from the bonus balance immediately. The debit is an optimistic
// reservation: a later cancellation does not refund it automatically.
func (s *Service) CreateWithdrawal(ctx context.Context, userID uuid.UUID, req *models.CreateWithdrawalRequest) (*models.Withdrawal, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, fmt.Errorf("invalid withdrawal amount: %q", req.Amount)
	}
	if s.minAmount.IsPositive() && amount.LessThan(s.minAmount) {
		return nil, ErrBelowMinimum
	}

	var withdrawal *models.Withdrawal
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := Debit(tx, userID, amount); err != nil {
			return err
		}

		id, collisions, err := shortid.Generate(idAttempts, func(id string) (bool, error) {
			var count int64
			if err := tx.Model(&models.Withdrawal{}).Where("withdrawal_id = ?", id).Count(&count).Error; err != nil {
				return false, err
			}
			return count > 0, nil
		})
		if err != nil {
			return err
		}
		if collisions > 0 {
			s.logger.Warn("Withdrawal id collision during generation", zap.Int("collisions", collisions))
		}

		withdrawal = &models.Withdrawal{
			ID:           uuid.New(),
			WithdrawalID: id,
			UserID:       userID,
			Amount:       amount,
			Contact:      strings.TrimSpace(req.Contact),
			Status:       models.StatusNew,
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}
		if err := tx.Create(withdrawal).Error; err != nil {
			return fmt.Errorf("failed to create withdrawal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.WithdrawalsCreated.Inc()
	s.logger.Info("Withdrawal request created",
		zap.String("withdrawalID", withdrawal.WithdrawalID),
		zap.String("userID", userID.String()),
		zap.String("amount", amount.String()))
	return withdrawal, nil
}

// TransitionWithdrawalStatus moves a withdrawal to a new status. Any
// status may follow any other; last write wins.
func (s *Service) TransitionWithdrawalStatus(ctx context.Context, withdrawalID string, status models.Status) (*models.Withdrawal, error) {
	if !models.ValidStatus(status) {
		return nil, fmt.Errorf("invalid status value: %q", status)
	}

	var withdrawal models.Withdrawal
	var prev models.Status
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("withdrawal_id = ?", withdrawalID).First(&withdrawal).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrNotFound
			}
			return fmt.Errorf("failed to find withdrawal: %w", err)
		}
		prev = withdrawal.Status
		withdrawal.Status = status
		withdrawal.UpdatedAt = time.Now()
		if err := tx.Model(&models.Withdrawal{}).Where("withdrawal_id = ?", withdrawalID).
			Updates(map[string]interface{}{"status": status, "updated_at": withdrawal.UpdatedAt}).Error; err != nil {
			return fmt.Errorf("failed to update withdrawal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.publisher.PublishStatusEvent(ctx, events.StatusEvent{
		Kind:       "withdrawal",
		ID:         withdrawal.WithdrawalID,
		PrevStatus: prev,
		Status:     status,
		OccurredAt: withdrawal.UpdatedAt,
	}); err != nil {
		s.logger.Warn("Failed to publish withdrawal status event", zap.Error(err))
	}

	return &withdrawal, nil
}

// ListWithdrawals returns a user's payout requests, newest first.
func (s *Service) ListWithdrawals(ctx context.Context, userID uuid.UUID) ([]*models.Withdrawal, error) {
	var withdrawals []*models.Withdrawal
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Find(&withdrawals).Error; err != nil {
		return nil, fmt.Errorf("failed to find withdrawals: %w", err)
	}
	return withdrawals, nil
}

// ListAllWithdrawals returns all payout requests, optionally filtered
// by status, for the admin view.
func (s *Service) ListAllWithdrawals(ctx context.Context, status models.Status) ([]*models.Withdrawal, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		if !models.ValidStatus(status) {
			return nil, fmt.Errorf("invalid status value: %q", status)
		}
		query = query.Where("status = ?", status)
	}
	var withdrawals []*models.Withdrawal
	if err := query.Find(&withdrawals).Error; err != nil {
		return nil, fmt.Errorf("failed to find withdrawals: %w", err)
	}
	return withdrawals, nil
}

// Stats aggregates the referral program report for one user.
func (s *Service) Stats(ctx context.Context, userID uuid.UUID) (*models.PartnerStats, error) {
	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.Where("id = ?", userID).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	var referralCount int64
	if err := db.Model(&models.User{}).Where("referrer_id = ?", userID).Count(&referralCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count referrals: %w", err)
	}

	// Completed orders created by referred users. The fiat leg is
	// resolved in Go because rail aliases cannot be matched in SQL.
	var referredOrders []*models.Order
	if err := db.Where("status = ? AND user_id IN (?)", models.StatusCompleted,
		db.Session(&gorm.Session{NewDB: true}).Model(&models.User{}).Select("id").Where("referrer_id = ?", userID),
	).Find(&referredOrders).Error; err != nil {
		return nil, fmt.Errorf("failed to find referred orders: %w", err)
	}
	exchangesSum := decimal.Zero
	for _, order := range referredOrders {
		exchangesSum = exchangesSum.Add(order.FiatLegAmount())
	}

	pending, err := s.sumWithdrawals(ctx, userID, []models.Status{models.StatusNew, models.StatusInProgress})
	if err != nil {
		return nil, err
	}
	paid, err := s.sumWithdrawals(ctx, userID, []models.Status{models.StatusCompleted})
	if err != nil {
		return nil, err
	}

	return &models.PartnerStats{
		AccountID:        user.ID,
		RegistrationDate: user.CreatedAt,
		Email:            user.Email,
		PartnerPercent:   ReferralRate.Mul(decimal.NewFromInt(100)).String(),
		ReferralCount:    referralCount,
		ExchangesCount:   int64(len(referredOrders)),
		ExchangesSum:     exchangesSum.String(),
		EarnedAllTime:    user.EarnedTotal.String(),
		PendingPayout:    pending.String(),
		TotalPaid:        paid.String(),
		CurrentBalance:   user.BonusBalance.String(),
		AvailablePayout:  user.BonusBalance.Sub(pending).String(),
	}, nil
}

func (s *Service) sumWithdrawals(ctx context.Context, userID uuid.UUID, statuses []models.Status) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	if err := s.db.WithContext(ctx).Model(&models.Withdrawal{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ? AND status IN ?", userID, statuses).
		Scan(&result).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum withdrawals: %w", err)
	}
	return result.Total, nil
}
