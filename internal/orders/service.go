// Package orders owns exchange order records from creation through
// terminal status and triggers referral bonus accrual on completion.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rubex-exchange/rubex/internal/events"
	"github.com/rubex-exchange/rubex/internal/partner"
	"github.com/rubex-exchange/rubex/internal/shortid"
	"github.com/rubex-exchange/rubex/pkg/metrics"
	"github.com/rubex-exchange/rubex/pkg/models"
)

var (
	// ErrNotFound is returned when an order id does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidOrder is returned for malformed creation requests.
	ErrInvalidOrder = errors.New("invalid order data")
)

const (
	idAttempts = 5
	// casAttempts bounds the optimistic retry of a status transition
	// when a concurrent transition moved the order first.
	casAttempts = 3
)

// Service implements the order lifecycle.
type Service struct {
	logger    *zap.Logger
	db        *gorm.DB
	publisher events.Publisher
}

// NewService creates a new order Service.
func NewService(logger *zap.Logger, db *gorm.DB, publisher events.Publisher) (*Service, error) {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	svc := &Service{
		logger:    logger,
		db:        db,
		publisher: publisher,
	}
	return svc, nil
}

// Submit creates a new order in status new. userID is nil for anonymous
// orders.
func (s *Service) Submit(ctx context.Context, req *models.SubmitOrderRequest, userID *uuid.UUID) (*models.Order, error) {
	amountGive, err := decimal.NewFromString(req.AmountGive)
	if err != nil || !amountGive.IsPositive() {
		return nil, fmt.Errorf("%w: amount_give", ErrInvalidOrder)
	}
	amountReceive, err := decimal.NewFromString(req.AmountReceive)
	if err != nil || !amountReceive.IsPositive() {
		return nil, fmt.Errorf("%w: amount_receive", ErrInvalidOrder)
	}

	orderID, collisions, err := shortid.Generate(idAttempts, func(id string) (bool, error) {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Order{}).Where("order_id = ?", id).Count(&count).Error; err != nil {
			return false, err
		}
		return count > 0, nil
	})
	if err != nil {
		return nil, err
	}
	if collisions > 0 {
		metrics.OrderIDCollisions.Add(float64(collisions))
		s.logger.Warn("Order id collision during generation", zap.Int("collisions", collisions))
	}

	order := &models.Order{
		ID:              uuid.New(),
		OrderID:         orderID,
		UserID:          userID,
		AmountGive:      amountGive,
		CurrencyGive:    req.CurrencyGive,
		AmountReceive:   amountReceive,
		CurrencyReceive: req.CurrencyReceive,
		Network:         req.Network,
		Contact:         req.Contact,
		Status:          models.StatusNew,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	metrics.OrdersCreated.Inc()
	s.logger.Info("Order created",
		zap.String("orderID", order.OrderID),
		zap.String("give", amountGive.String()+" "+req.CurrencyGive),
		zap.String("receive", amountReceive.String()+" "+req.CurrencyReceive))
	return order, nil
}

// Get returns an order by its short public id.
func (s *Service) Get(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return &order, nil
}

// List returns all orders, optionally filtered by status, newest first.
func (s *Service) List(ctx context.Context, status models.Status) ([]*models.Order, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		if !models.ValidStatus(status) {
			return nil, fmt.Errorf("invalid status value: %q", status)
		}
		query = query.Where("status = ?", status)
	}
	var orders []*models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to find orders: %w", err)
	}
	return orders, nil
}

// ListByUser returns the orders owned by a user, newest first.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Order, error) {
	var orders []*models.Order
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to find orders: %w", err)
	}
	return orders, nil
}

// TransitionStatus moves an order to a new status. The referral bonus
// fires exactly once, on the edge transition into completed: the write
// is a compare-and-swap against the previously read status, so two
// concurrent completions cannot both observe "not yet completed" and
// double-credit the referrer. The credit happens in the same database
// transaction as the status write.
func (s *Service) TransitionStatus(ctx context.Context, orderID string, status models.Status) (*models.Order, error) {
	if !models.ValidStatus(status) {
		return nil, fmt.Errorf("invalid status value: %q", status)
	}

	var order models.Order
	var prev models.Status
	for attempt := 0; ; attempt++ {
		swapped := false
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("order_id = ?", orderID).First(&order).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					return ErrNotFound
				}
				return fmt.Errorf("failed to find order: %w", err)
			}
			prev = order.Status

			now := time.Now()
			res := tx.Model(&models.Order{}).
				Where("order_id = ? AND status = ?", orderID, prev).
				Updates(map[string]interface{}{"status": status, "updated_at": now})
			if res.Error != nil {
				return fmt.Errorf("failed to update order: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				// Lost the race to a concurrent transition; retry
				// against the fresh state.
				return nil
			}
			swapped = true
			order.Status = status
			order.UpdatedAt = now

			if prev != models.StatusCompleted && status == models.StatusCompleted {
				if err := s.accrueReferralBonus(tx, &order); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if swapped {
			break
		}
		if attempt+1 >= casAttempts {
			return nil, fmt.Errorf("failed to transition order %s: too many concurrent updates", orderID)
		}
	}

	if err := s.publisher.PublishStatusEvent(ctx, events.StatusEvent{
		Kind:       "order",
		ID:         order.OrderID,
		PrevStatus: prev,
		Status:     status,
		OccurredAt: order.UpdatedAt,
	}); err != nil {
		s.logger.Warn("Failed to publish order status event", zap.Error(err))
	}

	return &order, nil
}

// accrueReferralBonus credits the owner's referrer with the flat
// referral rate over the order's fiat leg. Anonymous orders, owners
// without a referrer and orders without a fiat-denominated leg accrue
// nothing.
func (s *Service) accrueReferralBonus(tx *gorm.DB, order *models.Order) error {
	if order.UserID == nil {
		return nil
	}
	var owner models.User
	if err := tx.Where("id = ?", *order.UserID).First(&owner).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return fmt.Errorf("failed to find order owner: %w", err)
	}
	if owner.ReferrerID == nil {
		return nil
	}

	bonus := partner.ReferralBonus(order.FiatLegAmount())
	if !bonus.IsPositive() {
		return nil
	}
	if err := partner.Credit(tx, *owner.ReferrerID, bonus); err != nil {
		return fmt.Errorf("failed to accrue referral bonus: %w", err)
	}

	s.logger.Info("Referral bonus accrued",
		zap.String("orderID", order.OrderID),
		zap.String("referrerID", owner.ReferrerID.String()),
		zap.String("bonus", bonus.String()))
	return nil
}
