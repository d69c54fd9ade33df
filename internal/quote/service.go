package quote

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rubex-exchange/rubex/internal/commission"
	"github.com/rubex-exchange/rubex/internal/rates"
	"github.com/rubex-exchange/rubex/pkg/metrics"
	"github.com/rubex-exchange/rubex/pkg/models"
)

// Service resolves the current snapshot and schedule and runs the
// engine for API callers.
type Service struct {
	logger      *zap.Logger
	store       *rates.Store
	commissions *commission.Service
}

// NewService creates a new quote Service.
func NewService(logger *zap.Logger, store *rates.Store, commissions *commission.Service) (*Service, error) {
	svc := &Service{
		logger:      logger,
		store:       store,
		commissions: commissions,
	}
	return svc, nil
}

// Quote computes a conversion quote against the current snapshot.
func (s *Service) Quote(ctx context.Context, req *models.QuoteRequest) (*models.QuoteResult, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		metrics.QuotesServed.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, req.Amount)
	}

	snap, err := s.store.Current()
	if err != nil {
		metrics.QuotesServed.WithLabelValues("unavailable").Inc()
		return nil, err
	}

	result, err := Compute(snap, s.commissions.Current(), Request{
		From:      req.FromCurrency,
		To:        req.ToCurrency,
		Amount:    amount,
		FixedSide: Side(req.FixedSide),
	})
	if err != nil {
		metrics.QuotesServed.WithLabelValues("rejected").Inc()
		return nil, err
	}

	metrics.QuotesServed.WithLabelValues("ok").Inc()
	return &models.QuoteResult{
		Rate:         result.Rate.StringFixed(6),
		ResultAmount: result.Amount.String(),
	}, nil
}
