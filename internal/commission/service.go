package commission

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rubex-exchange/rubex/pkg/models"
)

// Service persists the commission schedule and serves an immutable
// in-memory copy to the quotation engine.
type Service struct {
	logger  *zap.Logger
	db      *gorm.DB
	current atomic.Pointer[Schedule]
}

// NewService creates a new commission Service.
func NewService(logger *zap.Logger, db *gorm.DB) (*Service, error) {
	svc := &Service{
		logger: logger,
		db:     db,
	}
	return svc, nil
}

// Ensure seeds the default schedule when no tiers exist yet and loads
// the current schedule into memory. It is called once at process start
// by the bootstrap, not lazily from a read path.
func (s *Service) Ensure(ctx context.Context) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.CommissionTier{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count commission tiers: %w", err)
	}
	if count == 0 {
		defaults := DefaultSchedule()
		rows := make([]models.CommissionTier, 0)
		for _, class := range []AssetClass{ClassStablecoin, ClassPrimaryCrypto, ClassOther} {
			for i, t := range defaults.Tiers(class) {
				rows = append(rows, models.CommissionTier{
					AssetClass: string(class),
					Position:   i,
					Min:        t.Min,
					Max:        t.Max,
					Rate:       t.Rate,
				})
			}
		}
		if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to seed default commission schedule: %w", err)
		}
		s.logger.Info("Seeded default commission schedule", zap.Int("tiers", len(rows)))
	}
	return s.reload(ctx)
}

// Current returns the loaded schedule. It never blocks; the returned
// value is immutable.
func (s *Service) Current() *Schedule {
	if sched := s.current.Load(); sched != nil {
		return sched
	}
	return DefaultSchedule()
}

// Tiers returns the persisted tier rows grouped per asset class, for
// the admin view.
func (s *Service) Tiers(ctx context.Context) (map[string][]models.CommissionTier, error) {
	var rows []models.CommissionTier
	if err := s.db.WithContext(ctx).Order("asset_class, position").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load commission tiers: %w", err)
	}
	grouped := make(map[string][]models.CommissionTier)
	for _, row := range rows {
		grouped[row.AssetClass] = append(grouped[row.AssetClass], row)
	}
	return grouped, nil
}

// Update replaces the tier lists of the classes present in the request.
// Replacement is wholesale per class; validation runs before any write.
func (s *Service) Update(ctx context.Context, req *models.CommissionUpdateRequest) error {
	replacements := map[AssetClass][]models.CommissionTier{}
	if req.Stablecoin != nil {
		replacements[ClassStablecoin] = req.Stablecoin
	}
	if req.PrimaryCrypto != nil {
		replacements[ClassPrimaryCrypto] = req.PrimaryCrypto
	}
	if req.Other != nil {
		replacements[ClassOther] = req.Other
	}
	if len(replacements) == 0 {
		return fmt.Errorf("no tier lists provided")
	}
	for class, tiers := range replacements {
		if len(tiers) == 0 {
			return fmt.Errorf("class %s: tier list must not be empty", class)
		}
		if err := ValidateTiers(tiers); err != nil {
			return fmt.Errorf("class %s: %w", class, err)
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for class, tiers := range replacements {
			if err := tx.Where("asset_class = ?", string(class)).Delete(&models.CommissionTier{}).Error; err != nil {
				return fmt.Errorf("failed to clear tiers: %w", err)
			}
			rows := make([]models.CommissionTier, len(tiers))
			for i, t := range tiers {
				rows[i] = models.CommissionTier{
					AssetClass: string(class),
					Position:   i,
					Min:        t.Min,
					Max:        t.Max,
					Rate:       t.Rate,
				}
			}
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to save tiers: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Commission schedule updated", zap.Int("classes", len(replacements)))
	return s.reload(ctx)
}

// reload rebuilds the in-memory schedule from the database and swaps it
// in atomically.
func (s *Service) reload(ctx context.Context) error {
	var rows []models.CommissionTier
	if err := s.db.WithContext(ctx).Order("asset_class, position").Find(&rows).Error; err != nil {
		return fmt.Errorf("failed to load commission tiers: %w", err)
	}
	tables := make(map[AssetClass][]Tier)
	for _, row := range rows {
		class := AssetClass(row.AssetClass)
		tables[class] = append(tables[class], Tier{Min: row.Min, Max: row.Max, Rate: row.Rate})
	}
	s.current.Store(NewSchedule(tables))
	return nil
}
