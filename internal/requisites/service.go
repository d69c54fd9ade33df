// Package requisites stores users' saved payment details.
package requisites

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rubex-exchange/rubex/pkg/models"
)

// ErrNotFound is returned when a requisite does not exist or is owned
// by another user.
var ErrNotFound = errors.New("requisite not found")

// Service implements owner-scoped requisite CRUD.
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewService creates a new requisites Service.
func NewService(logger *zap.Logger, db *gorm.DB) (*Service, error) {
	return &Service{logger: logger, db: db}, nil
}

// List returns a user's saved requisites.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*models.Requisite, error) {
	var requisites []*models.Requisite
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&requisites).Error; err != nil {
		return nil, fmt.Errorf("failed to find requisites: %w", err)
	}
	return requisites, nil
}

// Create saves a new requisite for a user.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, req *models.RequisiteRequest) (*models.Requisite, error) {
	requisite := &models.Requisite{
		ID:            uuid.New(),
		UserID:        userID,
		System:        req.System,
		AccountNumber: req.AccountNumber,
		ExtraInfo:     req.ExtraInfo,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(requisite).Error; err != nil {
		return nil, fmt.Errorf("failed to create requisite: %w", err)
	}
	return requisite, nil
}

// Update modifies a requisite owned by the user.
func (s *Service) Update(ctx context.Context, userID, requisiteID uuid.UUID, req *models.RequisiteRequest) (*models.Requisite, error) {
	var requisite models.Requisite
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", requisiteID, userID).First(&requisite).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find requisite: %w", err)
	}

	requisite.System = req.System
	requisite.AccountNumber = req.AccountNumber
	requisite.ExtraInfo = req.ExtraInfo
	requisite.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(&requisite).Error; err != nil {
		return nil, fmt.Errorf("failed to update requisite: %w", err)
	}
	return &requisite, nil
}

// Delete removes a requisite owned by the user.
func (s *Service) Delete(ctx context.Context, userID, requisiteID uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", requisiteID, userID).Delete(&models.Requisite{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete requisite: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
