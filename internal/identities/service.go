// Package identities handles user registration, authentication and
// two-factor verification.
package identities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/rubex-exchange/rubex/internal/shortid"
	"github.com/rubex-exchange/rubex/pkg/models"
)

var (
	// ErrInvalidCredentials is returned for wrong login/password pairs
	// and invalid 2FA codes.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when login or email is already taken.
	ErrUserExists = errors.New("login or email already exists")
	// ErrUserNotFound is returned for unknown user ids.
	ErrUserNotFound = errors.New("user not found")
)

const totpIssuer = "Rubex"

// Service implements user identity operations.
type Service struct {
	logger             *zap.Logger
	db                 *gorm.DB
	jwtSecret          string
	jwtExpirationHours int
}

// NewService creates a new identities Service.
func NewService(logger *zap.Logger, db *gorm.DB, jwtSecret string, jwtExpirationHours int) (*Service, error) {
	if jwtSecret == "" {
		return nil, fmt.Errorf("jwt secret must be configured")
	}
	if jwtExpirationHours <= 0 {
		jwtExpirationHours = 24
	}
	svc := &Service{
		logger:             logger,
		db:                 db,
		jwtSecret:          jwtSecret,
		jwtExpirationHours: jwtExpirationHours,
	}
	return svc, nil
}

// Register registers a new user. When req.ReferralCode names an
// existing user, the new user is linked to that referrer.
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.User{}).Where("login = ? OR email = ?", req.Login, req.Email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check user uniqueness: %w", err)
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	var referrerID *uuid.UUID
	if req.ReferralCode != "" {
		var referrer models.User
		if err := db.Where("referral_code = ?", req.ReferralCode).First(&referrer).Error; err != nil {
			if err != gorm.ErrRecordNotFound {
				return nil, fmt.Errorf("failed to resolve referral code: %w", err)
			}
			// Unknown codes are ignored rather than rejected.
			s.logger.Debug("Unknown referral code at registration", zap.String("code", req.ReferralCode))
		} else {
			referrerID = &referrer.ID
		}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	referralCode, _, err := shortid.Generate(5, func(id string) (bool, error) {
		var n int64
		if err := db.Model(&models.User{}).Where("referral_code = ?", id).Count(&n).Error; err != nil {
			return false, err
		}
		return n > 0, nil
	})
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:                 uuid.New(),
		Login:              req.Login,
		Email:              req.Email,
		PasswordHash:       string(hashedPassword),
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Phone:              req.Phone,
		Telegram:           req.Telegram,
		Role:               "user",
		EmailNotifications: true,
		ReferralCode:       referralCode,
		ReferrerID:         referrerID,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	if err := db.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User registered",
		zap.String("userID", user.ID.String()),
		zap.Bool("referred", referrerID != nil))
	return user, nil
}

// Login authenticates a user by login or email. When 2FA is enabled the
// response carries a challenge instead of a token.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("login = ? OR email = ?", req.Login, req.Login).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if user.TwoFAEnabled {
		return &models.LoginResponse{
			Requires2FA: true,
			UserID:      user.ID,
		}, nil
	}

	token, err := s.generateToken(user.ID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &models.LoginResponse{
		User:  &user,
		Token: token,
	}, nil
}

// Verify2FA completes a 2FA login challenge.
func (s *Service) Verify2FA(ctx context.Context, userID uuid.UUID, code string) (*models.LoginResponse, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.TwoFAEnabled || user.TOTPSecret == "" {
		return nil, fmt.Errorf("2FA not enabled")
	}
	if !totp.Validate(code, user.TOTPSecret) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.generateToken(user.ID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &models.LoginResponse{
		User:  user,
		Token: token,
	}, nil
}

// Enable2FA generates a TOTP secret for a user. 2FA only becomes
// active after Activate2FA confirms a valid code.
func (s *Service) Enable2FA(ctx context.Context, userID uuid.UUID) (secret, url string, err error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if user.TwoFAEnabled {
		return "", "", fmt.Errorf("2FA already enabled")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: user.Email,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Update("totp_secret", key.Secret()).Error; err != nil {
		return "", "", fmt.Errorf("failed to save TOTP secret: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// Activate2FA turns on 2FA after the user proves possession of the
// secret.
func (s *Service) Activate2FA(ctx context.Context, userID uuid.UUID, code string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.TOTPSecret == "" {
		return fmt.Errorf("2FA not set up")
	}
	if !totp.Validate(code, user.TOTPSecret) {
		return ErrInvalidCredentials
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Update("two_fa_enabled", true).Error; err != nil {
		return fmt.Errorf("failed to enable 2FA: %w", err)
	}
	return nil
}

// Disable2FA turns off 2FA and clears the stored secret.
func (s *Service) Disable2FA(ctx context.Context, userID uuid.UUID) error {
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{"two_fa_enabled": false, "totp_secret": ""}).Error; err != nil {
		return fmt.Errorf("failed to disable 2FA: %w", err)
	}
	return nil
}

// GetUser returns a user by id.
func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// SetEmailNotifications updates the user's notification preference.
func (s *Service) SetEmailNotifications(ctx context.Context, userID uuid.UUID, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Update("email_notifications", enabled)
	if res.Error != nil {
		return fmt.Errorf("failed to update notification setting: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// IsAdmin reports whether a user holds the admin role.
func (s *Service) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.Role == "admin", nil
}

// ValidateToken checks a JWT and returns the embedded user id.
func (s *Service) ValidateToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidCredentials
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, ErrInvalidCredentials
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, ErrInvalidCredentials
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, ErrInvalidCredentials
	}
	return userID, nil
}

func (s *Service) generateToken(userID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour * time.Duration(s.jwtExpirationHours)).Unix(),
		"iat": time.Now().Unix(),
	})
	return token.SignedString([]byte(s.jwtSecret))
}
