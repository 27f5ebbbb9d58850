package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	apperrors "splithaus/internal/errors"
	"splithaus/internal/logger"
	"splithaus/internal/models"
	"splithaus/internal/splitwise"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type userService struct {
	db     *gorm.DB
	client *splitwise.Client
}

// NewUserService creates a new user service.
func NewUserService(db *gorm.DB, client *splitwise.Client) UserServicer {
	return &userService{db: db, client: client}
}

// Register creates a new account with a bcrypt-hashed password.
func (s *userService) Register(email, password, name string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if email == "" || name == "" {
		return nil, apperrors.ErrInvalidInput
	}
	if len(password) < 8 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Password must be at least 8 characters")
	}

	var existing models.User
	err := s.db.First(&existing, "email = ?", email).Error
	if err == nil {
		// An imported placeholder account can be claimed by registering
		// with its email; anything else is a duplicate.
		if existing.PasswordHash != "" {
			return nil, apperrors.ErrDuplicateEmail
		}
		hash, hashErr := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if hashErr != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, hashErr)
		}
		updates := map[string]interface{}{"password_hash": string(hash), "name": name}
		if updateErr := s.db.Model(&existing).Updates(updates).Error; updateErr != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, updateErr)
		}
		existing.PasswordHash = string(hash)
		existing.Name = name
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		Name:         name,
	}
	if err := s.db.Create(user).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return user, nil
}

// Login verifies credentials. Accounts without a password (imported
// placeholders) cannot log in this way.
func (s *userService) Login(email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	if err := s.db.First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if user.PasswordHash == "" {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}
	return &user, nil
}

// GetUserByID fetches a user by id.
func (s *userService) GetUserByID(id string) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &user, nil
}

// SearchByEmail finds users whose email contains the query. Used when
// adding household members.
func (s *userService) SearchByEmail(query string, limit int) ([]models.User, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if len(query) < 2 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Search query must be at least 2 characters")
	}
	if limit <= 0 || limit > 25 {
		limit = 10
	}

	var users []models.User
	if err := s.db.Where("email LIKE ?", "%"+query+"%").Limit(limit).Order("email").Find(&users).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return users, nil
}

// ConnectWithCode completes the OAuth connect flow: it exchanges the code,
// fetches the Splitwise profile, and stores the credential. When userID is
// set (connect initiated from a session) the credential attaches to that
// account; otherwise matching prefers the stored Splitwise id, then the
// profile email, and falls back to creating an account.
func (s *userService) ConnectWithCode(ctx context.Context, userID, code, redirectURI string) (*models.User, error) {
	if strings.TrimSpace(code) == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Missing authorization code")
	}

	tokens, err := s.client.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return nil, err
	}
	profile, err := s.client.GetCurrentUser(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	remoteID := strconv.FormatInt(profile.ID, 10)
	var user *models.User
	if userID != "" {
		user, err = s.sessionConnectTarget(userID, remoteID)
	} else {
		user, err = s.findConnectTarget(remoteID, profile)
	}
	if err != nil {
		return nil, err
	}

	user.SplitwiseID = &remoteID
	user.SplitwiseAccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		user.SplitwiseRefreshToken = tokens.RefreshToken
	}
	user.SplitwiseTokenType = tokens.TokenType
	user.SplitwiseTokenExpiresAt = tokens.ExpiresAt(time.Now())

	if err := s.db.Save(user).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	logger.Get().Infow("splitwise account connected", "user_id", user.ID, "splitwise_id", remoteID)
	return user, nil
}

// sessionConnectTarget resolves the connect target for a session-initiated
// flow. A remote identity already attached to a different account is
// rejected rather than silently moved.
func (s *userService) sessionConnectTarget(userID, remoteID string) (*models.User, error) {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return nil, err
	}

	var holder models.User
	err = s.db.First(&holder, "splitwise_id = ?", remoteID).Error
	if err == nil && holder.ID != user.ID {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput,
			"This Splitwise account is already connected to another user")
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return user, nil
}

func (s *userService) findConnectTarget(remoteID string, profile *splitwise.RemoteUser) (*models.User, error) {
	var user models.User
	err := s.db.First(&user, "splitwise_id = ?", remoteID).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	email := strings.ToLower(strings.TrimSpace(profile.Email))
	if email != "" {
		err = s.db.First(&user, "email = ?", email).Error
		if err == nil {
			return &user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	if email == "" {
		email = "splitwise_" + remoteID + "@local.invalid"
	}

	return &models.User{
		Email: email,
		Name:  profile.DisplayName(),
	}, nil
}

// ConnectionStatus reports whether the user has a Splitwise credential and,
// if so, the linked remote id.
func (s *userService) ConnectionStatus(userID string) (bool, string, error) {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return false, "", err
	}
	if !user.SplitwiseConnected() {
		return false, "", nil
	}
	remoteID := ""
	if user.SplitwiseID != nil {
		remoteID = *user.SplitwiseID
	}
	return true, remoteID, nil
}
