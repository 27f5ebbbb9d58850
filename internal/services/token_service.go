package services

import (
	"context"
	"errors"
	"time"

	apperrors "splithaus/internal/errors"
	"splithaus/internal/logger"
	"splithaus/internal/metrics"
	"splithaus/internal/models"
	"splithaus/internal/splitwise"

	"gorm.io/gorm"
)

type tokenService struct {
	db     *gorm.DB
	client *splitwise.Client
}

// NewTokenService creates a new token service.
func NewTokenService(db *gorm.DB, client *splitwise.Client) TokenServicer {
	return &tokenService{db: db, client: client}
}

// WithAccessToken loads the user's stored access token and runs fn with it.
// When fn fails with an unauthenticated classification, the refresh token is
// exchanged for a new pair, the rotated credential is persisted, and fn runs
// exactly once more with the fresh token. A second auth failure is terminal.
func (s *tokenService) WithAccessToken(ctx context.Context, userID string, fn func(token string) error) error {
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrUserNotFound
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if !user.SplitwiseConnected() {
		return apperrors.ErrLedgerNotConnected
	}

	err := fn(user.SplitwiseAccessToken)
	if err == nil || !splitwise.IsUnauthenticated(err) {
		return err
	}

	log := logger.Get()
	log.Infow("access token rejected, refreshing", "user_id", userID)

	tokens, refreshErr := s.client.RefreshToken(ctx, user.SplitwiseRefreshToken)
	if refreshErr != nil {
		metrics.TokenRefreshTotal.WithLabelValues("failed").Inc()
		log.Warnw("token refresh failed", "user_id", userID, "error", refreshErr)
		// The caller acts on the auth failure that started this; the refresh
		// error survives only as the wrapped detail.
		return apperrors.Wrap(apperrors.ErrLedgerUnauthenticated, refreshErr)
	}

	// Persist the rotated credential before retrying so a crash between the
	// grant and the retry cannot strand the only valid refresh token.
	updates := map[string]interface{}{
		"splitwise_access_token": tokens.AccessToken,
		"splitwise_token_type":   tokens.TokenType,
	}
	if tokens.RefreshToken != "" {
		updates["splitwise_refresh_token"] = tokens.RefreshToken
	}
	if at := tokens.ExpiresAt(time.Now()); at != nil {
		updates["splitwise_token_expires_at"] = at
	}
	if err := s.db.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("failed").Inc()
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	metrics.TokenRefreshTotal.WithLabelValues("ok").Inc()

	return fn(tokens.AccessToken)
}
