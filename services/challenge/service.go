package challenge

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/safetrack/trustsync/config"
	"github.com/safetrack/trustsync/services/logging"
	"go.uber.org/zap"
)

const purposeMFAChallenge = "mfa_challenge"

var (
	ErrInvalidToken = errors.New("invalid challenge token")
	ErrExpiredToken = errors.New("challenge token has expired")
	ErrWrongPurpose = errors.New("token is not an MFA challenge token")
	ErrMissingKey   = errors.New("challenge secret key is not configured")
)

// Claims for the short-lived token handed out after first-factor login.
// The client presents it back during MFA verification.
type Claims struct {
	UserID  uint   `json:"user_id"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

type Service struct {
	config *config.ChallengeConfig
	logger *logging.Service
}

func NewService(cfg *config.ChallengeConfig, logger *logging.Service) (*Service, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingKey
	}

	return &Service{
		config: cfg,
		logger: logger,
	}, nil
}

func (s *Service) ExpirySeconds() int {
	return int(s.config.Expiry.Seconds())
}

func (s *Service) Issue(userID uint) (string, error) {
	now := time.Now()
	jti := uuid.New().String()
	claims := Claims{
		UserID:  userID,
		Purpose: purposeMFAChallenge,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.config.Issuer,
			Subject:   fmt.Sprintf("%d", userID),
			Audience:  []string{s.config.Issuer},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.Expiry)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.SecretKey))
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to sign challenge token", zap.Error(err))
		}
		return "", fmt.Errorf("failed to issue challenge token: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("challenge token issued",
			zap.Uint("user_id", userID),
			zap.String("jti", jti))
	}

	return tokenString, nil
}

func (s *Service) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected algorithm: expected HS256, got %s", token.Method.Alg())
		}
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %T", token.Method)
		}
		return []byte(s.config.SecretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			if s.logger != nil {
				s.logger.Warn("challenge token expired")
			}
			return nil, ErrExpiredToken
		}
		if s.logger != nil {
			s.logger.Warn("challenge token validation failed", zap.Error(err))
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Purpose != purposeMFAChallenge {
		if s.logger != nil {
			s.logger.Warn("token presented with wrong purpose",
				zap.String("purpose", claims.Purpose))
		}
		return nil, ErrWrongPurpose
	}

	return claims, nil
}
