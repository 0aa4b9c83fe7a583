package challenge

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/safetrack/trustsync/services/challenge"
)

const (
	UserIDKey = "_challenge_user_id"
	ClaimsKey = "_challenge_claims"
)

func RequireChallenge(challengeService *challenge.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Challenge token required")
			}

			claims, err := challengeService.Validate(tokenString)
			if err != nil {
				switch {
				case errors.Is(err, challenge.ErrExpiredToken):
					return echo.NewHTTPError(http.StatusUnauthorized, "Challenge token has expired")
				case errors.Is(err, challenge.ErrWrongPurpose):
					return echo.NewHTTPError(http.StatusUnauthorized, "Token is not a challenge token")
				default:
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid challenge token")
				}
			}

			c.Set(UserIDKey, claims.UserID)
			c.Set(ClaimsKey, claims)

			return next(c)
		}
	}
}

func GetUserID(c echo.Context) uint {
	if userID, ok := c.Get(UserIDKey).(uint); ok {
		return userID
	}
	return 0
}

func GetClaims(c echo.Context) *challenge.Claims {
	if claims, ok := c.Get(ClaimsKey).(*challenge.Claims); ok {
		return claims
	}
	return nil
}
