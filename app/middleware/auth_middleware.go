// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"errors"
	"strings"

	"github.com/amirphl/donation-ledger/app/dto"
	"github.com/amirphl/donation-ledger/app/services"
	"github.com/gofiber/fiber/v3"
)

// Locals keys set by the authentication middleware
const (
	LocalDonorID     = "donor_id"
	LocalAdminID     = "admin_id"
	LocalTokenID     = "token_id"
	LocalAccessToken = "access_token"
	LocalTokenClaims = "token_claims"
	LocalRequestID   = "request_id"
)

// AuthMiddleware handles JWT token validation for protected endpoints
type AuthMiddleware struct {
	tokenService services.TokenService
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokenService services.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

// Authenticate validates a donor access token
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		token, code, message := bearerToken(c)
		if code != "" {
			return unauthorized(c, message, code)
		}

		claims, err := m.tokenService.ValidateDonorToken(token)
		if err != nil {
			return tokenFailure(c, err)
		}

		c.Locals(LocalDonorID, claims.DonorID)
		c.Locals(LocalTokenID, claims.TokenID)
		c.Locals(LocalTokenClaims, claims)

		if requestID := c.Get("X-Request-ID"); requestID != "" {
			c.Locals(LocalRequestID, requestID)
		}

		return c.Next()
	}
}

// AdminAuthenticate validates an admin access token. Donor tokens are rejected.
func (m *AuthMiddleware) AdminAuthenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		token, code, message := bearerToken(c)
		if code != "" {
			return unauthorized(c, message, code)
		}

		adminClaims, err := m.tokenService.ValidateAdminToken(token)
		if err != nil {
			return tokenFailure(c, err)
		}

		c.Locals(LocalAdminID, adminClaims.AdminID)
		c.Locals(LocalTokenID, adminClaims.TokenID)
		c.Locals(LocalAccessToken, token)
		c.Locals(LocalTokenClaims, adminClaims)

		if requestID := c.Get("X-Request-ID"); requestID != "" {
			c.Locals(LocalRequestID, requestID)
		}

		return c.Next()
	}
}

// bearerToken extracts the token from the Authorization header. A non-empty
// code describes why the header was rejected.
func bearerToken(c fiber.Ctx) (token, code, message string) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", "MISSING_AUTHORIZATION_HEADER", "Authorization header is required"
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "INVALID_AUTHORIZATION_FORMAT", "Invalid authorization header format. Expected 'Bearer <token>'"
	}

	token = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "MISSING_ACCESS_TOKEN", "Access token is required"
	}
	return token, "", ""
}

func tokenFailure(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrTokenExpired):
		return unauthorized(c, "Access token has expired", "TOKEN_EXPIRED")
	case errors.Is(err, services.ErrTokenRevoked):
		return unauthorized(c, "Access token has been revoked", "TOKEN_REVOKED")
	case errors.Is(err, services.ErrTokenInvalid), errors.Is(err, services.ErrTokenWrongType):
		return unauthorized(c, "Invalid access token", "TOKEN_INVALID")
	default:
		return unauthorized(c, "Token validation failed", "TOKEN_VALIDATION_FAILED")
	}
}

func unauthorized(c fiber.Ctx, message, code string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   dto.ErrorDetail{Code: code},
	})
}

// GetDonorIDFromContext extracts the donor ID from the request context
func GetDonorIDFromContext(c fiber.Ctx) (uint, bool) {
	donorID, ok := c.Locals(LocalDonorID).(uint)
	return donorID, ok && donorID != 0
}

// GetAdminIDFromContext extracts the admin ID from the request context
func GetAdminIDFromContext(c fiber.Ctx) (uint, bool) {
	adminID, ok := c.Locals(LocalAdminID).(uint)
	return adminID, ok && adminID != 0
}

// GetAccessTokenFromContext returns the validated admin bearer token
func GetAccessTokenFromContext(c fiber.Ctx) (string, bool) {
	token, ok := c.Locals(LocalAccessToken).(string)
	return token, ok && token != ""
}
