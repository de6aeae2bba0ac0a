package testing

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignDonorToken mints an HS256 donor access token with the claim layout the
// auth service issues. The ledger only validates donor tokens.
func SignDonorToken(secret, issuer, audience string, donorID uint, ttl time.Duration) (string, error) {
	jti := make([]byte, 16)
	if _, err := rand.Read(jti); err != nil {
		return "", err
	}
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"donor_id":   donorID,
		"token_type": "access",
		"jti":        fmt.Sprintf("%x", jti),
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	if audience != "" {
		claims["aud"] = audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
