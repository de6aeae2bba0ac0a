package services

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amirphl/donation-ledger/utils"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenRevoked   = errors.New("token has been revoked")
	ErrTokenWrongType = errors.New("unexpected token type")
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	claimDonorID = "donor_id"
	claimAdminID = "admin_id"
)

// TokenService validates donor JWTs minted by the auth service and issues
// admin sessions
type TokenService interface {
	ValidateDonorToken(token string) (*TokenClaims, error)
	GenerateAdminTokens(adminID uint) (accessToken, refreshToken string, err error)
	ValidateAdminToken(token string) (*AdminTokenClaims, error)
	RefreshAdminToken(refreshToken string) (adminID uint, newAccessToken, newRefreshToken string, err error)
	RevokeToken(token string) error
	IsTokenRevoked(tokenID string) bool
}

// TokenClaims are the validated claims of a donor token
type TokenClaims struct {
	DonorID   uint      `json:"donor_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	TokenType string    `json:"token_type"`
	TokenID   string    `json:"jti"`
}

// AdminTokenClaims are the validated claims of an admin token
type AdminTokenClaims struct {
	AdminID   uint      `json:"admin_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	TokenType string    `json:"token_type"`
	TokenID   string    `json:"jti"`
}

type subjectClaims struct {
	subjectID uint
	tokenType string
	tokenID   string
	issuedAt  time.Time
	expiresAt time.Time
}

type TokenServiceImpl struct {
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	signingMethod   jwt.SigningMethod
	privateKey      *rsa.PrivateKey
	publicKey       *rsa.PublicKey
	secretKey       []byte
	useRSAKeys      bool
	issuer          string
	audience        string

	mu      sync.RWMutex
	revoked map[string]time.Time // jti -> expiry
}

// NewTokenService creates a token service signing with RS256 or HS256
func NewTokenService(accessTokenTTL, refreshTokenTTL time.Duration, issuer, audience string, useRSAKeys bool, privateKeyPEM, publicKeyPEM, secretKey string) (TokenService, error) {
	svc := &TokenServiceImpl{
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
		useRSAKeys:      useRSAKeys,
		issuer:          issuer,
		audience:        audience,
		revoked:         make(map[string]time.Time),
	}

	if useRSAKeys {
		privateKey, publicKey, err := parseRSAKeys(privateKeyPEM, publicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA keys: %w", err)
		}
		svc.privateKey = privateKey
		svc.publicKey = publicKey
		svc.signingMethod = jwt.SigningMethodRS256
	} else {
		if secretKey == "" {
			return nil, fmt.Errorf("secret key is required when not using RSA keys")
		}
		svc.secretKey = []byte(secretKey)
		svc.signingMethod = jwt.SigningMethodHS256
	}

	return svc, nil
}

func parseRSAKeys(privateKeyPEM, publicKeyPEM string) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	if privateKeyPEM == "" || publicKeyPEM == "" {
		return nil, nil, fmt.Errorf("both private and public keys are required")
	}

	privateKeyBlock, _ := pem.Decode([]byte(privateKeyPEM))
	if privateKeyBlock == nil {
		return nil, nil, fmt.Errorf("failed to decode private key")
	}
	privateKey, err := x509.ParsePKCS1PrivateKey(privateKeyBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	publicKeyBlock, _ := pem.Decode([]byte(publicKeyPEM))
	if publicKeyBlock == nil {
		return nil, nil, fmt.Errorf("failed to decode public key")
	}
	publicKey, err := x509.ParsePKIXPublicKey(publicKeyBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaPublicKey, ok := publicKey.(*rsa.PublicKey)
	if !ok {
		return nil, nil, fmt.Errorf("public key is not RSA")
	}

	return privateKey, rsaPublicKey, nil
}

func (s *TokenServiceImpl) GenerateAdminTokens(adminID uint) (string, string, error) {
	return s.generatePair(claimAdminID, adminID)
}

// ValidateDonorToken accepts only donor access tokens
func (s *TokenServiceImpl) ValidateDonorToken(token string) (*TokenClaims, error) {
	c, err := s.validate(token, claimDonorID, TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	return &TokenClaims{
		DonorID:   c.subjectID,
		TokenType: c.tokenType,
		TokenID:   c.tokenID,
		IssuedAt:  c.issuedAt,
		ExpiresAt: c.expiresAt,
	}, nil
}

// ValidateAdminToken accepts only admin access tokens
func (s *TokenServiceImpl) ValidateAdminToken(token string) (*AdminTokenClaims, error) {
	c, err := s.validate(token, claimAdminID, TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	return &AdminTokenClaims{
		AdminID:   c.subjectID,
		TokenType: c.tokenType,
		TokenID:   c.tokenID,
		IssuedAt:  c.issuedAt,
		ExpiresAt: c.expiresAt,
	}, nil
}

// RefreshAdminToken rotates an admin refresh token. The old refresh token is revoked.
func (s *TokenServiceImpl) RefreshAdminToken(refreshToken string) (uint, string, string, error) {
	c, err := s.validate(refreshToken, claimAdminID, TokenTypeRefresh)
	if err != nil {
		return 0, "", "", fmt.Errorf("invalid refresh token: %w", err)
	}
	s.revoke(c.tokenID, c.expiresAt)
	access, refresh, err := s.GenerateAdminTokens(c.subjectID)
	if err != nil {
		return 0, "", "", err
	}
	return c.subjectID, access, refresh, nil
}

// RevokeToken blacklists a token by jti until it would have expired anyway
func (s *TokenServiceImpl) RevokeToken(token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return ErrTokenInvalid
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return ErrTokenInvalid
	}
	s.revoke(jti, exp.Time)
	return nil
}

func (s *TokenServiceImpl) IsTokenRevoked(tokenID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[tokenID]
	return ok
}

func (s *TokenServiceImpl) revoke(tokenID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := utils.UTCNow()
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}
	s.revoked[tokenID] = expiresAt
}

func (s *TokenServiceImpl) generatePair(subjectClaim string, subjectID uint) (accessToken, refreshToken string, err error) {
	now := utils.UTCNow()

	accessToken, err = s.signClaims(subjectClaim, subjectID, TokenTypeAccess, now, s.accessTokenTTL)
	if err != nil {
		return "", "", err
	}
	refreshToken, err = s.signClaims(subjectClaim, subjectID, TokenTypeRefresh, now, s.refreshTokenTTL)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func (s *TokenServiceImpl) signClaims(subjectClaim string, subjectID uint, tokenType string, now time.Time, ttl time.Duration) (string, error) {
	tokenID, err := generateTokenID()
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		subjectClaim: subjectID,
		"token_type": tokenType,
		"jti":        tokenID,
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
		"iss":        s.issuer,
		"aud":        s.audience,
	}

	token := jwt.NewWithClaims(s.signingMethod, claims)
	if s.useRSAKeys {
		return token.SignedString(s.privateKey)
	}
	return token.SignedString(s.secretKey)
}

func (s *TokenServiceImpl) parse(token string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{s.signingMethod.Alg()}), jwt.WithIssuedAt()}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if s.useRSAKeys {
			return s.publicKey, nil
		}
		return s.secretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *TokenServiceImpl) validate(token, subjectClaim, wantType string) (*subjectClaims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}

	subjectID, ok := claims[subjectClaim].(float64)
	if !ok {
		return nil, ErrTokenInvalid
	}
	tokenType, ok := claims["token_type"].(string)
	if !ok {
		return nil, ErrTokenInvalid
	}
	if tokenType != wantType {
		return nil, ErrTokenWrongType
	}
	tokenID, ok := claims["jti"].(string)
	if !ok {
		return nil, ErrTokenInvalid
	}
	issuedAt, ok := claims["iat"].(float64)
	if !ok {
		return nil, ErrTokenInvalid
	}
	expiresAt, ok := claims["exp"].(float64)
	if !ok {
		return nil, ErrTokenInvalid
	}

	if s.IsTokenRevoked(tokenID) {
		return nil, ErrTokenRevoked
	}

	return &subjectClaims{
		subjectID: uint(subjectID),
		tokenType: tokenType,
		tokenID:   tokenID,
		issuedAt:  time.Unix(int64(issuedAt), 0),
		expiresAt: time.Unix(int64(expiresAt), 0),
	}, nil
}

func generateTokenID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", bytes), nil
}
