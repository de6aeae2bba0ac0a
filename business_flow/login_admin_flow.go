package businessflow

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/amirphl/donation-ledger/app/dto"
	"github.com/amirphl/donation-ledger/app/services"
	"github.com/amirphl/donation-ledger/models"
	"github.com/amirphl/donation-ledger/repository"
	"github.com/amirphl/donation-ledger/utils"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuthFlow authenticates the operators allowed to disburse funds
type AdminAuthFlow interface {
	Login(ctx context.Context, req *dto.AdminLoginRequest, metadata *ClientMetadata) (*dto.AdminLoginResponse, error)
	// Refresh rotates a refresh token. The presented token cannot be reused.
	Refresh(ctx context.Context, req *dto.AdminRefreshRequest, metadata *ClientMetadata) (*dto.AdminSessionDTO, error)
	// Logout revokes the access token and, when given, the refresh token
	Logout(ctx context.Context, adminID uint, accessToken string, req *dto.AdminLogoutRequest, metadata *ClientMetadata) error
	// EnsureAdmin creates an active admin with the given bcrypt hash unless the
	// username is taken. created is false when the admin already existed.
	EnsureAdmin(ctx context.Context, username, passwordHash string) (admin *dto.AdminDTO, created bool, err error)
}

type AdminAuthFlowImpl struct {
	adminRepo    repository.AdminRepository
	auditRepo    repository.AuditLogRepository
	tokenService services.TokenService
}

func NewAdminAuthFlow(adminRepo repository.AdminRepository, auditRepo repository.AuditLogRepository, tokenService services.TokenService) AdminAuthFlow {
	return &AdminAuthFlowImpl{
		adminRepo:    adminRepo,
		auditRepo:    auditRepo,
		tokenService: tokenService,
	}
}

func (af *AdminAuthFlowImpl) Login(ctx context.Context, req *dto.AdminLoginRequest, metadata *ClientMetadata) (*dto.AdminLoginResponse, error) {
	if req == nil || len(req.Username) == 0 || len(req.Password) == 0 {
		return nil, NewBusinessError("ADMIN_LOGIN_VALIDATION_FAILED", "Admin login validation failed", ErrIncorrectPassword)
	}

	admin, err := af.adminRepo.ByUsername(ctx, req.Username)
	if err != nil {
		return nil, NewBusinessError("ADMIN_LOOKUP_FAILED", "Failed to lookup admin", err)
	}
	if admin == nil {
		af.auditFailure(ctx, nil, req.Username, ErrAdminNotFound, metadata)
		// indistinguishable from a wrong password
		return nil, NewBusinessError("ADMIN_INCORRECT_PASSWORD", "Incorrect username or password", ErrIncorrectPassword)
	}
	if !utils.IsTrue(admin.IsActive) {
		af.auditFailure(ctx, &admin.ID, req.Username, ErrAccountInactive, metadata)
		return nil, NewBusinessError("ADMIN_INACTIVE", "Admin account is inactive", ErrAccountInactive)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
		af.auditFailure(ctx, &admin.ID, req.Username, ErrIncorrectPassword, metadata)
		return nil, NewBusinessError("ADMIN_INCORRECT_PASSWORD", "Incorrect username or password", ErrIncorrectPassword)
	}

	accessToken, refreshToken, err := af.tokenService.GenerateAdminTokens(admin.ID)
	if err != nil {
		return nil, NewBusinessError("TOKEN_GENERATION_FAILED", "Failed to generate tokens", err)
	}

	if err := af.adminRepo.UpdateLastLogin(ctx, admin.ID, utils.UTCNow()); err != nil {
		log.Printf("failed to update last login for admin %d: %v", admin.ID, err)
	}

	_ = createAuditLog(ctx, af.auditRepo, auditEntry{
		actorType: models.AuditActorAdmin,
		actorID:   &admin.ID,
		action:    models.AuditActionAdminLoginSuccess,
		desc:      "Admin logged in",
		success:   true,
	}, metadata)

	return &dto.AdminLoginResponse{
		Admin:   ToAdminDTOModel(*admin),
		Session: ToAdminSessionDTO(accessToken, refreshToken),
	}, nil
}

func (af *AdminAuthFlowImpl) Refresh(ctx context.Context, req *dto.AdminRefreshRequest, metadata *ClientMetadata) (*dto.AdminSessionDTO, error) {
	if req == nil || len(req.RefreshToken) == 0 {
		return nil, NewBusinessError("ADMIN_REFRESH_VALIDATION_FAILED", "Refresh token is required", ErrInvalidSession)
	}

	adminID, accessToken, refreshToken, err := af.tokenService.RefreshAdminToken(req.RefreshToken)
	if err != nil {
		return nil, NewBusinessError("ADMIN_REFRESH_FAILED", "Refresh token is invalid or expired", errors.Join(ErrInvalidSession, err))
	}

	admin, err := af.adminRepo.ByID(ctx, adminID)
	if err != nil {
		return nil, NewBusinessError("ADMIN_LOOKUP_FAILED", "Failed to lookup admin", err)
	}
	if admin == nil || !utils.IsTrue(admin.IsActive) {
		// the rotated pair must not outlive a deactivated account
		_ = af.tokenService.RevokeToken(accessToken)
		_ = af.tokenService.RevokeToken(refreshToken)
		return nil, NewBusinessError("ADMIN_INACTIVE", "Admin account is inactive", ErrAccountInactive)
	}

	_ = createAuditLog(ctx, af.auditRepo, auditEntry{
		actorType: models.AuditActorAdmin,
		actorID:   &admin.ID,
		action:    models.AuditActionAdminTokenRefreshed,
		desc:      "Admin session refreshed",
		success:   true,
	}, metadata)

	session := ToAdminSessionDTO(accessToken, refreshToken)
	return &session, nil
}

func (af *AdminAuthFlowImpl) Logout(ctx context.Context, adminID uint, accessToken string, req *dto.AdminLogoutRequest, metadata *ClientMetadata) error {
	if err := af.tokenService.RevokeToken(accessToken); err != nil {
		return NewBusinessError("ADMIN_LOGOUT_FAILED", "Failed to revoke access token", errors.Join(ErrInvalidSession, err))
	}
	if req != nil && req.RefreshToken != "" {
		if err := af.tokenService.RevokeToken(req.RefreshToken); err != nil {
			return NewBusinessError("ADMIN_LOGOUT_FAILED", "Failed to revoke refresh token", errors.Join(ErrInvalidSession, err))
		}
	}

	_ = createAuditLog(ctx, af.auditRepo, auditEntry{
		actorType: models.AuditActorAdmin,
		actorID:   &adminID,
		action:    models.AuditActionAdminLogout,
		desc:      "Admin logged out",
		success:   true,
	}, metadata)
	return nil
}

func (af *AdminAuthFlowImpl) auditFailure(ctx context.Context, adminID *uint, username string, cause error, metadata *ClientMetadata) {
	errMsg := cause.Error()
	_ = createAuditLog(ctx, af.auditRepo, auditEntry{
		actorType: models.AuditActorAdmin,
		actorID:   adminID,
		action:    models.AuditActionAdminLoginFailed,
		desc:      "Admin login failed for " + username,
		success:   false,
		errMsg:    &errMsg,
	}, metadata)
}

func (af *AdminAuthFlowImpl) EnsureAdmin(ctx context.Context, username, passwordHash string) (*dto.AdminDTO, bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, false, NewBusinessError("ADMIN_USERNAME_REQUIRED", "Admin username is required", ErrInvalidAdminAccount)
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, false, NewBusinessError("ADMIN_PASSWORD_HASH_INVALID", "Admin password hash is not a bcrypt hash", ErrInvalidAdminAccount)
	}

	existing, err := af.adminRepo.ByUsername(ctx, username)
	if err != nil {
		return nil, false, NewBusinessError("ADMIN_LOOKUP_FAILED", "Failed to lookup admin", err)
	}
	if existing != nil {
		out := ToAdminDTOModel(*existing)
		return &out, false, nil
	}

	admin := &models.Admin{
		Username:     username,
		PasswordHash: passwordHash,
		IsActive:     utils.ToPtr(true),
	}
	if err := af.adminRepo.Save(ctx, admin); err != nil {
		return nil, false, NewBusinessError("ADMIN_CREATE_FAILED", "Failed to create admin", err)
	}

	out := ToAdminDTOModel(*admin)
	return &out, true, nil
}
