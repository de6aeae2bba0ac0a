package businessflow_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/donation-ledger/app/dto"
	"github.com/amirphl/donation-ledger/app/services"
	businessflow "github.com/amirphl/donation-ledger/business_flow"
	"github.com/amirphl/donation-ledger/models"
	testingutil "github.com/amirphl/donation-ledger/testing"
	"github.com/amirphl/donation-ledger/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAdminLogin(t *testing.T) {
	ctx := context.Background()
	store := testingutil.NewMemoryStore()

	tokenService, err := services.NewTokenService(time.Hour, 24*time.Hour, "test-issuer", "test-audience", false, "", "", strings.Repeat("x", 32))
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(testingutil.TestAdminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	active := &models.Admin{Username: "treasurer", PasswordHash: string(hash), IsActive: utils.ToPtr(true)}
	require.NoError(t, store.Admins().Save(ctx, active))
	inactive := &models.Admin{Username: "retired", PasswordHash: string(hash), IsActive: utils.ToPtr(false)}
	require.NoError(t, store.Admins().Save(ctx, inactive))

	flow := businessflow.NewAdminAuthFlow(store.Admins(), store.AuditLogs(), tokenService)
	metadata := businessflow.NewClientMetadata("127.0.0.1", "admin-console")

	t.Run("Success", func(t *testing.T) {
		resp, err := flow.Login(ctx, &dto.AdminLoginRequest{Username: "treasurer", Password: testingutil.TestAdminPassword}, metadata)
		require.NoError(t, err)
		assert.Equal(t, active.ID, resp.Admin.ID)
		assert.Equal(t, "Bearer", resp.Session.TokenType)

		claims, err := tokenService.ValidateAdminToken(resp.Session.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, active.ID, claims.AdminID)

		stored, err := store.Admins().ByID(ctx, active.ID)
		require.NoError(t, err)
		assert.NotNil(t, stored.LastLoginAt)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := flow.Login(ctx, &dto.AdminLoginRequest{Username: "treasurer", Password: "not-the-password"}, metadata)
		assert.True(t, businessflow.IsIncorrectPassword(err))
	})

	t.Run("UnknownUserLooksLikeWrongPassword", func(t *testing.T) {
		_, err := flow.Login(ctx, &dto.AdminLoginRequest{Username: "ghost", Password: testingutil.TestAdminPassword}, metadata)
		require.Error(t, err)
		assert.True(t, businessflow.IsIncorrectPassword(err))

		var be *businessflow.BusinessError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, "ADMIN_INCORRECT_PASSWORD", be.Code)
	})

	t.Run("InactiveAccount", func(t *testing.T) {
		_, err := flow.Login(ctx, &dto.AdminLoginRequest{Username: "retired", Password: testingutil.TestAdminPassword}, metadata)
		assert.True(t, businessflow.IsAccountInactive(err))
	})

	var ok, failed int
	for _, a := range store.AuditEntries() {
		switch a.Action {
		case models.AuditActionAdminLoginSuccess:
			ok++
		case models.AuditActionAdminLoginFailed:
			failed++
			require.NotNil(t, a.IPAddress)
			assert.Equal(t, "127.0.0.1", *a.IPAddress)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 3, failed)
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	store := testingutil.NewMemoryStore()
	tokenService, err := services.NewTokenService(time.Hour, 24*time.Hour, "test-issuer", "test-audience", false, "", "", strings.Repeat("x", 32))
	require.NoError(t, err)
	flow := businessflow.NewAdminAuthFlow(store.Admins(), store.AuditLogs(), tokenService)

	hash, err := bcrypt.GenerateFromPassword([]byte(testingutil.TestAdminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	admin, created, err := flow.EnsureAdmin(ctx, " treasurer ", string(hash))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "treasurer", admin.Username)

	again, created, err := flow.EnsureAdmin(ctx, "treasurer", string(hash))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, admin.ID, again.ID)

	_, err = flow.Login(ctx, &dto.AdminLoginRequest{Username: "treasurer", Password: testingutil.TestAdminPassword}, nil)
	require.NoError(t, err)

	_, _, err = flow.EnsureAdmin(ctx, "auditor", "plaintext")
	assert.True(t, businessflow.IsValidationError(err))
	_, _, err = flow.EnsureAdmin(ctx, "  ", string(hash))
	assert.True(t, businessflow.IsValidationError(err))
}

func TestAdminRefreshAndLogout(t *testing.T) {
	ctx := context.Background()
	store := testingutil.NewMemoryStore()
	tokenService, err := services.NewTokenService(time.Hour, 24*time.Hour, "test-issuer", "test-audience", false, "", "", strings.Repeat("x", 32))
	require.NoError(t, err)
	flow := businessflow.NewAdminAuthFlow(store.Admins(), store.AuditLogs(), tokenService)
	metadata := businessflow.NewClientMetadata("127.0.0.1", "admin-console")

	hash, err := bcrypt.GenerateFromPassword([]byte(testingutil.TestAdminPassword), bcrypt.MinCost)
	require.NoError(t, err)
	admin := &models.Admin{Username: "treasurer", PasswordHash: string(hash), IsActive: utils.ToPtr(true)}
	require.NoError(t, store.Admins().Save(ctx, admin))

	login, err := flow.Login(ctx, &dto.AdminLoginRequest{Username: "treasurer", Password: testingutil.TestAdminPassword}, metadata)
	require.NoError(t, err)

	t.Run("RejectsEmptyAndAccessTokens", func(t *testing.T) {
		_, err := flow.Refresh(ctx, &dto.AdminRefreshRequest{}, metadata)
		assert.True(t, businessflow.IsInvalidSession(err))
		_, err = flow.Refresh(ctx, &dto.AdminRefreshRequest{RefreshToken: login.Session.AccessToken}, metadata)
		assert.True(t, businessflow.IsInvalidSession(err))
		assert.ErrorIs(t, err, services.ErrTokenWrongType)
	})

	session, err := flow.Refresh(ctx, &dto.AdminRefreshRequest{RefreshToken: login.Session.RefreshToken}, metadata)
	require.NoError(t, err)
	claims, err := tokenService.ValidateAdminToken(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, claims.AdminID)

	_, err = flow.Refresh(ctx, &dto.AdminRefreshRequest{RefreshToken: login.Session.RefreshToken}, metadata)
	assert.ErrorIs(t, err, services.ErrTokenRevoked)

	require.NoError(t, flow.Logout(ctx, admin.ID, session.AccessToken, &dto.AdminLogoutRequest{RefreshToken: session.RefreshToken}, metadata))
	_, err = tokenService.ValidateAdminToken(session.AccessToken)
	assert.ErrorIs(t, err, services.ErrTokenRevoked)
	_, err = flow.Refresh(ctx, &dto.AdminRefreshRequest{RefreshToken: session.RefreshToken}, metadata)
	assert.ErrorIs(t, err, services.ErrTokenRevoked)

	err = flow.Logout(ctx, admin.ID, login.Session.AccessToken, &dto.AdminLogoutRequest{RefreshToken: "junk"}, metadata)
	assert.True(t, businessflow.IsInvalidSession(err))

	t.Run("DeactivatedAdminCannotRefresh", func(t *testing.T) {
		again, err := flow.Login(ctx, &dto.AdminLoginRequest{Username: "treasurer", Password: testingutil.TestAdminPassword}, metadata)
		require.NoError(t, err)

		admin.IsActive = utils.ToPtr(false)
		require.NoError(t, store.Admins().Save(ctx, admin))

		_, err = flow.Refresh(ctx, &dto.AdminRefreshRequest{RefreshToken: again.Session.RefreshToken}, metadata)
		assert.True(t, businessflow.IsAccountInactive(err))
	})

	var refreshed, loggedOut int
	for _, a := range store.AuditEntries() {
		switch a.Action {
		case models.AuditActionAdminTokenRefreshed:
			refreshed++
		case models.AuditActionAdminLogout:
			loggedOut++
			require.NotNil(t, a.ActorID)
			assert.Equal(t, admin.ID, *a.ActorID)
		}
	}
	assert.Equal(t, 1, refreshed)
	assert.Equal(t, 1, loggedOut)
}
