package service

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"barbershop-payments/internal/client"
	"barbershop-payments/internal/model"
	"barbershop-payments/internal/repository"
	"barbershop-payments/internal/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func stateFromURL(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestOAuthInitiateRequiresUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.oauth.Initiate(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestOAuthCompleteStoresEncryptedCredential(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedProfile(t, "user-1", "João Barbeiro", "joao@example.test")
	env.mp.exchangeToken = &model.OAuthToken{
		AccessToken:  "APP_USR-access",
		RefreshToken: "TG-refresh",
		UserID:       "987654",
		ExpiresIn:    3600,
	}

	authURL, err := env.oauth.Initiate(ctx, "user-1")
	require.NoError(t, err)
	state := stateFromURL(t, authURL)

	seller, err := env.oauth.Complete(ctx, "code-1", state)
	require.NoError(t, err)
	assert.Equal(t, "João Barbeiro", seller.BusinessName)
	assert.Equal(t, "987654", seller.ProcessorUserID)

	stored, err := env.credentialRepo.GetBySellerID(ctx, seller.ID)
	require.NoError(t, err)
	assert.NotContains(t, stored.EncryptedAccessToken, "APP_USR-access")
	assert.NotContains(t, stored.EncryptedRefreshToken, "TG-refresh")
	require.NotNil(t, stored.ExpiresAt)

	cred, err := env.vault.Get(ctx, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, "APP_USR-access", cred.AccessToken)
	assert.Equal(t, "TG-refresh", cred.RefreshToken)
}

func TestOAuthStateReplayIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mp.exchangeToken = &model.OAuthToken{AccessToken: "APP_USR-access", UserID: "1"}

	authURL, err := env.oauth.Initiate(ctx, "user-1")
	require.NoError(t, err)
	state := stateFromURL(t, authURL)

	seller, err := env.oauth.Complete(ctx, "code-1", state)
	require.NoError(t, err)
	assert.Equal(t, defaultBusinessName, seller.BusinessName)

	_, err = env.oauth.Complete(ctx, "code-1", state)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = env.oauth.Complete(ctx, "code-1", "never-issued")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestOAuthExpiredState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mp.exchangeToken = &model.OAuthToken{AccessToken: "APP_USR-access", UserID: "1"}

	authURL, err := env.oauth.Initiate(ctx, "user-1")
	require.NoError(t, err)

	env.oauth.(*oauthServiceImpl).now = func() time.Time { return time.Now().Add(11 * time.Minute) }

	_, err = env.oauth.Complete(ctx, "code-1", stateFromURL(t, authURL))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestOAuthReauthorizeOverwritesCredential(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	connect := func(token string) *model.Seller {
		env.mp.exchangeToken = &model.OAuthToken{AccessToken: token, UserID: "1"}
		authURL, err := env.oauth.Initiate(ctx, "user-1")
		require.NoError(t, err)
		seller, err := env.oauth.Complete(ctx, "code", stateFromURL(t, authURL))
		require.NoError(t, err)
		return seller
	}

	first := connect("APP_USR-first")
	second := connect("APP_USR-second")
	assert.Equal(t, first.ID, second.ID)

	cred, err := env.vault.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "APP_USR-second", cred.AccessToken)
}

func TestOAuthExchangeFailureSurfacesProcessorError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mp.exchangeErr = &client.ProcessorError{Status: 400, Body: `{"error":"invalid_grant"}`}

	authURL, err := env.oauth.Initiate(ctx, "user-1")
	require.NoError(t, err)

	_, err = env.oauth.Complete(ctx, "bad", stateFromURL(t, authURL))
	var perr *client.ProcessorError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 400, perr.Status)

	_, err = env.sellerRepo.GetByUserID(ctx, "user-1")
	assert.Error(t, err)
}

type failingCredentialRepo struct {
	repository.CredentialRepository
}

func (failingCredentialRepo) Upsert(ctx context.Context, tx *gorm.DB, credential *model.OAuthCredential) error {
	return errors.New("disk full")
}

func TestOAuthCompleteLeavesNoSellerWhenCredentialWriteFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mp.exchangeToken = &model.OAuthToken{AccessToken: "APP_USR-access", UserID: "1"}

	cipher, err := security.NewTokenCipher("vault-secret")
	require.NoError(t, err)
	vault := NewCredentialVault(env.db, cipher, failingCredentialRepo{env.credentialRepo}, zap.NewNop())
	oauth := NewOAuthService(env.db, env.mp, repository.NewOAuthStateRepository(env.db),
		env.sellerRepo, repository.NewProfileRepository(env.db), vault, 10*time.Minute, zap.NewNop())

	authURL, err := oauth.Initiate(ctx, "user-1")
	require.NoError(t, err)

	_, err = oauth.Complete(ctx, "code-1", stateFromURL(t, authURL))
	require.Error(t, err)

	_, err = env.sellerRepo.GetByUserID(ctx, "user-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
