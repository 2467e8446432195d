package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"barbershop-payments/internal/model"
	"barbershop-payments/internal/repository"
	"barbershop-payments/internal/security"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type DecryptedCredential struct {
	SellerID        string
	AccessToken     string
	RefreshToken    string
	PublicKey       string
	ProcessorUserID string
	ExpiresAt       *time.Time
}

type ConnectionStatus struct {
	Connected       bool       `json:"connected"`
	ProcessorUserID string     `json:"processor_user_id,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

// CredentialVault is the only place OAuth tokens exist in plaintext.
type CredentialVault interface {
	Get(ctx context.Context, sellerID string) (*DecryptedCredential, error)
	// Put stores through tx when given so it can commit with other writes.
	Put(ctx context.Context, tx *gorm.DB, credential *DecryptedCredential) error
	Disconnect(ctx context.Context, sellerID string) error
	Status(ctx context.Context, sellerID string) (*ConnectionStatus, error)
}

type credentialVaultImpl struct {
	db             *gorm.DB
	cipher         *security.TokenCipher
	credentialRepo repository.CredentialRepository
	log            *zap.Logger
}

func NewCredentialVault(
	db *gorm.DB,
	cipher *security.TokenCipher,
	credentialRepo repository.CredentialRepository,
	log *zap.Logger,
) CredentialVault {
	return &credentialVaultImpl{
		db:             db,
		cipher:         cipher,
		credentialRepo: credentialRepo,
		log:            log,
	}
}

func (v *credentialVaultImpl) Get(ctx context.Context, sellerID string) (*DecryptedCredential, error) {
	stored, err := v.credentialRepo.GetBySellerID(ctx, sellerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSellerNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("load seller credential: %w", err)
	}

	accessToken, err := v.cipher.Decrypt(stored.EncryptedAccessToken, sellerID)
	if err != nil {
		v.log.Error("seller credential failed to decrypt", zap.String("seller_id", sellerID), zap.Error(err))
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}

	var refreshToken string
	if stored.EncryptedRefreshToken != "" {
		refreshToken, err = v.cipher.Decrypt(stored.EncryptedRefreshToken, sellerID)
		if err != nil {
			return nil, fmt.Errorf("decrypt refresh token: %w", err)
		}
	}

	return &DecryptedCredential{
		SellerID:        sellerID,
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		PublicKey:       stored.PublicKey,
		ProcessorUserID: stored.ProcessorUserID,
		ExpiresAt:       stored.ExpiresAt,
	}, nil
}

// Put encrypts both tokens before touching storage; a cipher failure writes
// nothing.
func (v *credentialVaultImpl) Put(ctx context.Context, tx *gorm.DB, credential *DecryptedCredential) error {
	encryptedAccess, err := v.cipher.Encrypt(credential.AccessToken, credential.SellerID)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}

	var encryptedRefresh string
	if credential.RefreshToken != "" {
		encryptedRefresh, err = v.cipher.Encrypt(credential.RefreshToken, credential.SellerID)
		if err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}

	if tx == nil {
		tx = v.db
	}
	err = v.credentialRepo.Upsert(ctx, tx, &model.OAuthCredential{
		SellerID:              credential.SellerID,
		EncryptedAccessToken:  encryptedAccess,
		EncryptedRefreshToken: encryptedRefresh,
		PublicKey:             credential.PublicKey,
		ProcessorUserID:       credential.ProcessorUserID,
		ExpiresAt:             credential.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("store seller credential: %w", err)
	}

	return nil
}

func (v *credentialVaultImpl) Disconnect(ctx context.Context, sellerID string) error {
	err := v.credentialRepo.Delete(ctx, sellerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSellerNotConnected
	}
	if err != nil {
		return fmt.Errorf("delete seller credential: %w", err)
	}

	v.log.Info("seller disconnected", zap.String("seller_id", sellerID))
	return nil
}

func (v *credentialVaultImpl) Status(ctx context.Context, sellerID string) (*ConnectionStatus, error) {
	stored, err := v.credentialRepo.GetBySellerID(ctx, sellerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &ConnectionStatus{Connected: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load seller credential: %w", err)
	}

	return &ConnectionStatus{
		Connected:       true,
		ProcessorUserID: stored.ProcessorUserID,
		ExpiresAt:       stored.ExpiresAt,
	}, nil
}
