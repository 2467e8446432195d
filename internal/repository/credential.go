package repository

import (
	"context"
	"time"

	"barbershop-payments/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CredentialRepository interface {
	Upsert(ctx context.Context, tx *gorm.DB, credential *model.OAuthCredential) error
	GetBySellerID(ctx context.Context, sellerID string) (*model.OAuthCredential, error)
	Delete(ctx context.Context, sellerID string) error
}

type credentialRepoImpl struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepoImpl{
		db: db,
	}
}

// Upsert keeps exactly one credential per seller; re-authorising overwrites it.
func (r *credentialRepoImpl) Upsert(ctx context.Context, tx *gorm.DB, credential *model.OAuthCredential) error {
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "seller_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"encrypted_access_token":  credential.EncryptedAccessToken,
			"encrypted_refresh_token": credential.EncryptedRefreshToken,
			"public_key":              credential.PublicKey,
			"processor_user_id":       credential.ProcessorUserID,
			"expires_at":              credential.ExpiresAt,
			"updated_at":              time.Now(),
		}),
	}).Create(credential).Error
}

func (r *credentialRepoImpl) GetBySellerID(ctx context.Context, sellerID string) (*model.OAuthCredential, error) {
	var credential model.OAuthCredential
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		First(&credential).Error
	if err != nil {
		return nil, err
	}

	return &credential, nil
}

func (r *credentialRepoImpl) Delete(ctx context.Context, sellerID string) error {
	result := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Delete(&model.OAuthCredential{})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}
