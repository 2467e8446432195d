package repository

import (
	"context"

	"barbershop-payments/internal/model"

	"gorm.io/gorm"
)

type OAuthStateRepository interface {
	Create(ctx context.Context, state *model.OAuthState) error
	// Consume deletes the state and returns it. Only one caller can ever
	// observe a given state; every other call gets gorm.ErrRecordNotFound.
	Consume(ctx context.Context, state string) (*model.OAuthState, error)
}

type oauthStateRepoImpl struct {
	db *gorm.DB
}

func NewOAuthStateRepository(db *gorm.DB) OAuthStateRepository {
	return &oauthStateRepoImpl{
		db: db,
	}
}

func (r *oauthStateRepoImpl) Create(ctx context.Context, state *model.OAuthState) error {
	return r.db.WithContext(ctx).Create(state).Error
}

func (r *oauthStateRepoImpl) Consume(ctx context.Context, state string) (*model.OAuthState, error) {
	var consumed model.OAuthState
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("state = ?", state).First(&consumed).Error; err != nil {
			return err
		}

		result := tx.Where("state = ?", state).Delete(&model.OAuthState{})
		if result.Error != nil {
			return result.Error
		}
		// lost the race against a concurrent callback
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &consumed, nil
}
