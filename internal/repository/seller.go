package repository

import (
	"context"

	"barbershop-payments/internal/model"

	"gorm.io/gorm"
)

type SellerRepository interface {
	Create(ctx context.Context, tx *gorm.DB, seller *model.Seller) error
	Get(ctx context.Context, sellerID string) (*model.Seller, error)
	GetByUserID(ctx context.Context, userID string) (*model.Seller, error)
	UpdateProcessorUserID(ctx context.Context, tx *gorm.DB, sellerID, processorUserID string) error
}

type sellerRepoImpl struct {
	db *gorm.DB
}

func NewSellerRepository(db *gorm.DB) SellerRepository {
	return &sellerRepoImpl{
		db: db,
	}
}

func (r *sellerRepoImpl) Create(ctx context.Context, tx *gorm.DB, seller *model.Seller) error {
	return tx.WithContext(ctx).Create(seller).Error
}

func (r *sellerRepoImpl) Get(ctx context.Context, sellerID string) (*model.Seller, error) {
	var seller model.Seller
	err := r.db.WithContext(ctx).
		Where("id = ?", sellerID).
		First(&seller).Error
	if err != nil {
		return nil, err
	}

	return &seller, nil
}

func (r *sellerRepoImpl) GetByUserID(ctx context.Context, userID string) (*model.Seller, error) {
	var seller model.Seller
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&seller).Error
	if err != nil {
		return nil, err
	}

	return &seller, nil
}

func (r *sellerRepoImpl) UpdateProcessorUserID(ctx context.Context, tx *gorm.DB, sellerID, processorUserID string) error {
	return tx.WithContext(ctx).
		Model(&model.Seller{}).
		Where("id = ?", sellerID).
		Update("processor_user_id", processorUserID).Error
}
