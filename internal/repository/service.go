package repository

import (
	"context"

	"barbershop-payments/internal/model"

	"gorm.io/gorm"
)

// ServiceRepository reads the barbershop's bookable services.
type ServiceRepository interface {
	FindManyActive(ctx context.Context, serviceIDs []string) ([]*model.Service, error)
}

type serviceRepoImpl struct {
	db *gorm.DB
}

func NewServiceRepository(db *gorm.DB) ServiceRepository {
	return &serviceRepoImpl{db: db}
}

func (r *serviceRepoImpl) FindManyActive(ctx context.Context, serviceIDs []string) ([]*model.Service, error) {
	var services []*model.Service
	err := r.db.WithContext(ctx).
		Where("id IN ?", serviceIDs).
		Where("is_active = ?", true).
		Find(&services).Error

	if err != nil {
		return nil, err
	}

	return services, nil
}
