package repository

import (
	"context"
	"time"

	"barbershop-payments/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SplitPaymentStats struct {
	Count         int64
	ApprovedCount int64
	TotalRevenue  decimal.Decimal
	SellerRevenue decimal.Decimal
	PlatformFees  decimal.Decimal
}

type SplitPaymentRepository interface {
	Upsert(ctx context.Context, tx *gorm.DB, split *model.SplitPayment) error
	GetByPaymentID(ctx context.Context, paymentID string) (*model.SplitPayment, error)
	CountByPaymentID(ctx context.Context, paymentID string) (int64, error)
	ListBySeller(ctx context.Context, sellerID string) ([]*model.SplitPayment, error)
	StatsBySeller(ctx context.Context, sellerID string) (*SplitPaymentStats, error)
}

type splitPaymentRepoImpl struct {
	db *gorm.DB
}

func NewSplitPaymentRepository(db *gorm.DB) SplitPaymentRepository {
	return &splitPaymentRepoImpl{
		db: db,
	}
}

// Upsert keeps one row per payment. processed_at keeps the first approval
// time across redeliveries.
func (r *splitPaymentRepoImpl) Upsert(ctx context.Context, tx *gorm.DB, split *model.SplitPayment) error {
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "payment_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"order_id":      split.OrderID,
			"seller_id":     split.SellerID,
			"total_amount":  split.TotalAmount,
			"seller_amount": split.SellerAmount,
			"platform_fee":  split.PlatformFee,
			"status":        split.Status,
			"processed_at":  gorm.Expr("COALESCE(processed_at, ?)", split.ProcessedAt),
			"updated_at":    time.Now(),
		}),
	}).Create(split).Error
}

func (r *splitPaymentRepoImpl) GetByPaymentID(ctx context.Context, paymentID string) (*model.SplitPayment, error) {
	var split model.SplitPayment
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		First(&split).Error
	if err != nil {
		return nil, err
	}

	return &split, nil
}

func (r *splitPaymentRepoImpl) CountByPaymentID(ctx context.Context, paymentID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.SplitPayment{}).
		Where("payment_id = ?", paymentID).
		Count(&count).Error

	return count, err
}

func (r *splitPaymentRepoImpl) ListBySeller(ctx context.Context, sellerID string) ([]*model.SplitPayment, error) {
	var splits []*model.SplitPayment
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Find(&splits).Error
	if err != nil {
		return nil, err
	}

	return splits, nil
}

// StatsBySeller sums in decimal on our side; SUM over decimal columns comes
// back as float on sqlite.
func (r *splitPaymentRepoImpl) StatsBySeller(ctx context.Context, sellerID string) (*SplitPaymentStats, error) {
	splits, err := r.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	stats := &SplitPaymentStats{
		TotalRevenue:  decimal.Zero,
		SellerRevenue: decimal.Zero,
		PlatformFees:  decimal.Zero,
	}
	for _, split := range splits {
		stats.Count++
		if split.Status != model.SplitApproved {
			continue
		}
		stats.ApprovedCount++
		stats.TotalRevenue = stats.TotalRevenue.Add(split.TotalAmount)
		stats.SellerRevenue = stats.SellerRevenue.Add(split.SellerAmount)
		stats.PlatformFees = stats.PlatformFees.Add(split.PlatformFee)
	}

	return stats, nil
}
