package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"barbershop-payments/internal/model"
	"barbershop-payments/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SettlementService records the platform/seller split of marketplace
// payments and keeps the order in step with it.
type SettlementService interface {
	RecordPayment(ctx context.Context, payment *model.Payment) error
}

type settlementServiceImpl struct {
	db               *gorm.DB
	orderRepo        repository.OrderRepository
	productRepo      repository.ProductRepository
	splitPaymentRepo repository.SplitPaymentRepository
	log              *zap.Logger
	now              func() time.Time
}

func NewSettlementService(
	db *gorm.DB,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	splitPaymentRepo repository.SplitPaymentRepository,
	log *zap.Logger,
) SettlementService {
	return &settlementServiceImpl{
		db:               db,
		orderRepo:        orderRepo,
		productRepo:      productRepo,
		splitPaymentRepo: splitPaymentRepo,
		log:              log,
		now:              time.Now,
	}
}

// MapPaymentStatus translates a processor payment status into order and
// split states. Unknown statuses are passed through as-is.
func MapPaymentStatus(paymentStatus string) (model.OrderStatus, model.SplitStatus) {
	switch paymentStatus {
	case "approved":
		return model.OrderPaid, model.SplitApproved
	case "pending", "in_process":
		return model.OrderPending, model.SplitPending
	case "cancelled", "rejected":
		return model.OrderCancelled, model.SplitRejected
	default:
		return model.OrderStatus(paymentStatus), model.SplitStatus(paymentStatus)
	}
}

func (s *settlementServiceImpl) RecordPayment(ctx context.Context, payment *model.Payment) error {
	orderID := payment.MetadataString("order_id")
	if orderID == "" {
		return nil
	}
	paymentID := payment.ID.String()
	if paymentID == "" {
		return fmt.Errorf("%w: payment without id", ErrMalformedWebhookPayload)
	}

	orderStatus, splitStatus := MapPaymentStatus(payment.Status)
	fee := payment.ApplicationFee()
	total := payment.TransactionAmount

	sellerID := payment.MetadataString("seller_id")
	order, err := s.orderRepo.FindByID(ctx, orderID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.log.Warn("payment references unknown order", zap.String("order_id", orderID), zap.String("payment_id", paymentID))
		order = nil
	case err != nil:
		return fmt.Errorf("get order: %w", err)
	default:
		sellerID = order.SellerID
	}

	split := &model.SplitPayment{
		PaymentID:    paymentID,
		OrderID:      orderID,
		SellerID:     sellerID,
		TotalAmount:  total,
		SellerAmount: total.Sub(fee),
		PlatformFee:  fee,
		Status:       splitStatus,
	}
	if splitStatus == model.SplitApproved {
		processedAt := s.now()
		split.ProcessedAt = &processedAt
	}

	transitioned := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.splitPaymentRepo.Upsert(ctx, tx, split); err != nil {
			return fmt.Errorf("upsert split payment: %w", err)
		}
		if order == nil {
			return nil
		}

		if orderStatus != model.OrderPaid {
			return s.orderRepo.UpdateStatus(ctx, tx, orderID, orderStatus)
		}

		paid, err := s.orderRepo.MarkPaid(ctx, tx, orderID)
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		if !paid {
			// already paid by an earlier delivery, stock was taken then
			return nil
		}
		transitioned = true

		items, err := s.orderRepo.GetOrderItems(ctx, tx, orderID)
		if err != nil {
			return fmt.Errorf("get order items: %w", err)
		}
		for _, item := range items {
			if err := s.productRepo.DecrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return fmt.Errorf("decrement stock for %s: %w", item.ProductID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("split payment recorded",
		zap.String("payment_id", paymentID),
		zap.String("order_id", orderID),
		zap.String("status", string(splitStatus)),
		zap.String("seller_amount", split.SellerAmount.StringFixed(2)),
		zap.String("platform_fee", fee.StringFixed(2)),
		zap.Bool("order_paid_now", transitioned),
	)

	return nil
}
