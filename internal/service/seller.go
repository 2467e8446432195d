package service

import (
	"context"
	"errors"
	"fmt"

	"barbershop-payments/internal/dto"
	"barbershop-payments/internal/model"
	"barbershop-payments/internal/repository"

	"gorm.io/gorm"
)

// SellerService backs the seller's payments dashboard.
type SellerService interface {
	ConnectionStatus(ctx context.Context, userID string) (*ConnectionStatus, error)
	Disconnect(ctx context.Context, userID string) error
	SplitPayments(ctx context.Context, userID string) (*dto.SplitPaymentsResponse, error)
}

type sellerServiceImpl struct {
	sellerRepo       repository.SellerRepository
	splitPaymentRepo repository.SplitPaymentRepository
	vault            CredentialVault
}

func NewSellerService(
	sellerRepo repository.SellerRepository,
	splitPaymentRepo repository.SplitPaymentRepository,
	vault CredentialVault,
) SellerService {
	return &sellerServiceImpl{
		sellerRepo:       sellerRepo,
		splitPaymentRepo: splitPaymentRepo,
		vault:            vault,
	}
}

func (s *sellerServiceImpl) ConnectionStatus(ctx context.Context, userID string) (*ConnectionStatus, error) {
	seller, err := s.seller(ctx, userID)
	if errors.Is(err, ErrSellerNotConnected) {
		return &ConnectionStatus{Connected: false}, nil
	}
	if err != nil {
		return nil, err
	}

	return s.vault.Status(ctx, seller.ID)
}

func (s *sellerServiceImpl) Disconnect(ctx context.Context, userID string) error {
	seller, err := s.seller(ctx, userID)
	if err != nil {
		return err
	}

	return s.vault.Disconnect(ctx, seller.ID)
}

func (s *sellerServiceImpl) SplitPayments(ctx context.Context, userID string) (*dto.SplitPaymentsResponse, error) {
	seller, err := s.seller(ctx, userID)
	if err != nil {
		return nil, err
	}

	splits, err := s.splitPaymentRepo.ListBySeller(ctx, seller.ID)
	if err != nil {
		return nil, fmt.Errorf("list split payments: %w", err)
	}
	stats, err := s.splitPaymentRepo.StatsBySeller(ctx, seller.ID)
	if err != nil {
		return nil, fmt.Errorf("split payment stats: %w", err)
	}

	resp := &dto.SplitPaymentsResponse{
		Payments: make([]*dto.SplitPaymentResponse, len(splits)),
		Stats: dto.SplitPaymentStatsResponse{
			Count:         stats.Count,
			ApprovedCount: stats.ApprovedCount,
			TotalRevenue:  stats.TotalRevenue,
			SellerRevenue: stats.SellerRevenue,
			PlatformFees:  stats.PlatformFees,
		},
	}
	for i, split := range splits {
		resp.Payments[i] = &dto.SplitPaymentResponse{
			PaymentID:    split.PaymentID,
			OrderID:      split.OrderID,
			TotalAmount:  split.TotalAmount,
			SellerAmount: split.SellerAmount,
			PlatformFee:  split.PlatformFee,
			Status:       string(split.Status),
			ProcessedAt:  split.ProcessedAt,
			CreatedAt:    split.CreatedAt,
		}
	}
	return resp, nil
}

func (s *sellerServiceImpl) seller(ctx context.Context, userID string) (*model.Seller, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	seller, err := s.sellerRepo.GetByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSellerNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("get seller: %w", err)
	}
	return seller, nil
}
