package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"barbershop-payments/internal/client"
	"barbershop-payments/internal/model"
	"barbershop-payments/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultBusinessName = "Minha Loja"

type OAuthService interface {
	// Initiate returns the processor authorization URL the seller is sent to.
	Initiate(ctx context.Context, userID string) (string, error)
	// Complete consumes state, exchanges code and stores the seller's tokens.
	Complete(ctx context.Context, code, state string) (*model.Seller, error)
}

type oauthServiceImpl struct {
	db          *gorm.DB
	mpClient    client.MercadoPagoClient
	stateRepo   repository.OAuthStateRepository
	sellerRepo  repository.SellerRepository
	profileRepo repository.ProfileRepository
	vault       CredentialVault
	stateTTL    time.Duration
	log         *zap.Logger
	now         func() time.Time
}

func NewOAuthService(
	db *gorm.DB,
	mpClient client.MercadoPagoClient,
	stateRepo repository.OAuthStateRepository,
	sellerRepo repository.SellerRepository,
	profileRepo repository.ProfileRepository,
	vault CredentialVault,
	stateTTL time.Duration,
	log *zap.Logger,
) OAuthService {
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}

	return &oauthServiceImpl{
		db:          db,
		mpClient:    mpClient,
		stateRepo:   stateRepo,
		sellerRepo:  sellerRepo,
		profileRepo: profileRepo,
		vault:       vault,
		stateTTL:    stateTTL,
		log:         log,
		now:         time.Now,
	}
}

func (s *oauthServiceImpl) Initiate(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", ErrUnauthenticated
	}

	state, err := newState()
	if err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}

	err = s.stateRepo.Create(ctx, &model.OAuthState{
		State:     state,
		UserID:    userID,
		ExpiresAt: s.now().Add(s.stateTTL),
	})
	if err != nil {
		return "", fmt.Errorf("store oauth state: %w", err)
	}

	return s.mpClient.AuthorizationURL(state), nil
}

func (s *oauthServiceImpl) Complete(ctx context.Context, code, state string) (*model.Seller, error) {
	if code == "" || state == "" {
		return nil, ErrInvalidState
	}

	consumed, err := s.stateRepo.Consume(ctx, state)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("consume oauth state: %w", err)
	}
	if !s.now().Before(consumed.ExpiresAt) {
		return nil, ErrInvalidState
	}

	token, err := s.mpClient.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	var expiresAt *time.Time
	if token.ExpiresIn > 0 {
		t := s.now().Add(time.Duration(token.ExpiresIn) * time.Second)
		expiresAt = &t
	}
	processorUserID := token.UserID.String()

	seller, err := s.connectSeller(ctx, consumed.UserID, func(sellerID string) *DecryptedCredential {
		return &DecryptedCredential{
			SellerID:        sellerID,
			AccessToken:     token.AccessToken,
			RefreshToken:    token.RefreshToken,
			PublicKey:       token.PublicKey,
			ProcessorUserID: processorUserID,
			ExpiresAt:       expiresAt,
		}
	})
	if err != nil {
		return nil, err
	}
	seller.ProcessorUserID = processorUserID

	s.log.Info("seller connected",
		zap.String("seller_id", seller.ID),
		zap.String("processor_user_id", seller.ProcessorUserID),
	)

	return seller, nil
}

// connectSeller creates the seller when missing and stores its credential
// in one transaction, so a failed write leaves no seller behind.
func (s *oauthServiceImpl) connectSeller(ctx context.Context, userID string, credential func(sellerID string) *DecryptedCredential) (*model.Seller, error) {
	for attempt := 0; ; attempt++ {
		seller, isNew, err := s.findOrNewSeller(ctx, userID)
		if err != nil {
			return nil, err
		}

		cred := credential(seller.ID)
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if isNew {
				if err := s.sellerRepo.Create(ctx, tx, seller); err != nil {
					return err
				}
			}
			if err := s.vault.Put(ctx, tx, cred); err != nil {
				return err
			}
			if err := s.sellerRepo.UpdateProcessorUserID(ctx, tx, seller.ID, cred.ProcessorUserID); err != nil {
				return fmt.Errorf("update seller processor user id: %w", err)
			}
			return nil
		})
		if isNew && attempt == 0 && errors.Is(err, gorm.ErrDuplicatedKey) {
			// another callback for the same user created it first
			continue
		}
		if err != nil {
			if isNew {
				return nil, fmt.Errorf("create seller: %w", err)
			}
			return nil, err
		}

		return seller, nil
	}
}

func (s *oauthServiceImpl) findOrNewSeller(ctx context.Context, userID string) (*model.Seller, bool, error) {
	seller, err := s.sellerRepo.GetByUserID(ctx, userID)
	if err == nil {
		return seller, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("get seller: %w", err)
	}

	businessName := defaultBusinessName
	profile, err := s.profileRepo.GetByUserID(ctx, userID)
	if err == nil && strings.TrimSpace(profile.FullName) != "" {
		businessName = profile.FullName
	}

	return &model.Seller{
		ID:           uuid.NewString(),
		UserID:       userID,
		BusinessName: businessName,
		IsActive:     true,
	}, true, nil
}

func newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
