package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"barbershop-payments/internal/client"
	"barbershop-payments/internal/config"
	"barbershop-payments/internal/model"
	"barbershop-payments/internal/repository"
	"barbershop-payments/internal/security"
	"barbershop-payments/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeMercadoPago struct {
	mu sync.Mutex

	exchangeToken *model.OAuthToken
	exchangeErr   error

	preferenceErr   error
	preferences     []*model.PreferenceRequest
	preferenceToken []string

	payments       map[string]*model.Payment
	merchantOrders map[string]*model.MerchantOrder
	paymentCalls   int
}

var _ client.MercadoPagoClient = (*fakeMercadoPago)(nil)

func newFakeMercadoPago() *fakeMercadoPago {
	return &fakeMercadoPago{
		payments:       map[string]*model.Payment{},
		merchantOrders: map[string]*model.MerchantOrder{},
	}
}

func (f *fakeMercadoPago) AuthorizationURL(state string) string {
	return "https://auth.example.test/authorization?state=" + state
}

func (f *fakeMercadoPago) ExchangeCode(ctx context.Context, code string) (*model.OAuthToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.exchangeToken, nil
}

func (f *fakeMercadoPago) CreatePreference(ctx context.Context, accessToken string, req *model.PreferenceRequest) (*model.Preference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.preferenceErr != nil {
		return nil, f.preferenceErr
	}
	f.preferences = append(f.preferences, req)
	f.preferenceToken = append(f.preferenceToken, accessToken)
	id := fmt.Sprintf("pref-%d", len(f.preferences))
	return &model.Preference{ID: id, InitPoint: "https://mp.example.test/checkout/" + id}, nil
}

func (f *fakeMercadoPago) GetPayment(ctx context.Context, paymentID string) (*model.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paymentCalls++
	p, ok := f.payments[paymentID]
	if !ok {
		return nil, &client.ProcessorError{Status: 404, Body: `{"message":"payment not found"}`}
	}
	return p, nil
}

func (f *fakeMercadoPago) GetMerchantOrder(ctx context.Context, merchantOrderID string) (*model.MerchantOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.merchantOrders[merchantOrderID]
	if !ok {
		return nil, &client.ProcessorError{Status: 404, Body: `{"message":"order not found"}`}
	}
	return o, nil
}

func (f *fakeMercadoPago) lastPreference() *model.PreferenceRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.preferences) == 0 {
		return nil
	}
	return f.preferences[len(f.preferences)-1]
}

type testEnv struct {
	db *gorm.DB
	mp *fakeMercadoPago

	credentialRepo   repository.CredentialRepository
	sellerRepo       repository.SellerRepository
	appointmentRepo  repository.AppointmentRepository
	orderRepo        repository.OrderRepository
	productRepo      repository.ProductRepository
	queueRepo        repository.QueueRepository
	splitPaymentRepo repository.SplitPaymentRepository
	webhookEventRepo repository.WebhookEventRepository

	vault        CredentialVault
	queue        QueueService
	oauth        OAuthService
	preference   PreferenceService
	settlement   SettlementService
	webhook      WebhookService
	appointments AppointmentService
	sellers      SellerService
}

const testWebhookSecret = "whsec-test"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewDB(t)
	log := zap.NewNop()
	mp := newFakeMercadoPago()

	cipher, err := security.NewTokenCipher("vault-secret")
	require.NoError(t, err)

	env := &testEnv{
		db:               db,
		mp:               mp,
		credentialRepo:   repository.NewCredentialRepository(db),
		sellerRepo:       repository.NewSellerRepository(db),
		appointmentRepo:  repository.NewAppointmentRepository(db),
		orderRepo:        repository.NewOrderRepository(db),
		productRepo:      repository.NewProductRepository(db),
		queueRepo:        repository.NewQueueRepository(db),
		splitPaymentRepo: repository.NewSplitPaymentRepository(db),
		webhookEventRepo: repository.NewWebhookEventRepository(db),
	}
	profileRepo := repository.NewProfileRepository(db)

	env.vault = NewCredentialVault(db, cipher, env.credentialRepo, log)
	env.queue, err = NewQueueService(db, env.queueRepo, env.appointmentRepo, config.Queue{
		Capacity: 5,
		TimeZone: "America/Sao_Paulo",
		HoldTTL:  30 * time.Minute,
	}, log)
	require.NoError(t, err)

	env.oauth = NewOAuthService(db, mp, repository.NewOAuthStateRepository(db), env.sellerRepo, profileRepo, env.vault, 10*time.Minute, log)
	env.preference = NewPreferenceService(db, mp, env.vault, env.queue,
		repository.NewServiceRepository(db), env.productRepo, profileRepo, env.appointmentRepo, env.orderRepo,
		PreferenceConfig{
			PublicBaseURL:      "https://api.example.test",
			WebhookURL:         "https://api.example.test/api/mp/webhook",
			AppointmentFee:     FlatFee{Amount: decimal.RequireFromString("1.00")},
			MarketplacePercent: 10,
		}, log)
	env.settlement = NewSettlementService(db, env.orderRepo, env.productRepo, env.splitPaymentRepo, log)
	env.webhook = NewWebhookService(db, mp, testWebhookSecret, env.webhookEventRepo, env.appointmentRepo, env.settlement, log)
	env.appointments = NewAppointmentService(db, env.appointmentRepo, env.sellerRepo, env.queue, log)
	env.sellers = NewSellerService(env.sellerRepo, env.splitPaymentRepo, env.vault)

	return env
}

// seedSeller creates a seller owned by userID and, when connected, stores
// the access token "token-<sellerID>".
func (e *testEnv) seedSeller(t *testing.T, sellerID, userID string, connected bool) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.Seller{
		ID: sellerID, UserID: userID, BusinessName: "Barbearia " + sellerID, IsActive: true,
	}).Error)

	if connected {
		require.NoError(t, e.vault.Put(context.Background(), nil, &DecryptedCredential{
			SellerID:        sellerID,
			AccessToken:     "token-" + sellerID,
			ProcessorUserID: "mp-" + sellerID,
		}))
	}
}

func (e *testEnv) seedService(t *testing.T, serviceID, sellerID, price string) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.Service{
		ID: serviceID, SellerID: sellerID, Name: "Serviço " + serviceID,
		Price: decimal.RequireFromString(price), DurationMinutes: 30, IsActive: true,
	}).Error)
}

func (e *testEnv) seedProduct(t *testing.T, productID, sellerID, price string, stock int32) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.Product{
		ID: productID, SellerID: sellerID, Name: "Produto " + productID,
		Price: decimal.RequireFromString(price), StockQuantity: stock, IsActive: true,
	}).Error)
}

func (e *testEnv) seedProfile(t *testing.T, userID, fullName, email string) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.Profile{UserID: userID, FullName: fullName, Email: email}).Error)
}

func (e *testEnv) appointment(t *testing.T, id string) *model.Appointment {
	t.Helper()
	a, err := e.appointmentRepo.Get(context.Background(), id)
	require.NoError(t, err)
	return a
}

func paymentNotification(eventID, paymentID string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"type":"payment","action":"payment.updated","data":{"id":%q}}`, eventID, paymentID))
}
