package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"barbershop-payments/internal/client"
	"barbershop-payments/internal/dto"
	"barbershop-payments/internal/model"
	"barbershop-payments/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	currencyBRL = "BRL"

	metadataTypeAppointment      = "appointment"
	metadataTypeAppointmentRetry = "appointment_retry"
	metadataTypeOrder            = "order"
)

type AppointmentCheckout struct {
	CustomerID    string
	ServiceIDs    []string
	ScheduledDate string
	TimeSlot      string
	BaseURL       string
}

type PreferenceService interface {
	CreateAppointmentPreference(ctx context.Context, checkout *AppointmentCheckout) (*dto.CreateAppointmentPreferenceResponse, error)
	// RetryAppointmentPayment issues a fresh preference for an appointment
	// that is still waiting for payment, together with the rest of its booking.
	RetryAppointmentPayment(ctx context.Context, customerID, appointmentID, baseURL string) (*dto.CreateAppointmentPreferenceResponse, error)
	CreateOrderPreference(ctx context.Context, buyerID string, req *dto.CreatePreferenceRequest) (*dto.CreatePreferenceResponse, error)
}

type PreferenceConfig struct {
	// PublicBaseURL is where the processor reaches this service.
	PublicBaseURL      string
	WebhookURL         string
	SponsorID          int64
	AppointmentFee     FeePolicy
	MarketplacePercent float64
}

type preferenceServiceImpl struct {
	db              *gorm.DB
	mpClient        client.MercadoPagoClient
	vault           CredentialVault
	queue           QueueService
	serviceRepo     repository.ServiceRepository
	productRepo     repository.ProductRepository
	profileRepo     repository.ProfileRepository
	appointmentRepo repository.AppointmentRepository
	orderRepo       repository.OrderRepository
	cfg             PreferenceConfig
	log             *zap.Logger
	now             func() time.Time
}

func NewPreferenceService(
	db *gorm.DB,
	mpClient client.MercadoPagoClient,
	vault CredentialVault,
	queue QueueService,
	serviceRepo repository.ServiceRepository,
	productRepo repository.ProductRepository,
	profileRepo repository.ProfileRepository,
	appointmentRepo repository.AppointmentRepository,
	orderRepo repository.OrderRepository,
	cfg PreferenceConfig,
	log *zap.Logger,
) PreferenceService {
	if cfg.AppointmentFee == nil {
		cfg.AppointmentFee = FlatFee{Amount: decimal.RequireFromString("1.00")}
	}

	return &preferenceServiceImpl{
		db:              db,
		mpClient:        mpClient,
		vault:           vault,
		queue:           queue,
		serviceRepo:     serviceRepo,
		productRepo:     productRepo,
		profileRepo:     profileRepo,
		appointmentRepo: appointmentRepo,
		orderRepo:       orderRepo,
		cfg:             cfg,
		log:             log,
		now:             time.Now,
	}
}

func (s *preferenceServiceImpl) CreateAppointmentPreference(ctx context.Context, checkout *AppointmentCheckout) (*dto.CreateAppointmentPreferenceResponse, error) {
	if checkout.CustomerID == "" {
		return nil, ErrUnauthenticated
	}
	if checkout.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}

	serviceIDs := uniqueStrings(checkout.ServiceIDs)
	if len(serviceIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one service is required", ErrInvalidRequest)
	}

	scheduledTime, err := s.queue.ScheduledTime(checkout.ScheduledDate, checkout.TimeSlot)
	if err != nil {
		return nil, err
	}

	services, err := s.serviceRepo.FindManyActive(ctx, serviceIDs)
	if err != nil {
		return nil, fmt.Errorf("get services: %w", err)
	}
	if len(services) != len(serviceIDs) {
		return nil, ErrServiceUnavailable
	}

	sellerID, err := singleSeller(len(services), func(i int) string { return services[i].SellerID })
	if err != nil {
		return nil, err
	}

	credential, err := s.vault.Get(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	items := make([]model.PreferenceItem, len(services))
	for i, svc := range services {
		total = total.Add(svc.Price)
		items[i] = model.PreferenceItem{
			ID:          svc.ID,
			Title:       svc.Name,
			Description: serviceDescription(svc, checkout.ScheduledDate),
			Quantity:    1,
			UnitPrice:   svc.Price.InexactFloat64(),
			CurrencyID:  currencyBRL,
		}
	}

	reservation, err := s.queue.Reserve(ctx, checkout.ScheduledDate, checkout.TimeSlot, checkout.CustomerID)
	if err != nil {
		return nil, err
	}

	req := &model.PreferenceRequest{
		Items:             items,
		Payer:             s.payer(ctx, checkout.CustomerID),
		BackURLs:          appointmentBackURLs(checkout.BaseURL),
		AutoReturn:        "approved",
		NotificationURL:   s.cfg.WebhookURL,
		ExternalReference: fmt.Sprintf("appointment_%d_%s", s.now().UnixMilli(), checkout.CustomerID),
		Metadata: map[string]string{
			"customer_id":    checkout.CustomerID,
			"service_ids":    strings.Join(serviceIDs, ","),
			"scheduled_date": checkout.ScheduledDate,
			"time_slot":      checkout.TimeSlot,
			"type":           metadataTypeAppointment,
			"seller_id":      sellerID,
		},
		MarketplaceFee: s.cfg.AppointmentFee.Fee(total).InexactFloat64(),
		SponsorID:      s.cfg.SponsorID,
	}

	pref, err := s.mpClient.CreatePreference(ctx, credential.AccessToken, req)
	if err != nil {
		s.releaseReservation(ctx, reservation.ID)
		return nil, err
	}

	if err := s.queue.AttachPreference(ctx, reservation.ID, pref.ID); err != nil {
		s.log.Warn("attach preference to reservation", zap.Uint("reservation_id", reservation.ID), zap.Error(err))
	}

	notes := appointmentNotes(checkout.TimeSlot, reservation.Position, pref.ID)
	appointments := make([]*model.Appointment, len(services))
	appointmentIDs := make([]string, len(services))
	for i, svc := range services {
		appointments[i] = &model.Appointment{
			ID:            uuid.NewString(),
			CustomerID:    checkout.CustomerID,
			ServiceID:     svc.ID,
			SellerID:      sellerID,
			ReservationID: reservation.ID,
			ScheduledTime: scheduledTime,
			ScheduledDate: checkout.ScheduledDate,
			TimeSlot:      checkout.TimeSlot,
			QueuePosition: reservation.Position,
			Status:        model.AppointmentPendingPayment,
			BookingType:   "app",
			TotalPrice:    svc.Price,
			Notes:         notes,
			PreferenceID:  pref.ID,
		}
		appointmentIDs[i] = appointments[i].ID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.appointmentRepo.CreateMany(ctx, tx, appointments)
	})
	if err != nil {
		s.releaseReservation(ctx, reservation.ID)
		return nil, fmt.Errorf("store appointments: %w", err)
	}

	s.log.Info("appointment preference created",
		zap.String("preference_id", pref.ID),
		zap.String("customer_id", checkout.CustomerID),
		zap.String("date", checkout.ScheduledDate),
		zap.String("slot", checkout.TimeSlot),
		zap.Int("queue_position", reservation.Position),
	)

	return &dto.CreateAppointmentPreferenceResponse{
		PreferenceID:   pref.ID,
		InitPoint:      pref.InitPoint,
		AppointmentIDs: appointmentIDs,
		QueuePosition:  reservation.Position,
		TotalAmount:    total,
	}, nil
}

func (s *preferenceServiceImpl) RetryAppointmentPayment(ctx context.Context, customerID, appointmentID, baseURL string) (*dto.CreateAppointmentPreferenceResponse, error) {
	if customerID == "" {
		return nil, ErrUnauthenticated
	}
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}

	appointment, err := s.appointmentRepo.Get(ctx, appointmentID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && appointment.CustomerID != customerID) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if appointment.Status != model.AppointmentPendingPayment {
		return nil, ErrInvalidAppointmentStatus
	}

	booking, err := s.pendingBooking(ctx, appointment)
	if err != nil {
		return nil, err
	}

	serviceIDs := make([]string, len(booking))
	appointmentIDs := make([]string, len(booking))
	for i, a := range booking {
		serviceIDs[i] = a.ServiceID
		appointmentIDs[i] = a.ID
	}
	serviceIDs = uniqueStrings(serviceIDs)

	services, err := s.serviceRepo.FindManyActive(ctx, serviceIDs)
	if err != nil {
		return nil, fmt.Errorf("get services: %w", err)
	}
	if len(services) != len(serviceIDs) {
		return nil, ErrServiceUnavailable
	}
	serviceByID := make(map[string]*model.Service, len(services))
	for _, svc := range services {
		serviceByID[svc.ID] = svc
	}

	sellerID, err := singleSeller(len(services), func(i int) string { return services[i].SellerID })
	if err != nil {
		return nil, err
	}

	credential, err := s.vault.Get(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	items := make([]model.PreferenceItem, len(booking))
	for i, a := range booking {
		svc := serviceByID[a.ServiceID]
		total = total.Add(svc.Price)
		items[i] = model.PreferenceItem{
			ID:          svc.ID,
			Title:       svc.Name,
			Description: serviceDescription(svc, a.ScheduledDate),
			Quantity:    1,
			UnitPrice:   svc.Price.InexactFloat64(),
			CurrencyID:  currencyBRL,
		}
	}

	req := &model.PreferenceRequest{
		Items:             items,
		Payer:             s.payer(ctx, customerID),
		BackURLs:          appointmentBackURLs(baseURL),
		AutoReturn:        "approved",
		NotificationURL:   s.cfg.WebhookURL,
		ExternalReference: fmt.Sprintf("appointment_retry_%d_%s", s.now().UnixMilli(), customerID),
		Metadata: map[string]string{
			"customer_id":     customerID,
			"appointment_id":  appointment.ID,
			"appointment_ids": strings.Join(appointmentIDs, ","),
			"service_ids":     strings.Join(serviceIDs, ","),
			"scheduled_date":  appointment.ScheduledDate,
			"time_slot":       appointment.TimeSlot,
			"type":            metadataTypeAppointmentRetry,
			"seller_id":       sellerID,
		},
		MarketplaceFee: s.cfg.AppointmentFee.Fee(total).InexactFloat64(),
		SponsorID:      s.cfg.SponsorID,
	}

	pref, err := s.mpClient.CreatePreference(ctx, credential.AccessToken, req)
	if err != nil {
		return nil, err
	}

	notes := appointmentNotes(appointment.TimeSlot, appointment.QueuePosition, pref.ID)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.appointmentRepo.UpdatePreference(ctx, tx, appointmentIDs, pref.ID, notes)
	})
	if err != nil {
		return nil, fmt.Errorf("update appointment preference: %w", err)
	}
	if appointment.ReservationID != 0 {
		if err := s.queue.AttachPreference(ctx, appointment.ReservationID, pref.ID); err != nil {
			s.log.Warn("attach retry preference to reservation", zap.Uint("reservation_id", appointment.ReservationID), zap.Error(err))
		}
	}

	s.log.Info("appointment payment retried",
		zap.String("preference_id", pref.ID),
		zap.String("customer_id", customerID),
		zap.Strings("appointment_ids", appointmentIDs),
	)

	return &dto.CreateAppointmentPreferenceResponse{
		PreferenceID:   pref.ID,
		InitPoint:      pref.InitPoint,
		AppointmentIDs: appointmentIDs,
		QueuePosition:  appointment.QueuePosition,
		TotalAmount:    total,
	}, nil
}

// pendingBooking returns the unpaid appointments booked together with
// appointment, which share its queue reservation.
func (s *preferenceServiceImpl) pendingBooking(ctx context.Context, appointment *model.Appointment) ([]*model.Appointment, error) {
	if appointment.ReservationID == 0 {
		return []*model.Appointment{appointment}, nil
	}

	siblings, err := s.appointmentRepo.ListByReservations(ctx, []uint{appointment.ReservationID})
	if err != nil {
		return nil, fmt.Errorf("list booking appointments: %w", err)
	}

	booking := []*model.Appointment{appointment}
	for _, a := range siblings {
		if a.ID == appointment.ID || a.CustomerID != appointment.CustomerID || a.Status != model.AppointmentPendingPayment {
			continue
		}
		booking = append(booking, a)
	}
	return booking, nil
}

func (s *preferenceServiceImpl) CreateOrderPreference(ctx context.Context, buyerID string, req *dto.CreatePreferenceRequest) (*dto.CreatePreferenceResponse, error) {
	if buyerID == "" {
		return nil, ErrUnauthenticated
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrInvalidRequest)
	}

	productIDs := make([]string, 0, len(req.Items))
	itemQuantityMap := make(map[string]int32)
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item quantity must be positive", ErrInvalidRequest)
		}
		if _, seen := itemQuantityMap[item.ProductID]; !seen {
			productIDs = append(productIDs, item.ProductID)
		}
		itemQuantityMap[item.ProductID] += item.Quantity
	}

	products, err := s.productRepo.FindManyActive(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	if len(products) != len(productIDs) {
		return nil, ErrProductUnavailable
	}

	for _, product := range products {
		if product.StockQuantity < itemQuantityMap[product.ID] {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientStock, product.Name)
		}
	}

	sellerID, err := singleSeller(len(products), func(i int) string { return products[i].SellerID })
	if err != nil {
		return nil, err
	}

	feePercent := s.cfg.MarketplacePercent
	if req.FeePercentage != nil {
		feePercent = *req.FeePercentage
	}
	feePolicy, err := NewPercentageFee(feePercent)
	if err != nil {
		return nil, err
	}

	credential, err := s.vault.Get(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	orderID := uuid.NewString()
	total := decimal.Zero
	items := make([]model.PreferenceItem, len(products))
	orderItems := make([]*model.OrderItem, len(products))
	for i, product := range products {
		quantity := itemQuantityMap[product.ID]
		lineTotal := product.Price.Mul(decimal.NewFromInt32(quantity))
		total = total.Add(lineTotal)

		items[i] = model.PreferenceItem{
			ID:          product.ID,
			Title:       product.Name,
			Description: product.Description,
			Quantity:    quantity,
			UnitPrice:   product.Price.InexactFloat64(),
			CurrencyID:  currencyBRL,
		}
		orderItems[i] = &model.OrderItem{
			OrderID:    orderID,
			ProductID:  product.ID,
			Quantity:   quantity,
			UnitPrice:  product.Price,
			TotalPrice: lineTotal,
		}
	}
	fee := feePolicy.Fee(total)

	base := strings.TrimRight(s.cfg.PublicBaseURL, "/")
	externalReference := "order_" + orderID
	pref, err := s.mpClient.CreatePreference(ctx, credential.AccessToken, &model.PreferenceRequest{
		Items: items,
		Payer: s.payer(ctx, buyerID),
		BackURLs: model.BackURLs{
			Success: base + "/api/mp/payment-success",
			Failure: base + "/api/mp/payment-failure",
			Pending: base + "/api/mp/payment-pending",
		},
		AutoReturn:        "approved",
		NotificationURL:   s.cfg.WebhookURL,
		ExternalReference: externalReference,
		Metadata: map[string]string{
			"order_id":  orderID,
			"buyer_id":  buyerID,
			"seller_id": sellerID,
			"type":      metadataTypeOrder,
		},
		MarketplaceFee: fee.InexactFloat64(),
		SponsorID:      s.cfg.SponsorID,
	})
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.Create(ctx, tx, &model.Order{
			ID:                orderID,
			BuyerID:           buyerID,
			SellerID:          sellerID,
			TotalAmount:       total,
			PlatformFee:       fee,
			PreferenceID:      pref.ID,
			ExternalReference: externalReference,
			Status:            model.OrderPending,
		}); err != nil {
			return fmt.Errorf("store order in db: %w", err)
		}

		if err := s.orderRepo.CreateOrderItems(ctx, tx, orderItems); err != nil {
			return fmt.Errorf("store order items in db: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order preference created",
		zap.String("order_id", orderID),
		zap.String("preference_id", pref.ID),
		zap.String("seller_id", sellerID),
	)

	return &dto.CreatePreferenceResponse{
		PreferenceID:   pref.ID,
		InitPoint:      pref.InitPoint,
		OrderID:        orderID,
		TotalAmount:    total,
		ApplicationFee: fee,
	}, nil
}

func (s *preferenceServiceImpl) payer(ctx context.Context, userID string) *model.PreferencePayer {
	profile, err := s.profileRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil
	}
	return &model.PreferencePayer{Name: profile.FullName, Email: profile.Email}
}

func (s *preferenceServiceImpl) releaseReservation(ctx context.Context, reservationID uint) {
	if err := s.queue.Release(ctx, nil, reservationID); err != nil {
		s.log.Error("release queue reservation", zap.Uint("reservation_id", reservationID), zap.Error(err))
	}
}

// ResolveBaseURL picks the app origin for back_urls: explicit body value,
// then Origin, then the origin part of Referer.
func ResolveBaseURL(explicit, origin, referer string) (string, error) {
	for _, candidate := range []string{explicit, origin} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return strings.TrimRight(candidate, "/"), nil
		}
	}

	if referer != "" {
		u, err := url.Parse(referer)
		if err == nil && u.Scheme != "" && u.Host != "" {
			return u.Scheme + "://" + u.Host, nil
		}
	}

	return "", ErrMissingBaseURL
}

func appointmentBackURLs(baseURL string) model.BackURLs {
	base := strings.TrimRight(baseURL, "/")
	return model.BackURLs{
		Success: base + "/agendamento-confirmado",
		Failure: base + "/agendamento-erro",
		Pending: base + "/agendamento-pendente",
	}
}

func appointmentNotes(timeSlot string, position int, preferenceID string) string {
	return "Turno: " + timeSlot + " - Posição: " + strconv.Itoa(position) + " - Preferência MP: " + preferenceID
}

func serviceDescription(svc *model.Service, scheduledDate string) string {
	if svc.Description != "" {
		return svc.Description
	}
	return "Agendamento para " + scheduledDate
}

func singleSeller(n int, sellerAt func(i int) string) (string, error) {
	var sellerID string
	for i := 0; i < n; i++ {
		id := sellerAt(i)
		if i == 0 {
			sellerID = id
			continue
		}
		if id != sellerID {
			return "", ErrMultiSellerNotSupported
		}
	}
	if sellerID == "" {
		return "", ErrSellerNotConnected
	}
	return sellerID, nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
