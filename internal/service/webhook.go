package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"barbershop-payments/internal/client"
	"barbershop-payments/internal/model"
	"barbershop-payments/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type WebhookTopic string

const (
	TopicPayment       WebhookTopic = "payment"
	TopicMerchantOrder WebhookTopic = "merchant_order"
	TopicUnknown       WebhookTopic = ""
)

// CanonicalTopic folds the spellings mercado pago has used over time.
func CanonicalTopic(raw string) WebhookTopic {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "payment", "payments":
		return TopicPayment
	case "merchant_order", "merchant_orders", "topic_merchant_order_wh":
		return TopicMerchantOrder
	default:
		return TopicUnknown
	}
}

// maxLedgerState keeps state-keyed ledger ids inside the event_id column.
const maxLedgerState = 64

type WebhookRequest struct {
	Body      []byte
	Query     url.Values
	Signature string // x-signature
	RequestID string // x-request-id
}

// Notification is a parsed webhook with the ids the pipeline needs.
type Notification struct {
	EventID    string
	ResourceID string
	Topic      WebhookTopic
	RawTopic   string
	// StateKeyed is set when the payload carries no notification id of its
	// own. The same EventID then repeats across status changes, so the
	// ledger key also carries the state read from the processor.
	StateKeyed bool
}

type WebhookService interface {
	// HandleWebhook only returns ErrSignatureInvalid for the caller to act
	// on; every other error is logged and reported for observability but
	// must still be acknowledged.
	HandleWebhook(ctx context.Context, req *WebhookRequest) error
}

type webhookServiceImpl struct {
	db               *gorm.DB
	mpClient         client.MercadoPagoClient
	webhookSecret    string
	webhookEventRepo repository.WebhookEventRepository
	appointmentRepo  repository.AppointmentRepository
	settlement       SettlementService
	log              *zap.Logger
}

func NewWebhookService(
	db *gorm.DB,
	mpClient client.MercadoPagoClient,
	webhookSecret string,
	webhookEventRepo repository.WebhookEventRepository,
	appointmentRepo repository.AppointmentRepository,
	settlement SettlementService,
	log *zap.Logger,
) WebhookService {
	return &webhookServiceImpl{
		db:               db,
		mpClient:         mpClient,
		webhookSecret:    webhookSecret,
		webhookEventRepo: webhookEventRepo,
		appointmentRepo:  appointmentRepo,
		settlement:       settlement,
		log:              log,
	}
}

func (s *webhookServiceImpl) HandleWebhook(ctx context.Context, req *WebhookRequest) error {
	n, err := ParseNotification(req.Body, req.Query)
	if err != nil {
		s.log.Warn("webhook payload could not be parsed", zap.Error(err))
		return err
	}
	if n.ResourceID == "" {
		s.log.Info("webhook without resource id acknowledged", zap.String("topic", n.RawTopic))
		return nil
	}

	if err := VerifyWebhookSignature(req.Signature, req.RequestID, n.ResourceID, s.webhookSecret); err != nil {
		s.log.Warn("webhook signature mismatch",
			zap.String("event_id", n.EventID),
			zap.String("request_id", req.RequestID),
		)
		return err
	}

	log := s.log.With(
		zap.String("event_id", n.EventID),
		zap.String("topic", n.RawTopic),
		zap.String("resource_id", n.ResourceID),
	)

	if !n.StateKeyed {
		processed, err := s.alreadyProcessed(ctx, n.EventID)
		if err != nil || processed {
			return err
		}
	}

	var (
		state string
		apply func() error
	)
	switch n.Topic {
	case TopicPayment:
		payment, err := s.mpClient.GetPayment(ctx, n.ResourceID)
		if err != nil {
			log.Error("webhook dispatch failed", zap.Error(err))
			return fmt.Errorf("get payment %s: %w", n.ResourceID, err)
		}
		state = firstNonEmpty(payment.Status, "unknown")
		apply = func() error { return s.handlePayment(ctx, payment) }
	case TopicMerchantOrder:
		merchantOrder, err := s.mpClient.GetMerchantOrder(ctx, n.ResourceID)
		if err != nil {
			log.Error("webhook dispatch failed", zap.Error(err))
			return fmt.Errorf("get merchant order %s: %w", n.ResourceID, err)
		}
		state = merchantOrderState(merchantOrder)
		apply = func() error { return s.handleMerchantOrder(ctx, merchantOrder) }
	default:
		log.Info("webhook topic ignored")
		return nil
	}

	ledgerKey := n.EventID
	if n.StateKeyed {
		ledgerKey = n.EventID + ":" + state
		processed, err := s.alreadyProcessed(ctx, ledgerKey)
		if err != nil || processed {
			return err
		}
	}

	if err := apply(); err != nil {
		// not recorded, so a redelivery gets another chance
		log.Error("webhook dispatch failed", zap.Error(err))
		return err
	}

	if err := s.webhookEventRepo.MarkProcessed(ctx, ledgerKey, string(n.Topic)); err != nil {
		log.Error("record webhook event", zap.Error(err))
		return fmt.Errorf("record webhook event: %w", err)
	}

	log.Info("webhook event processed")
	return nil
}

func (s *webhookServiceImpl) alreadyProcessed(ctx context.Context, key string) (bool, error) {
	processed, err := s.webhookEventRepo.Exists(ctx, key)
	if err != nil {
		s.log.Error("check webhook ledger", zap.String("ledger_key", key), zap.Error(err))
		return false, fmt.Errorf("check webhook ledger: %w", err)
	}
	if processed {
		s.log.Info("webhook event already processed", zap.String("ledger_key", key))
	}
	return processed, nil
}

func (s *webhookServiceImpl) handlePayment(ctx context.Context, payment *model.Payment) error {
	paymentID := payment.ID.String()
	if err := s.settlement.RecordPayment(ctx, payment); err != nil {
		return fmt.Errorf("record payment %s: %w", paymentID, err)
	}

	if payment.Status != "approved" {
		return nil
	}

	var preferenceID string
	if payment.Order.ID != "" {
		merchantOrder, err := s.mpClient.GetMerchantOrder(ctx, payment.Order.ID.String())
		if err != nil {
			s.log.Warn("get merchant order for payment", zap.String("payment_id", paymentID), zap.Error(err))
		} else {
			preferenceID = merchantOrder.PreferenceID
		}
	}

	appointments, err := s.matchAppointments(ctx, preferenceID, payment)
	if err != nil {
		return err
	}

	return s.confirmAppointments(ctx, appointments, paymentID)
}

func (s *webhookServiceImpl) handleMerchantOrder(ctx context.Context, merchantOrder *model.MerchantOrder) error {
	approved := approvedPaymentIDs(merchantOrder)
	if len(approved) == 0 {
		return nil
	}

	for _, paymentID := range approved {
		payment, err := s.mpClient.GetPayment(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("get payment %s: %w", paymentID, err)
		}
		if err := s.settlement.RecordPayment(ctx, payment); err != nil {
			return fmt.Errorf("record payment %s: %w", paymentID, err)
		}
	}

	if merchantOrder.PreferenceID == "" {
		return nil
	}
	appointments, err := s.findByPreference(ctx, merchantOrder.PreferenceID)
	if err != nil {
		return err
	}

	return s.confirmAppointments(ctx, appointments, approved[0])
}

func approvedPaymentIDs(merchantOrder *model.MerchantOrder) []string {
	approved := make([]string, 0, len(merchantOrder.Payments))
	for _, p := range merchantOrder.Payments {
		if p.Status == "approved" {
			approved = append(approved, p.ID.String())
		}
	}
	sort.Strings(approved)
	return approved
}

// merchantOrderState is the set of approved payments; it only changes when
// a payment gets approved.
func merchantOrderState(merchantOrder *model.MerchantOrder) string {
	approved := approvedPaymentIDs(merchantOrder)
	if len(approved) == 0 {
		return "none"
	}
	state := strings.Join(approved, ",")
	if len(state) > maxLedgerState {
		sum := sha256.Sum256([]byte(state))
		state = hex.EncodeToString(sum[:16])
	}
	return state
}

// matchAppointments correlates an approved payment with its pending
// appointments: preference id column, notes suffix, then the customer id
// carried in external_reference.
func (s *webhookServiceImpl) matchAppointments(ctx context.Context, preferenceID string, payment *model.Payment) ([]*model.Appointment, error) {
	if preferenceID != "" {
		appointments, err := s.findByPreference(ctx, preferenceID)
		if err != nil || len(appointments) > 0 {
			return appointments, err
		}
	}

	if appointmentID := payment.MetadataString("appointment_id"); appointmentID != "" {
		appointment, err := s.appointmentRepo.Get(ctx, appointmentID)
		if err == nil && appointment.Status == model.AppointmentPendingPayment {
			return []*model.Appointment{appointment}, nil
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("get appointment: %w", err)
		}
	}

	customerID := CustomerFromExternalReference(payment.ExternalReference)
	if customerID == "" {
		return nil, nil
	}

	appointments, err := s.appointmentRepo.FindPendingByCustomer(ctx, customerID,
		payment.MetadataString("scheduled_date"), payment.MetadataString("time_slot"))
	if err != nil {
		return nil, fmt.Errorf("find pending appointments by customer: %w", err)
	}
	return appointments, nil
}

func (s *webhookServiceImpl) findByPreference(ctx context.Context, preferenceID string) ([]*model.Appointment, error) {
	appointments, err := s.appointmentRepo.FindPendingByPreferenceID(ctx, preferenceID)
	if err != nil {
		return nil, fmt.Errorf("find appointments by preference: %w", err)
	}
	if len(appointments) > 0 {
		return appointments, nil
	}

	appointments, err = s.appointmentRepo.FindPendingByNotesPreference(ctx, preferenceID)
	if err != nil {
		return nil, fmt.Errorf("find appointments by notes: %w", err)
	}
	return appointments, nil
}

func (s *webhookServiceImpl) confirmAppointments(ctx context.Context, appointments []*model.Appointment, paymentID string) error {
	if len(appointments) == 0 {
		return nil
	}

	ids := make([]string, len(appointments))
	for i, a := range appointments {
		ids[i] = a.ID
	}

	var confirmed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		confirmed, err = s.appointmentRepo.ConfirmPending(ctx, tx, ids)
		return err
	})
	if err != nil {
		return fmt.Errorf("confirm appointments: %w", err)
	}

	s.log.Info("appointments confirmed",
		zap.String("payment_id", paymentID),
		zap.Strings("appointment_ids", ids),
		zap.Int64("confirmed", confirmed),
	)
	return nil
}

// ParseNotification accepts the webhooks shape ({type, data:{id}}), the IPN
// shape ({topic, resource}) and bare query-string notifications.
func ParseNotification(body []byte, query url.Values) (*Notification, error) {
	var raw model.WebhookNotification
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedWebhookPayload, err)
		}
	}

	rawTopic := firstNonEmpty(raw.Type, raw.Topic, query.Get("type"), query.Get("topic"))

	resourceID := firstNonEmpty(
		raw.Data.ID.String(),
		lastPathSegment(raw.Resource),
		raw.ID.String(),
		query.Get("data.id"),
		query.Get("id"),
	)

	topic := CanonicalTopic(rawTopic)
	// IPN payloads put the resource id in "id"; only a distinct value is a
	// notification id.
	eventID := raw.ID.String()
	stateKeyed := eventID == "" || eventID == resourceID
	if stateKeyed && resourceID != "" {
		prefix := string(topic)
		if prefix == "" {
			prefix = rawTopic
		}
		eventID = prefix + ":" + resourceID
	}

	return &Notification{
		EventID:    eventID,
		ResourceID: resourceID,
		Topic:      topic,
		RawTopic:   rawTopic,
		StateKeyed: stateKeyed,
	}, nil
}

// CustomerFromExternalReference reads the customer id out of
// appointment_<millis>_<customer> and appointment_retry_<millis>_<customer>.
func CustomerFromExternalReference(ref string) string {
	rest, ok := strings.CutPrefix(ref, "appointment_")
	if !ok {
		return ""
	}
	rest = strings.TrimPrefix(rest, "retry_")

	_, customerID, ok := strings.Cut(rest, "_")
	if !ok {
		return ""
	}
	return customerID
}

func lastPathSegment(resource string) string {
	resource = strings.TrimRight(strings.TrimSpace(resource), "/")
	if resource == "" {
		return ""
	}
	if i := strings.LastIndex(resource, "/"); i >= 0 {
		resource = resource[i+1:]
	}
	if i := strings.IndexAny(resource, "?#"); i >= 0 {
		resource = resource[:i]
	}
	return resource
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
