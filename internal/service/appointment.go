package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"barbershop-payments/internal/dto"
	"barbershop-payments/internal/model"
	"barbershop-payments/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AppointmentService interface {
	ListMine(ctx context.Context, customerID string) ([]*dto.AppointmentResponse, error)
	// Delete is allowed while the appointment is unpaid or once its time has
	// passed.
	Delete(ctx context.Context, customerID, appointmentID string) error
	Start(ctx context.Context, sellerUserID, appointmentID string) error
	Complete(ctx context.Context, sellerUserID, appointmentID string) error
}

type appointmentServiceImpl struct {
	db              *gorm.DB
	appointmentRepo repository.AppointmentRepository
	sellerRepo      repository.SellerRepository
	queue           QueueService
	log             *zap.Logger
	now             func() time.Time
}

func NewAppointmentService(
	db *gorm.DB,
	appointmentRepo repository.AppointmentRepository,
	sellerRepo repository.SellerRepository,
	queue QueueService,
	log *zap.Logger,
) AppointmentService {
	return &appointmentServiceImpl{
		db:              db,
		appointmentRepo: appointmentRepo,
		sellerRepo:      sellerRepo,
		queue:           queue,
		log:             log,
		now:             time.Now,
	}
}

func (s *appointmentServiceImpl) ListMine(ctx context.Context, customerID string) ([]*dto.AppointmentResponse, error) {
	if customerID == "" {
		return nil, ErrUnauthenticated
	}

	appointments, err := s.appointmentRepo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	resp := make([]*dto.AppointmentResponse, len(appointments))
	for i, a := range appointments {
		resp[i] = &dto.AppointmentResponse{
			ID:            a.ID,
			ServiceID:     a.ServiceID,
			SellerID:      a.SellerID,
			ScheduledTime: a.ScheduledTime,
			ScheduledDate: a.ScheduledDate,
			TimeSlot:      a.TimeSlot,
			QueuePosition: a.QueuePosition,
			Status:        string(a.Status),
			TotalPrice:    a.TotalPrice,
			PreferenceID:  a.PreferenceID,
		}
	}
	return resp, nil
}

func (s *appointmentServiceImpl) Delete(ctx context.Context, customerID, appointmentID string) error {
	if customerID == "" {
		return ErrUnauthenticated
	}

	appointment, err := s.getOwned(ctx, appointmentID, func(a *model.Appointment) bool {
		return a.CustomerID == customerID
	})
	if err != nil {
		return err
	}

	pastTime := appointment.ScheduledTime.Before(s.now())
	if appointment.Status != model.AppointmentPendingPayment && !pastTime {
		return ErrAppointmentLocked
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.appointmentRepo.Delete(ctx, tx, appointment.ID); err != nil {
			return err
		}
		return s.queue.Release(ctx, tx, appointment.ReservationID)
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrAppointmentNotFound
	}
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}

	s.log.Info("appointment deleted", zap.String("appointment_id", appointment.ID), zap.String("customer_id", customerID))
	return nil
}

func (s *appointmentServiceImpl) Start(ctx context.Context, sellerUserID, appointmentID string) error {
	return s.sellerTransition(ctx, sellerUserID, appointmentID, model.AppointmentScheduled, model.AppointmentInProgress)
}

func (s *appointmentServiceImpl) Complete(ctx context.Context, sellerUserID, appointmentID string) error {
	return s.sellerTransition(ctx, sellerUserID, appointmentID, model.AppointmentInProgress, model.AppointmentCompleted)
}

func (s *appointmentServiceImpl) sellerTransition(ctx context.Context, sellerUserID, appointmentID string, from, to model.AppointmentStatus) error {
	if sellerUserID == "" {
		return ErrUnauthenticated
	}

	seller, err := s.sellerRepo.GetByUserID(ctx, sellerUserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrAppointmentNotFound
	}
	if err != nil {
		return fmt.Errorf("get seller: %w", err)
	}

	appointment, err := s.getOwned(ctx, appointmentID, func(a *model.Appointment) bool {
		return a.SellerID == seller.ID
	})
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.appointmentRepo.TransitionStatus(ctx, tx, appointment.ID, from, to)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidAppointmentStatus
		}
		// the position is given back once the customer leaves the waiting queue
		return s.queue.Release(ctx, tx, appointment.ReservationID)
	})
	if err != nil {
		if errors.Is(err, ErrInvalidAppointmentStatus) {
			return err
		}
		return fmt.Errorf("update appointment status: %w", err)
	}

	s.log.Info("appointment status changed",
		zap.String("appointment_id", appointment.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}

func (s *appointmentServiceImpl) getOwned(ctx context.Context, appointmentID string, owns func(*model.Appointment) bool) (*model.Appointment, error) {
	appointment, err := s.appointmentRepo.Get(ctx, appointmentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if !owns(appointment) {
		return nil, ErrAppointmentNotFound
	}
	return appointment, nil
}
