package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
	_ "time/tzdata"

	"barbershop-payments/internal/config"
	"barbershop-payments/internal/dto"
	"barbershop-payments/internal/model"
	"barbershop-payments/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	SlotMorning   = "morning"
	SlotAfternoon = "afternoon"
	SlotEvening   = "evening"
)

var slotStartHour = map[string]int{
	SlotMorning:   10,
	SlotAfternoon: 14,
	SlotEvening:   18,
}

type QueueService interface {
	// Reserve claims the smallest free position of the shift.
	Reserve(ctx context.Context, queueDate, timeSlot, customerID string) (*model.QueueReservation, error)
	AttachPreference(ctx context.Context, reservationID uint, preferenceID string) error
	// Release frees a position once no active appointment holds it.
	Release(ctx context.Context, tx *gorm.DB, reservationID uint) error
	Occupancy(ctx context.Context, queueDate, timeSlot string) (*dto.QueueOccupancyResponse, error)
	ScheduledTime(queueDate, timeSlot string) (time.Time, error)
	ExpireStalePending(ctx context.Context) (int, error)
}

type queueServiceImpl struct {
	db              *gorm.DB
	queueRepo       repository.QueueRepository
	appointmentRepo repository.AppointmentRepository
	capacity        int
	location        *time.Location
	holdTTL         time.Duration
	log             *zap.Logger
	now             func() time.Time
}

func NewQueueService(
	db *gorm.DB,
	queueRepo repository.QueueRepository,
	appointmentRepo repository.AppointmentRepository,
	queueCfg config.Queue,
	log *zap.Logger,
) (QueueService, error) {
	location, err := time.LoadLocation(queueCfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load queue time zone %q: %w", queueCfg.TimeZone, err)
	}

	capacity := queueCfg.Capacity
	if capacity <= 0 {
		capacity = 5
	}

	return &queueServiceImpl{
		db:              db,
		queueRepo:       queueRepo,
		appointmentRepo: appointmentRepo,
		capacity:        capacity,
		location:        location,
		holdTTL:         queueCfg.HoldTTL,
		log:             log,
		now:             time.Now,
	}, nil
}

func (s *queueServiceImpl) Reserve(ctx context.Context, queueDate, timeSlot, customerID string) (*model.QueueReservation, error) {
	if _, err := s.ScheduledTime(queueDate, timeSlot); err != nil {
		return nil, err
	}

	// each failed insert means someone else took a position, so the loop is
	// bounded by the capacity plus a little slack for released positions
	for attempt := 0; attempt < s.capacity+3; attempt++ {
		occupied, err := s.queueRepo.OccupiedPositions(ctx, queueDate, timeSlot)
		if err != nil {
			return nil, fmt.Errorf("read occupied positions: %w", err)
		}

		position := smallestFreePosition(occupied, s.capacity)
		if position == 0 {
			return nil, ErrSlotFull
		}

		reservation := &model.QueueReservation{
			QueueDate:  queueDate,
			TimeSlot:   timeSlot,
			Position:   position,
			CustomerID: customerID,
		}
		err = s.queueRepo.Create(ctx, reservation)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			s.log.Debug("queue position taken concurrently, retrying",
				zap.String("date", queueDate),
				zap.String("slot", timeSlot),
				zap.Int("position", position),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create queue reservation: %w", err)
		}

		return reservation, nil
	}

	return nil, ErrSlotFull
}

func (s *queueServiceImpl) AttachPreference(ctx context.Context, reservationID uint, preferenceID string) error {
	return s.queueRepo.SetPreferenceID(ctx, reservationID, preferenceID)
}

func (s *queueServiceImpl) Release(ctx context.Context, tx *gorm.DB, reservationID uint) error {
	if reservationID == 0 {
		return nil
	}
	if tx == nil {
		tx = s.db
	}

	if _, err := s.queueRepo.DeleteIfUnused(ctx, tx, reservationID); err != nil {
		return fmt.Errorf("release queue reservation: %w", err)
	}
	return nil
}

func (s *queueServiceImpl) Occupancy(ctx context.Context, queueDate, timeSlot string) (*dto.QueueOccupancyResponse, error) {
	if _, err := s.ScheduledTime(queueDate, timeSlot); err != nil {
		return nil, err
	}

	reservations, err := s.queueRepo.ListBySlot(ctx, queueDate, timeSlot)
	if err != nil {
		return nil, fmt.Errorf("list queue reservations: %w", err)
	}

	ids := make([]uint, len(reservations))
	for i, r := range reservations {
		ids[i] = r.ID
	}
	appointments, err := s.appointmentRepo.ListByReservations(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list queue appointments: %w", err)
	}

	byReservation := make(map[uint][]*model.Appointment)
	for _, a := range appointments {
		byReservation[a.ReservationID] = append(byReservation[a.ReservationID], a)
	}

	resp := &dto.QueueOccupancyResponse{
		Date:     queueDate,
		TimeSlot: timeSlot,
		Capacity: s.capacity,
		Entries:  make([]*dto.QueueEntry, 0, len(reservations)),
	}
	for _, r := range reservations {
		entry := &dto.QueueEntry{
			Position:       r.Position,
			CustomerID:     r.CustomerID,
			Status:         string(model.AppointmentPendingPayment),
			AppointmentIDs: []string{},
		}
		for _, a := range byReservation[r.ID] {
			entry.AppointmentIDs = append(entry.AppointmentIDs, a.ID)
			entry.Status = string(a.Status)
		}
		resp.Entries = append(resp.Entries, entry)
	}
	resp.Available = s.capacity - len(resp.Entries)
	if resp.Available < 0 {
		resp.Available = 0
	}

	return resp, nil
}

// ScheduledTime maps a shift to its start in the shop's time zone.
func (s *queueServiceImpl) ScheduledTime(queueDate, timeSlot string) (time.Time, error) {
	hour, ok := slotStartHour[timeSlot]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: unknown time slot %q", ErrInvalidRequest, timeSlot)
	}

	day, err := time.ParseInLocation(time.DateOnly, queueDate, s.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: scheduled_date must be YYYY-MM-DD", ErrInvalidRequest)
	}

	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, s.location), nil
}

// ExpireStalePending cancels checkouts that were never paid within the hold
// window and gives their positions back.
func (s *queueServiceImpl) ExpireStalePending(ctx context.Context) (int, error) {
	if s.holdTTL <= 0 {
		return 0, nil
	}

	stale, err := s.appointmentRepo.FindStalePending(ctx, s.now().Add(-s.holdTTL))
	if err != nil {
		return 0, fmt.Errorf("find stale pending appointments: %w", err)
	}

	expired := 0
	for _, appointment := range stale {
		cancelled := false
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ok, err := s.appointmentRepo.TransitionStatus(ctx, tx, appointment.ID,
				model.AppointmentPendingPayment, model.AppointmentCancelled)
			if err != nil || !ok {
				return err
			}
			cancelled = true

			return s.Release(ctx, tx, appointment.ReservationID)
		})
		if err != nil {
			return expired, fmt.Errorf("expire appointment %s: %w", appointment.ID, err)
		}
		if cancelled {
			expired++
		}
	}

	s.log.Info("expired stale pending appointments", zap.Int("count", expired))
	return expired, nil
}

func smallestFreePosition(occupied []int, capacity int) int {
	sort.Ints(occupied)
	next := 1
	for _, p := range occupied {
		if p == next {
			next++
		} else if p > next {
			break
		}
	}
	if next > capacity {
		return 0
	}
	return next
}
