package repository

import (
	"context"

	"barbershop-payments/internal/model"

	"gorm.io/gorm"
)

type QueueRepository interface {
	OccupiedPositions(ctx context.Context, queueDate, timeSlot string) ([]int, error)
	// Create returns gorm.ErrDuplicatedKey when the position was taken
	// concurrently.
	Create(ctx context.Context, reservation *model.QueueReservation) error
	Get(ctx context.Context, reservationID uint) (*model.QueueReservation, error)
	SetPreferenceID(ctx context.Context, reservationID uint, preferenceID string) error
	ListBySlot(ctx context.Context, queueDate, timeSlot string) ([]*model.QueueReservation, error)
	// DeleteIfUnused removes the reservation unless an active appointment
	// still points at it.
	DeleteIfUnused(ctx context.Context, tx *gorm.DB, reservationID uint) (bool, error)
}

type queueRepoImpl struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) QueueRepository {
	return &queueRepoImpl{
		db: db,
	}
}

func (r *queueRepoImpl) OccupiedPositions(ctx context.Context, queueDate, timeSlot string) ([]int, error) {
	var positions []int
	err := r.db.WithContext(ctx).Model(&model.QueueReservation{}).
		Where("queue_date = ? AND time_slot = ?", queueDate, timeSlot).
		Order("position").
		Pluck("position", &positions).Error

	return positions, err
}

func (r *queueRepoImpl) Create(ctx context.Context, reservation *model.QueueReservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *queueRepoImpl) Get(ctx context.Context, reservationID uint) (*model.QueueReservation, error) {
	var reservation model.QueueReservation
	err := r.db.WithContext(ctx).
		Where("id = ?", reservationID).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}

	return &reservation, nil
}

func (r *queueRepoImpl) SetPreferenceID(ctx context.Context, reservationID uint, preferenceID string) error {
	return r.db.WithContext(ctx).Model(&model.QueueReservation{}).
		Where("id = ?", reservationID).
		Update("preference_id", preferenceID).Error
}

func (r *queueRepoImpl) ListBySlot(ctx context.Context, queueDate, timeSlot string) ([]*model.QueueReservation, error) {
	var reservations []*model.QueueReservation
	err := r.db.WithContext(ctx).
		Where("queue_date = ? AND time_slot = ?", queueDate, timeSlot).
		Order("position").
		Find(&reservations).Error
	if err != nil {
		return nil, err
	}

	return reservations, nil
}

func (r *queueRepoImpl) DeleteIfUnused(ctx context.Context, tx *gorm.DB, reservationID uint) (bool, error) {
	active := tx.Session(&gorm.Session{NewDB: true}).Model(&model.Appointment{}).
		Select("1").
		Where("appointments.reservation_id = queue_reservations.id").
		Where("appointments.status IN ?", model.ActiveAppointmentStatuses)

	result := tx.WithContext(ctx).
		Where("id = ?", reservationID).
		Where("NOT EXISTS (?)", active).
		Delete(&model.QueueReservation{})

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}
