package repository

import (
	"context"
	"strings"
	"time"

	"barbershop-payments/internal/model"

	"gorm.io/gorm"
)

type AppointmentRepository interface {
	CreateMany(ctx context.Context, tx *gorm.DB, appointments []*model.Appointment) error
	Get(ctx context.Context, appointmentID string) (*model.Appointment, error)
	FindPendingByPreferenceID(ctx context.Context, preferenceID string) ([]*model.Appointment, error)
	FindPendingByNotesPreference(ctx context.Context, preferenceID string) ([]*model.Appointment, error)
	FindPendingByCustomer(ctx context.Context, customerID, scheduledDate, timeSlot string) ([]*model.Appointment, error)
	// ConfirmPending moves the given appointments from pending_payment to
	// scheduled and returns how many actually transitioned.
	ConfirmPending(ctx context.Context, tx *gorm.DB, appointmentIDs []string) (int64, error)
	TransitionStatus(ctx context.Context, tx *gorm.DB, appointmentID string, from, to model.AppointmentStatus) (bool, error)
	UpdatePreference(ctx context.Context, tx *gorm.DB, appointmentIDs []string, preferenceID, notes string) error
	ListByCustomer(ctx context.Context, customerID string) ([]*model.Appointment, error)
	ListByReservations(ctx context.Context, reservationIDs []uint) ([]*model.Appointment, error)
	FindStalePending(ctx context.Context, createdBefore time.Time) ([]*model.Appointment, error)
	Delete(ctx context.Context, tx *gorm.DB, appointmentID string) error
}

type appointmentRepoImpl struct {
	db *gorm.DB
}

func NewAppointmentRepository(db *gorm.DB) AppointmentRepository {
	return &appointmentRepoImpl{
		db: db,
	}
}

func (r *appointmentRepoImpl) CreateMany(ctx context.Context, tx *gorm.DB, appointments []*model.Appointment) error {
	return tx.WithContext(ctx).Create(&appointments).Error
}

func (r *appointmentRepoImpl) Get(ctx context.Context, appointmentID string) (*model.Appointment, error) {
	var appointment model.Appointment
	err := r.db.WithContext(ctx).
		Where("id = ?", appointmentID).
		First(&appointment).Error
	if err != nil {
		return nil, err
	}

	return &appointment, nil
}

func (r *appointmentRepoImpl) FindPendingByPreferenceID(ctx context.Context, preferenceID string) ([]*model.Appointment, error) {
	return r.findPending(ctx, r.db.Where("preference_id = ?", preferenceID))
}

// FindPendingByNotesPreference covers rows written before the preference_id
// column existed, where the id only lives at the end of the notes.
func (r *appointmentRepoImpl) FindPendingByNotesPreference(ctx context.Context, preferenceID string) ([]*model.Appointment, error) {
	return r.findPending(ctx, r.db.Where("notes LIKE ? ESCAPE '!'", "%Preferência MP: "+escapeLike(preferenceID)))
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// escapeLike makes s match literally in a LIKE pattern with ESCAPE '!'.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (r *appointmentRepoImpl) FindPendingByCustomer(ctx context.Context, customerID, scheduledDate, timeSlot string) ([]*model.Appointment, error) {
	scope := r.db.Where("customer_id = ?", customerID)
	if scheduledDate != "" {
		scope = scope.Where("scheduled_date = ?", scheduledDate)
	}
	if timeSlot != "" {
		scope = scope.Where("time_slot = ?", timeSlot)
	}

	return r.findPending(ctx, scope)
}

func (r *appointmentRepoImpl) findPending(ctx context.Context, scope *gorm.DB) ([]*model.Appointment, error) {
	var appointments []*model.Appointment
	err := r.db.WithContext(ctx).
		Where(scope).
		Where("status = ?", model.AppointmentPendingPayment).
		Order("created_at").
		Find(&appointments).Error
	if err != nil {
		return nil, err
	}

	return appointments, nil
}

func (r *appointmentRepoImpl) ConfirmPending(ctx context.Context, tx *gorm.DB, appointmentIDs []string) (int64, error) {
	result := tx.WithContext(ctx).Model(&model.Appointment{}).
		Where("id IN ? AND status = ?", appointmentIDs, model.AppointmentPendingPayment).
		Updates(map[string]interface{}{
			"status":     model.AppointmentScheduled,
			"updated_at": time.Now(),
		})

	return result.RowsAffected, result.Error
}

func (r *appointmentRepoImpl) TransitionStatus(ctx context.Context, tx *gorm.DB, appointmentID string, from, to model.AppointmentStatus) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.Appointment{}).
		Where("id = ? AND status = ?", appointmentID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

func (r *appointmentRepoImpl) UpdatePreference(ctx context.Context, tx *gorm.DB, appointmentIDs []string, preferenceID, notes string) error {
	return tx.WithContext(ctx).Model(&model.Appointment{}).
		Where("id IN ?", appointmentIDs).
		Updates(map[string]interface{}{
			"preference_id": preferenceID,
			"notes":         notes,
			"updated_at":    time.Now(),
		}).Error
}

func (r *appointmentRepoImpl) ListByCustomer(ctx context.Context, customerID string) ([]*model.Appointment, error) {
	var appointments []*model.Appointment
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("scheduled_time DESC").
		Find(&appointments).Error
	if err != nil {
		return nil, err
	}

	return appointments, nil
}

func (r *appointmentRepoImpl) ListByReservations(ctx context.Context, reservationIDs []uint) ([]*model.Appointment, error) {
	var appointments []*model.Appointment
	if len(reservationIDs) == 0 {
		return appointments, nil
	}

	err := r.db.WithContext(ctx).
		Where("reservation_id IN ?", reservationIDs).
		Find(&appointments).Error
	if err != nil {
		return nil, err
	}

	return appointments, nil
}

func (r *appointmentRepoImpl) FindStalePending(ctx context.Context, createdBefore time.Time) ([]*model.Appointment, error) {
	var appointments []*model.Appointment
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.AppointmentPendingPayment, createdBefore).
		Find(&appointments).Error
	if err != nil {
		return nil, err
	}

	return appointments, nil
}

func (r *appointmentRepoImpl) Delete(ctx context.Context, tx *gorm.DB, appointmentID string) error {
	result := tx.WithContext(ctx).
		Where("id = ?", appointmentID).
		Delete(&model.Appointment{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}
