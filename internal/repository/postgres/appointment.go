package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carebook/booking-api/internal/model"
	"github.com/carebook/booking-api/internal/repository"
)

const appointmentColumns = `
	id, number, patient_id, provider_id, date, slot_start, slot_end,
	mode, status, amount, payment_status, symptoms, notes, prescription,
	cancel_reason, created_at, updated_at`

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, number, patient_id, provider_id, date, slot_start, slot_end,
			mode, status, amount, payment_status, symptoms, notes,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	now := time.Now()
	appointment.CreatedAt = now
	appointment.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		appointment.ID,
		appointment.Number,
		appointment.PatientID,
		appointment.ProviderID,
		appointment.Date,
		appointment.SlotStart,
		appointment.SlotEnd,
		appointment.Mode,
		appointment.Status,
		appointment.Amount,
		appointment.PaymentStatus,
		appointment.Symptoms,
		appointment.Notes,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	if err != nil {
		return wrapError("create appointment", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var appointment model.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		return nil, wrapError("get appointment", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	if filters != nil {
		if filters.PatientID != uuid.Nil {
			query += fmt.Sprintf(" AND patient_id = $%d", argCount)
			args = append(args, filters.PatientID)
			argCount++
		}
		if filters.ProviderID != uuid.Nil {
			query += fmt.Sprintf(" AND provider_id = $%d", argCount)
			args = append(args, filters.ProviderID)
			argCount++
		}
		if filters.Status != "" {
			query += fmt.Sprintf(" AND status = $%d", argCount)
			args = append(args, filters.Status)
			argCount++
		}
		if !filters.DateFrom.IsZero() {
			query += fmt.Sprintf(" AND date >= $%d", argCount)
			args = append(args, filters.DateFrom)
			argCount++
		}
		if !filters.DateTo.IsZero() {
			query += fmt.Sprintf(" AND date <= $%d", argCount)
			args = append(args, filters.DateTo)
			argCount++
		}
	}

	query += " ORDER BY date ASC, slot_start ASC"

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, wrapError("list appointments", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) HasSlotConflict(ctx context.Context, providerID uuid.UUID, date time.Time, slotStart string, excludeID *uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE provider_id = $1
			AND date = $2
			AND slot_start = $3
			AND status NOT IN ('cancelled', 'no_show')
	`
	args := []interface{}{providerID, date, slotStart}

	if excludeID != nil {
		query += " AND id != $4"
		args = append(args, *excludeID)
	}

	query += ")"

	var hasConflict bool
	if err := r.db.GetContext(ctx, &hasConflict, query, args...); err != nil {
		return false, wrapError("check slot conflict", err)
	}
	return hasConflict, nil
}

// UpdateStatus is a compare-and-set: the expected current status travels with
// the write, so a concurrent transition makes this one match zero rows.
func (r *appointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.AppointmentStatus, cancelReason *string) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET status = $3,
		    cancel_reason = COALESCE($4, cancel_reason),
		    updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + appointmentColumns

	var appointment model.Appointment
	err := r.db.GetContext(ctx, &appointment, query, id, from, to, cancelReason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrStaleRecord
		}
		return nil, wrapError("update appointment status", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) Reschedule(ctx context.Context, id uuid.UUID, date time.Time, slot model.TimeSlot) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET date = $2,
		    slot_start = $3,
		    slot_end = $4,
		    status = 'pending',
		    updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'confirmed')
		RETURNING ` + appointmentColumns

	var appointment model.Appointment
	err := r.db.GetContext(ctx, &appointment, query, id, date, slot.Start, slot.End)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrStaleRecord
		}
		return nil, wrapError("reschedule appointment", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) UpdateNotes(ctx context.Context, id uuid.UUID, notes, prescription *string) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET notes = COALESCE($2, notes),
		    prescription = COALESCE($3, prescription),
		    updated_at = now()
		WHERE id = $1 AND status NOT IN ('completed', 'cancelled', 'no_show')
		RETURNING ` + appointmentColumns

	var appointment model.Appointment
	err := r.db.GetContext(ctx, &appointment, query, id, notes, prescription)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrStaleRecord
		}
		return nil, wrapError("update appointment notes", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) MarkPaid(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET payment_status = 'paid',
		    updated_at = now()
		WHERE id = $1 AND payment_status = 'pending'
		RETURNING ` + appointmentColumns

	var appointment model.Appointment
	err := r.db.GetContext(ctx, &appointment, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrStaleRecord
		}
		return nil, wrapError("mark appointment paid", err)
	}
	return &appointment, nil
}

// MarkRefunded flips paid→refunded and appends the audit line to notes in the
// same statement, so a half-applied refund is never observable.
func (r *appointmentRepository) MarkRefunded(ctx context.Context, id uuid.UUID, auditNote string) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET payment_status = 'refunded',
		    notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END,
		    updated_at = now()
		WHERE id = $1 AND payment_status = 'paid'
		RETURNING ` + appointmentColumns

	var appointment model.Appointment
	err := r.db.GetContext(ctx, &appointment, query, id, auditNote)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrStaleRecord
		}
		return nil, wrapError("mark appointment refunded", err)
	}
	return &appointment, nil
}
