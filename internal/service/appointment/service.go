package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carebook/booking-api/internal/model"
	"github.com/carebook/booking-api/internal/repository"
	apperrors "github.com/carebook/booking-api/pkg/errors"
	"github.com/carebook/booking-api/pkg/logger"
	"github.com/carebook/booking-api/pkg/metrics"
	"github.com/carebook/booking-api/pkg/validator"
)

// sequenceScope is the allocator scope for human-facing appointment numbers.
const sequenceScope = "appointment"

// ProviderDirectory is the provider-directory collaborator the orchestrator
// consumes: fee and existence, nothing more.
type ProviderDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Provider, error)
}

// PatientDirectory supplies display fields for the read-side projection.
type PatientDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
}

// Service orchestrates the appointment write path: validation, authorization,
// the slot conflict guard and the lifecycle state machine. It is the only
// component that mutates appointment records.
type Service struct {
	repo      repository.AppointmentRepository
	seq       repository.SequenceRepository
	providers ProviderDirectory
	patients  PatientDirectory
	outbox    repository.OutboxRepository
	logger    *logger.Logger
	metrics   *metrics.Metrics

	now func() time.Time
}

func NewService(
	repo repository.AppointmentRepository,
	seq repository.SequenceRepository,
	providers ProviderDirectory,
	patients PatientDirectory,
	outbox repository.OutboxRepository,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		repo:      repo,
		seq:       seq,
		providers: providers,
		patients:  patients,
		outbox:    outbox,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// CreateAppointment books a slot. The conflict pre-check gives a fast
// rejection; the storage uniqueness constraint is the authority of last
// resort, and a lost race surfaces as the same Conflict error.
func (s *Service) CreateAppointment(ctx context.Context, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	date, slot, err := s.validateSchedule(req.Date, req.TimeSlot)
	if err != nil {
		s.countBooking("invalid")
		return nil, err
	}

	provider, err := s.providers.Get(ctx, req.ProviderID)
	if err != nil {
		s.countBooking("error")
		return nil, storageError(err, "provider")
	}

	taken, err := s.repo.HasSlotConflict(ctx, req.ProviderID, date, slot.Start, nil)
	if err != nil {
		s.countBooking("error")
		return nil, storageError(err, "appointment")
	}
	if taken {
		s.countBooking("conflict")
		s.countConflict()
		return nil, apperrors.Conflict("slot already booked", nil)
	}

	number, err := s.seq.Next(ctx, sequenceScope)
	if err != nil {
		// Never create the record without a valid sequence value.
		s.countBooking("error")
		return nil, storageError(err, "appointment")
	}

	appt := &model.Appointment{
		Base:          model.Base{ID: uuid.New()},
		Number:        number,
		PatientID:     req.PatientID,
		ProviderID:    req.ProviderID,
		Date:          date,
		SlotStart:     slot.Start,
		SlotEnd:       slot.End,
		Mode:          req.Mode,
		Status:        model.AppointmentStatusPending,
		Amount:        provider.Fee,
		PaymentStatus: model.PaymentStatusPending,
		Symptoms:      req.Symptoms,
	}

	if err := s.repo.Create(ctx, appt); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			// Lost the race to a concurrent writer: same answer as the pre-check.
			s.countBooking("conflict")
			s.countConflict()
			return nil, apperrors.Conflict("slot already booked", nil)
		}
		s.countBooking("error")
		return nil, storageError(err, "appointment")
	}

	s.countBooking("success")
	s.emit(ctx, model.EventAppointmentCreated, appt)
	return appt, nil
}

// UpdateStatus applies one lifecycle transition. The expected current status
// travels with the write, so two callers racing the same record cannot both
// apply.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, target model.AppointmentStatus, reason string, caller *model.Caller) (*model.Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, storageError(err, "appointment")
	}

	if !canAct(caller, appt) {
		return nil, apperrors.Forbidden("not allowed to modify this appointment")
	}
	if !roleMayRequest(caller.Role, appt.Status, target) {
		return nil, apperrors.Forbidden("patients may only cancel pending or confirmed appointments")
	}
	if !CanTransition(appt.Status, target) {
		s.countIllegal()
		return nil, apperrors.IllegalTransition(string(appt.Status), string(target))
	}

	var cancelReason *string
	if target == model.AppointmentStatusCancelled && reason != "" {
		cancelReason = &reason
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, target, cancelReason)
	if err != nil {
		if errors.Is(err, repository.ErrStaleRecord) {
			return nil, s.reportStale(ctx, id, target)
		}
		return nil, storageError(err, "appointment")
	}

	s.countTransition(appt.Status, target)
	eventType := model.EventAppointmentStatus
	if target == model.AppointmentStatusCancelled {
		eventType = model.EventAppointmentCancelled
	}
	s.emit(ctx, eventType, updated)
	return updated, nil
}

// reportStale re-reads after a lost compare-and-set and produces the
// deterministic answer a retry is promised: the transition that is now
// illegal, named against the current state.
func (s *Service) reportStale(ctx context.Context, id uuid.UUID, target model.AppointmentStatus) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return storageError(err, "appointment")
	}
	s.countIllegal()
	return apperrors.IllegalTransition(string(current.Status), string(target))
}

// RescheduleAppointment moves a pending or confirmed appointment to a new
// slot and resets the lifecycle to pending.
func (s *Service) RescheduleAppointment(ctx context.Context, id uuid.UUID, req *model.RescheduleAppointmentRequest, caller *model.Caller) (*model.Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, storageError(err, "appointment")
	}

	if !canAct(caller, appt) {
		return nil, apperrors.Forbidden("not allowed to modify this appointment")
	}
	if !canReschedule(appt.Status) {
		return nil, apperrors.IllegalState(fmt.Sprintf("appointment in status %q cannot be rescheduled", appt.Status))
	}

	date, slot, err := s.validateSchedule(req.Date, req.TimeSlot)
	if err != nil {
		return nil, err
	}

	taken, err := s.repo.HasSlotConflict(ctx, appt.ProviderID, date, slot.Start, &id)
	if err != nil {
		return nil, storageError(err, "appointment")
	}
	if taken {
		s.countConflict()
		return nil, apperrors.Conflict("slot already booked", nil)
	}

	updated, err := s.repo.Reschedule(ctx, id, date, slot)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSlotTaken):
			s.countConflict()
			return nil, apperrors.Conflict("slot already booked", nil)
		case errors.Is(err, repository.ErrStaleRecord):
			current, gerr := s.repo.Get(ctx, id)
			if gerr != nil {
				return nil, storageError(gerr, "appointment")
			}
			return nil, apperrors.IllegalState(fmt.Sprintf("appointment in status %q cannot be rescheduled", current.Status))
		}
		return nil, storageError(err, "appointment")
	}

	s.emit(ctx, model.EventAppointmentRescheduled, updated)
	return updated, nil
}

// CancelAppointment is a convenience wrapper over the cancelled transition.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, reason string, caller *model.Caller) (*model.Appointment, error) {
	return s.UpdateStatus(ctx, id, model.AppointmentStatusCancelled, reason, caller)
}

// UpdateNotes writes clinical notes and prescription text. Terminal
// appointments are immutable.
func (s *Service) UpdateNotes(ctx context.Context, id uuid.UUID, req *model.UpdateNotesRequest, caller *model.Caller) (*model.Appointment, error) {
	if req.Notes == nil && req.Prescription == nil {
		return nil, apperrors.BadRequest("nothing to update", nil)
	}

	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, storageError(err, "appointment")
	}

	if !canWriteNotes(caller, appt) {
		return nil, apperrors.Forbidden("only the provider or an admin may update notes")
	}
	if appt.IsTerminal() {
		return nil, apperrors.IllegalState(fmt.Sprintf("appointment in status %q is immutable", appt.Status))
	}

	updated, err := s.repo.UpdateNotes(ctx, id, req.Notes, req.Prescription)
	if err != nil {
		if errors.Is(err, repository.ErrStaleRecord) {
			current, gerr := s.repo.Get(ctx, id)
			if gerr != nil {
				return nil, storageError(gerr, "appointment")
			}
			return nil, apperrors.IllegalState(fmt.Sprintf("appointment in status %q is immutable", current.Status))
		}
		return nil, storageError(err, "appointment")
	}
	return updated, nil
}

// MarkPaid records the payment collaborator's capture result.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID, caller *model.Caller) (*model.Appointment, error) {
	if caller == nil || caller.Role != model.RoleAdmin {
		return nil, apperrors.Forbidden("only admins may update payment status")
	}

	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, storageError(err, "appointment")
	}

	updated, err := s.repo.MarkPaid(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrStaleRecord) {
			current, gerr := s.repo.Get(ctx, id)
			if gerr != nil {
				return nil, storageError(gerr, "appointment")
			}
			return nil, apperrors.Conflict(fmt.Sprintf("payment is %q, expected pending", current.PaymentStatus), nil)
		}
		return nil, storageError(err, "appointment")
	}
	return updated, nil
}

// ProcessRefund moves paid→refunded and appends an audit line to notes.
// Deliberately independent of the lifecycle status: a completed visit can
// still be refunded. Not reversible.
func (s *Service) ProcessRefund(ctx context.Context, id uuid.UUID, req *model.ProcessRefundRequest, caller *model.Caller) (*model.Appointment, error) {
	if caller == nil || caller.Role != model.RoleAdmin {
		return nil, apperrors.Forbidden("only admins may process refunds")
	}

	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, storageError(err, "appointment")
	}

	if req.Amount <= 0 || req.Amount > appt.Amount {
		return nil, apperrors.BadRequest(fmt.Sprintf("refund amount must be between 1 and %d", appt.Amount), nil)
	}
	if appt.PaymentStatus != model.PaymentStatusPaid {
		return nil, apperrors.Conflict(fmt.Sprintf("payment is %q, refund requires paid", appt.PaymentStatus), nil)
	}

	auditNote := fmt.Sprintf("[refund] %d refunded (%s) by admin %s at %s",
		req.Amount, req.Reason, caller.ID, s.now().UTC().Format(time.RFC3339))

	updated, err := s.repo.MarkRefunded(ctx, id, auditNote)
	if err != nil {
		if errors.Is(err, repository.ErrStaleRecord) {
			current, gerr := s.repo.Get(ctx, id)
			if gerr != nil {
				return nil, storageError(gerr, "appointment")
			}
			return nil, apperrors.Conflict(fmt.Sprintf("payment is %q, refund requires paid", current.PaymentStatus), nil)
		}
		return nil, storageError(err, "appointment")
	}

	if s.metrics != nil {
		s.metrics.RefundsProcessed.Inc()
	}
	s.emit(ctx, model.EventAppointmentRefunded, updated)
	return updated, nil
}

// GetAppointment reads one appointment under the ownership rule and joins in
// the display fields for the response projection.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID, caller *model.Caller) (*model.AppointmentDetail, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, storageError(err, "appointment")
	}

	if !canAct(caller, appt) {
		return nil, apperrors.Forbidden("not allowed to view this appointment")
	}

	return s.project(ctx, appt), nil
}

// ListAppointments lists appointments scoped to the caller.
func (s *Service) ListAppointments(ctx context.Context, filters *model.AppointmentFilters, caller *model.Caller) ([]*model.Appointment, error) {
	appointments, err := s.repo.List(ctx, scopeFilters(caller, filters))
	if err != nil {
		return nil, storageError(err, "appointments")
	}
	return appointments, nil
}

// project attaches provider/patient display fields. Lookups are best-effort:
// the projection is presentation, not an invariant, so a missing directory
// record degrades to the bare appointment.
func (s *Service) project(ctx context.Context, appt *model.Appointment) *model.AppointmentDetail {
	detail := &model.AppointmentDetail{Appointment: *appt}

	if provider, err := s.providers.Get(ctx, appt.ProviderID); err == nil {
		detail.ProviderName = provider.Name
		detail.ProviderSpecialty = provider.Specialty
	}
	if s.patients != nil {
		if patient, err := s.patients.Get(ctx, appt.PatientID); err == nil {
			detail.PatientName = patient.Name
		}
	}
	return detail
}

// validateSchedule parses and sanity-checks the requested date and slot.
// Everything here runs before any storage I/O.
func (s *Service) validateSchedule(dateStr string, slot model.TimeSlot) (time.Time, model.TimeSlot, error) {
	if !validator.IsTimeSlot(slot.Start) || !validator.IsTimeSlot(slot.End) {
		return time.Time{}, slot, apperrors.BadRequest("time slot must be HH:mm", nil)
	}
	if slot.End <= slot.Start {
		return time.Time{}, slot, apperrors.BadRequest("slot end must be after slot start", nil)
	}

	date, err := model.ParseDate(dateStr)
	if err != nil {
		return time.Time{}, slot, apperrors.BadRequest("date must be YYYY-MM-DD", err)
	}

	now := s.now()
	// Compare calendar days in UTC, not instants, so a booking for "today"
	// never fails on timezone offsets alone.
	today := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	if date.Before(today) {
		return time.Time{}, slot, apperrors.BadRequest("cannot book a past date", nil)
	}
	if date.Equal(today) {
		start, err := model.SlotInstant(date, slot.Start, now.Location())
		if err != nil {
			return time.Time{}, slot, apperrors.BadRequest("time slot must be HH:mm", err)
		}
		if !start.After(now) {
			return time.Time{}, slot, apperrors.BadRequest("slot start must be in the future", nil)
		}
	}

	return date, slot, nil
}

// emit writes an event to the transactional outbox, best-effort. Delivery is
// a collaborator concern and never blocks or fails the core write.
func (s *Service) emit(ctx context.Context, eventType string, appt *model.Appointment) {
	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(appt)
	if err != nil {
		s.logger.Error(err, "failed to marshal outbox payload", "event_type", eventType)
		return
	}
	if err := s.outbox.Create(ctx, &model.OutboxEvent{EventType: eventType, Payload: payload}); err != nil {
		s.logger.Error(err, "failed to enqueue outbox event",
			"event_type", eventType,
			"appointment_id", appt.ID.String())
	}
}

func (s *Service) countBooking(result string) {
	if s.metrics != nil {
		s.metrics.BookingAttempts.WithLabelValues(result).Inc()
	}
}

func (s *Service) countConflict() {
	if s.metrics != nil {
		s.metrics.SlotConflicts.Inc()
	}
}

func (s *Service) countIllegal() {
	if s.metrics != nil {
		s.metrics.IllegalTransitions.Inc()
	}
}

func (s *Service) countTransition(from, to model.AppointmentStatus) {
	if s.metrics != nil {
		s.metrics.StatusTransitions.WithLabelValues(string(from), string(to)).Inc()
	}
}

// storageError translates repository sentinels into the caller-facing
// taxonomy.
func storageError(err error, resource string) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound(resource, err)
	case errors.Is(err, repository.ErrSlotTaken):
		return apperrors.Conflict("slot already booked", err)
	case errors.Is(err, repository.ErrUnavailable):
		return apperrors.TransientStorage(err)
	default:
		return apperrors.Internal(err)
	}
}
