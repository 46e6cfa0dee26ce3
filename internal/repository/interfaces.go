package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/carebook/booking-api/internal/model"
)

// Sentinel errors the storage layer reports for the orchestrator to
// translate. Anything else is a storage fault.
var (
	// ErrNotFound means the referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrSlotTaken means the slot uniqueness constraint rejected a write.
	ErrSlotTaken = errors.New("slot already booked")
	// ErrStaleRecord means a compare-and-set write matched no row: the record
	// changed (or vanished) between read and write.
	ErrStaleRecord = errors.New("record changed concurrently")
	// ErrUnavailable means the store was unreachable or timed out; the caller
	// may retry under the idempotence guarantee.
	ErrUnavailable = errors.New("storage unavailable")
)

// All repository interfaces in one file
type (
	// AppointmentRepository owns appointment persistence. Every status write
	// is a compare-and-set bundling the expected current state into the
	// UPDATE, so two racing callers can never both apply.
	AppointmentRepository interface {
		// Create inserts a new appointment. A violation of the active-slot
		// uniqueness constraint comes back as ErrSlotTaken.
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		// HasSlotConflict reports whether an active appointment already holds
		// the provider's slot, optionally ignoring one appointment id.
		HasSlotConflict(ctx context.Context, providerID uuid.UUID, date time.Time, slotStart string, excludeID *uuid.UUID) (bool, error)
		// UpdateStatus applies from→to only if the row still carries from;
		// otherwise ErrStaleRecord.
		UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.AppointmentStatus, cancelReason *string) (*model.Appointment, error)
		// Reschedule moves the appointment to a new slot and resets status to
		// pending, only while status is still pending or confirmed.
		Reschedule(ctx context.Context, id uuid.UUID, date time.Time, slot model.TimeSlot) (*model.Appointment, error)
		// UpdateNotes writes notes/prescription while the appointment is not
		// in a terminal state.
		UpdateNotes(ctx context.Context, id uuid.UUID, notes, prescription *string) (*model.Appointment, error)
		// MarkPaid moves payment_status pending→paid.
		MarkPaid(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		// MarkRefunded moves payment_status paid→refunded and appends the
		// audit line to notes in the same write.
		MarkRefunded(ctx context.Context, id uuid.UUID, auditNote string) (*model.Appointment, error)
	}

	// SequenceRepository hands out gap-tolerant, strictly increasing numbers
	// per named scope via a single atomic increment-and-fetch.
	SequenceRepository interface {
		Next(ctx context.Context, scope string) (int64, error)
	}

	ProviderRepository interface {
		Create(ctx context.Context, provider *model.Provider) error
		Get(ctx context.Context, id uuid.UUID) (*model.Provider, error)
		GetByEmail(ctx context.Context, email string) (*model.Provider, error)
		List(ctx context.Context) ([]*model.Provider, error)
		UpdateFee(ctx context.Context, id uuid.UUID, fee int64) (*model.Provider, error)
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		GetByEmail(ctx context.Context, email string) (*model.Patient, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	}

	// CodeStore is the externally owned, expiring key-value collaborator for
	// one-time login codes. Entries expire on their own; nothing is kept in
	// process memory.
	CodeStore interface {
		Store(ctx context.Context, key, code string, ttl time.Duration) error
		Verify(ctx context.Context, key, code string) (bool, error)
		Invalidate(ctx context.Context, key string) error
	}
)
