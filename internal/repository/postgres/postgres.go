package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/carebook/booking-api/internal/repository"
)

type appointmentRepository struct {
	db *sqlx.DB
}

type providerRepository struct {
	db *sqlx.DB
}

type patientRepository struct {
	db *sqlx.DB
}

type sequenceRepository struct {
	db    *sqlx.DB
	floor int64
}

type outboxRepository struct {
	db *sqlx.DB
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{db: db}
}

func NewProviderRepository(db *sqlx.DB) repository.ProviderRepository {
	return &providerRepository{db: db}
}

func NewPatientRepository(db *sqlx.DB) repository.PatientRepository {
	return &patientRepository{db: db}
}

// NewSequenceRepository creates an allocator whose first value for a fresh
// scope is floor.
func NewSequenceRepository(db *sqlx.DB, floor int64) repository.SequenceRepository {
	return &sequenceRepository{db: db, floor: floor}
}

func NewOutboxRepository(db *sqlx.DB) repository.OutboxRepository {
	return &outboxRepository{db: db}
}

const uniqueViolation = "23505"

// wrapError folds driver errors into the repository sentinels. Unique
// violations and no-row results carry domain meaning; connection-level
// failures are marked retryable.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == uniqueViolation {
			return repository.ErrSlotTaken
		}
		// Class 08 = connection exceptions, 53 = insufficient resources,
		// 57 = operator intervention (shutdown).
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return fmt.Errorf("%s: %v: %w", op, err, repository.ErrUnavailable)
		}
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %v: %w", op, err, repository.ErrUnavailable)
	}

	return fmt.Errorf("%s: %w", op, err)
}
