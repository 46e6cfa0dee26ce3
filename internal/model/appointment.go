package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusPending    AppointmentStatus = "pending"
	AppointmentStatusConfirmed  AppointmentStatus = "confirmed"
	AppointmentStatusInProgress AppointmentStatus = "in_progress"
	AppointmentStatusCompleted  AppointmentStatus = "completed"
	AppointmentStatusCancelled  AppointmentStatus = "cancelled"
	AppointmentStatusNoShow     AppointmentStatus = "no_show"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type ConsultationMode string

const (
	ConsultationModeVideo  ConsultationMode = "video"
	ConsultationModeClinic ConsultationMode = "clinic"
	ConsultationModeHome   ConsultationMode = "home"
)

// DateFormat is the calendar-day granularity used for appointment dates.
// Dates are anchored to UTC midnight to avoid timezone drift.
const DateFormat = "2006-01-02"

// SlotFormat is the wall-clock format of slot boundaries.
const SlotFormat = "15:04"

// TimeSlot is a bookable interval within a day, "HH:mm" wall-clock strings.
type TimeSlot struct {
	Start string `json:"start" binding:"required,timeslot"`
	End   string `json:"end" binding:"required,timeslot"`
}

type Appointment struct {
	Base
	// Number is the human-facing identifier handed out by the sequence
	// allocator; the opaque UUID stays the record key.
	Number       int64             `db:"number" json:"number"`
	PatientID    uuid.UUID         `db:"patient_id" json:"patient_id"`
	ProviderID   uuid.UUID         `db:"provider_id" json:"provider_id"`
	Date         time.Time         `db:"date" json:"date"`
	SlotStart    string            `db:"slot_start" json:"slot_start"`
	SlotEnd      string            `db:"slot_end" json:"slot_end"`
	Mode         ConsultationMode  `db:"mode" json:"mode"`
	Status       AppointmentStatus `db:"status" json:"status"`
	// Amount is the fee snapshot taken from the provider at creation time,
	// in minor currency units. Provider fee updates never change it.
	Amount        int64         `db:"amount" json:"amount"`
	PaymentStatus PaymentStatus `db:"payment_status" json:"payment_status"`
	Symptoms      string        `db:"symptoms" json:"symptoms,omitempty"`
	Notes         string        `db:"notes" json:"notes,omitempty"`
	Prescription  *string       `db:"prescription" json:"prescription,omitempty"`
	CancelReason  *string       `db:"cancel_reason" json:"cancel_reason,omitempty"`
}

// IsTerminal reports whether the appointment reached a state with no
// outgoing transitions.
func (a *Appointment) IsTerminal() bool {
	switch a.Status {
	case AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow:
		return true
	}
	return false
}

// Slot returns the appointment's time slot.
func (a *Appointment) Slot() TimeSlot {
	return TimeSlot{Start: a.SlotStart, End: a.SlotEnd}
}

// AppointmentDetail is the denormalized read-side projection returned to
// callers. The display fields are joined in by the read path and never stored.
type AppointmentDetail struct {
	Appointment
	PatientName       string `json:"patient_name,omitempty"`
	ProviderName      string `json:"provider_name,omitempty"`
	ProviderSpecialty string `json:"provider_specialty,omitempty"`
}

type CreateAppointmentRequest struct {
	PatientID  uuid.UUID        `json:"patient_id" binding:"required"`
	ProviderID uuid.UUID        `json:"provider_id" binding:"required"`
	Date       string           `json:"date" binding:"required,datetime=2006-01-02"`
	TimeSlot   TimeSlot         `json:"time_slot" binding:"required"`
	Mode       ConsultationMode `json:"mode" binding:"required,oneof=video clinic home"`
	Symptoms   string           `json:"symptoms" binding:"max=2000"`
}

type RescheduleAppointmentRequest struct {
	Date     string   `json:"date" binding:"required,datetime=2006-01-02"`
	TimeSlot TimeSlot `json:"time_slot" binding:"required"`
}

type UpdateStatusRequest struct {
	Status AppointmentStatus `json:"status" binding:"required,oneof=pending confirmed in_progress completed cancelled no_show"`
	Reason string            `json:"reason" binding:"max=500"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// UpdateNotesRequest carries the enumerated note mutations. Nil fields are
// left untouched so the set of legal writes stays closed.
type UpdateNotesRequest struct {
	Notes        *string `json:"notes" binding:"omitempty,max=5000"`
	Prescription *string `json:"prescription" binding:"omitempty,max=5000"`
}

type ProcessRefundRequest struct {
	Amount int64  `json:"amount" binding:"required"`
	Reason string `json:"reason" binding:"required,max=500"`
}

type AppointmentFilters struct {
	PatientID  uuid.UUID
	ProviderID uuid.UUID
	Status     AppointmentStatus
	DateFrom   time.Time
	DateTo     time.Time
}

// ParseDate parses a request date into its canonical UTC-midnight form.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateFormat, s, time.UTC)
}

// SlotInstant combines a calendar date with a slot start into a wall-clock
// instant in the given location.
func SlotInstant(date time.Time, slotStart string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(SlotFormat, slotStart)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}
