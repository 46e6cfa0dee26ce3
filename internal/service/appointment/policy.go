package appointment

import (
	"github.com/carebook/booking-api/internal/model"
)

// canAct is the central authorization predicate consulted before every
// mutation and single-record read. Ownership is always derived from the
// current appointment record, never from anything the client claimed.
func canAct(caller *model.Caller, appt *model.Appointment) bool {
	if caller == nil {
		return false
	}
	switch caller.Role {
	case model.RoleAdmin:
		return true
	case model.RolePatient:
		return caller.ID == appt.PatientID
	case model.RoleProvider:
		return caller.ID == appt.ProviderID
	}
	return false
}

// canWriteNotes restricts notes/prescription to the owning provider or an
// admin; patients never write clinical text.
func canWriteNotes(caller *model.Caller, appt *model.Appointment) bool {
	if caller == nil {
		return false
	}
	switch caller.Role {
	case model.RoleAdmin:
		return true
	case model.RoleProvider:
		return caller.ID == appt.ProviderID
	}
	return false
}

// scopeFilters narrows a list request to the caller's own appointments.
// Admins list unscoped; everyone else gets "list my own" without per-item
// policy checks.
func scopeFilters(caller *model.Caller, filters *model.AppointmentFilters) *model.AppointmentFilters {
	if filters == nil {
		filters = &model.AppointmentFilters{}
	}
	switch caller.Role {
	case model.RolePatient:
		filters.PatientID = caller.ID
	case model.RoleProvider:
		filters.ProviderID = caller.ID
	}
	return filters
}
