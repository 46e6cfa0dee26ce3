package appointment

import (
	"github.com/carebook/booking-api/internal/model"
)

// transitions is the full lifecycle table. Absent sources are terminal.
var transitions = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.AppointmentStatusPending: {
		model.AppointmentStatusConfirmed,
		model.AppointmentStatusCancelled,
	},
	model.AppointmentStatusConfirmed: {
		model.AppointmentStatusInProgress,
		model.AppointmentStatusCancelled,
		model.AppointmentStatusNoShow,
	},
	model.AppointmentStatusInProgress: {
		model.AppointmentStatusCompleted,
		model.AppointmentStatusCancelled,
	},
}

// CanTransition reports whether from→to is an edge of the lifecycle table.
func CanTransition(from, to model.AppointmentStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions.
func IsTerminal(status model.AppointmentStatus) bool {
	return len(transitions[status]) == 0
}

// roleMayRequest checks the role-level transition rules on top of the table:
// patients may only ever ask for a cancellation, and only before the visit
// has started. Providers and admins may request any table-legal transition;
// ownership is checked separately.
func roleMayRequest(role model.Role, from, to model.AppointmentStatus) bool {
	if role == model.RolePatient {
		if to != model.AppointmentStatusCancelled {
			return false
		}
		return from == model.AppointmentStatusPending || from == model.AppointmentStatusConfirmed
	}
	return true
}

// canReschedule reports whether an appointment in this status may still be
// moved to a new slot. Reschedule is not a table transition: it resets the
// lifecycle to pending, and is only allowed before the visit has started.
func canReschedule(status model.AppointmentStatus) bool {
	return status == model.AppointmentStatusPending || status == model.AppointmentStatusConfirmed
}
