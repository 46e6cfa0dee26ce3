package model

import "github.com/google/uuid"

type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleProvider, RoleAdmin:
		return true
	}
	return false
}

// Caller is the authenticated identity attached to every request. The core
// trusts its authenticity but re-derives authorization from the current
// appointment record, never from client-supplied ownership claims.
type Caller struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

type Patient struct {
	Base
	Number int64  `db:"number" json:"number"`
	Name   string `db:"name" json:"name"`
	Email  string `db:"email" json:"email"`
	Phone  string `db:"phone" json:"phone,omitempty"`
}

type Provider struct {
	Base
	Number    int64  `db:"number" json:"number"`
	Name      string `db:"name" json:"name"`
	Email     string `db:"email" json:"email"`
	Specialty string `db:"specialty" json:"specialty,omitempty"`
	// Fee is the current consultation fee in minor currency units. Appointments
	// snapshot it at creation; later fee changes never touch existing bookings.
	Fee       int64 `db:"fee" json:"fee"`
	Available bool  `db:"available" json:"available"`
}

type UpdateProviderFeeRequest struct {
	Fee int64 `json:"fee" binding:"required,gt=0"`
}
