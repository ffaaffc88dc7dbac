package appointment

import (
	"github.com/hackgods/consultation-scheduling/internal/auth"
)

// Decision is the outcome of a capability check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Err converts a denial into a forbidden error.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return ErrForbidden.WithDetail(d.Reason)
}

func isPatientOf(c auth.Caller, d *AppointmentDetail) bool {
	return c.Role == auth.RolePatient && c.UserID == d.Patient.UserID
}

func isProfessionalOf(c auth.Caller, d *AppointmentDetail) bool {
	return c.Role == auth.RoleProfessional && c.UserID == d.Professional.UserID
}

func CanBook(c auth.Caller) Decision {
	if c.Role != auth.RolePatient {
		return deny("only patients can book appointments")
	}
	return allow()
}

func CanView(c auth.Caller, d *AppointmentDetail) Decision {
	if c.IsAdmin() || isPatientOf(c, d) || isProfessionalOf(c, d) {
		return allow()
	}
	return deny("appointment belongs to another user")
}

func CanCancel(c auth.Caller, d *AppointmentDetail) Decision {
	if c.IsAdmin() || isPatientOf(c, d) || isProfessionalOf(c, d) {
		return allow()
	}
	return deny("only the patient, the professional or an admin can cancel")
}

func CanComplete(c auth.Caller, d *AppointmentDetail) Decision {
	if isProfessionalOf(c, d) {
		return allow()
	}
	return deny("only the assigned professional can complete")
}

func CanStart(c auth.Caller, d *AppointmentDetail) Decision {
	if isProfessionalOf(c, d) {
		return allow()
	}
	return deny("only the assigned professional can start")
}

// CanConfirm gates payment confirmation, which arrives through the payment
// collaborator acting with an admin identity.
func CanConfirm(c auth.Caller, _ *AppointmentDetail) Decision {
	if c.IsAdmin() {
		return allow()
	}
	return deny("only an admin can confirm payment")
}

func CanAttachVideoRoom(c auth.Caller, _ *AppointmentDetail) Decision {
	if c.IsAdmin() {
		return allow()
	}
	return deny("only an admin can attach a video room")
}

func CanRate(c auth.Caller, d *AppointmentDetail) Decision {
	if isPatientOf(c, d) {
		return allow()
	}
	return deny("only the patient of the appointment can rate it")
}

// Scope restricts a listing to what c may see.
func Scope(c auth.Caller, f ListFilter) ListFilter {
	switch c.Role {
	case auth.RolePatient:
		id := c.UserID
		f.PatientUserID = &id
		f.ProfessionalUserID = nil
	case auth.RoleProfessional:
		id := c.UserID
		f.ProfessionalUserID = &id
		f.PatientUserID = nil
	case auth.RoleAdmin:
	default:
		// Unknown roles see nothing.
		none := c.UserID
		f.PatientUserID = &none
		f.ProfessionalUserID = &none
	}
	return f
}
