package appointment

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/hackgods/consultation-scheduling/internal/auth"
)

func TestPolicy_Capabilities(t *testing.T) {
	patient := auth.Caller{UserID: uuid.New(), Role: auth.RolePatient}
	pro := auth.Caller{UserID: uuid.New(), Role: auth.RoleProfessional}
	admin := auth.Caller{UserID: uuid.New(), Role: auth.RoleAdmin}
	otherPatient := auth.Caller{UserID: uuid.New(), Role: auth.RolePatient}
	otherPro := auth.Caller{UserID: uuid.New(), Role: auth.RoleProfessional}
	// Same user id as the patient but acting with another role.
	patientAsPro := auth.Caller{UserID: patient.UserID, Role: auth.RoleProfessional}

	d := &AppointmentDetail{
		Patient:      Party{UserID: patient.UserID},
		Professional: Party{UserID: pro.UserID},
	}

	cases := []struct {
		name  string
		check func(auth.Caller, *AppointmentDetail) Decision
		yes   []auth.Caller
		no    []auth.Caller
	}{
		{"view", CanView, []auth.Caller{patient, pro, admin}, []auth.Caller{otherPatient, otherPro, patientAsPro}},
		{"cancel", CanCancel, []auth.Caller{patient, pro, admin}, []auth.Caller{otherPatient, otherPro}},
		{"complete", CanComplete, []auth.Caller{pro}, []auth.Caller{patient, admin, otherPro}},
		{"start", CanStart, []auth.Caller{pro}, []auth.Caller{patient, admin, otherPro}},
		{"confirm", CanConfirm, []auth.Caller{admin}, []auth.Caller{patient, pro}},
		{"video room", CanAttachVideoRoom, []auth.Caller{admin}, []auth.Caller{patient, pro}},
		{"rate", CanRate, []auth.Caller{patient}, []auth.Caller{otherPatient, pro, admin}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, c := range tc.yes {
				if dec := tc.check(c, d); !dec.Allowed {
					t.Fatalf("expected %s to be allowed, got %q", c, dec.Reason)
				}
			}
			for _, c := range tc.no {
				dec := tc.check(c, d)
				if dec.Allowed {
					t.Fatalf("expected %s to be denied", c)
				}
				if !errors.Is(dec.Err(), ErrForbidden) {
					t.Fatalf("expected forbidden error, got %v", dec.Err())
				}
			}
		})
	}
}

func TestPolicy_CanBook(t *testing.T) {
	if !CanBook(auth.Caller{Role: auth.RolePatient}).Allowed {
		t.Fatalf("patients must be able to book")
	}
	for _, r := range []auth.Role{auth.RoleProfessional, auth.RoleAdmin} {
		if CanBook(auth.Caller{Role: r}).Allowed {
			t.Fatalf("%s must not be able to book", r)
		}
	}
}

func TestPolicy_Scope(t *testing.T) {
	patient := auth.Caller{UserID: uuid.New(), Role: auth.RolePatient}
	pro := auth.Caller{UserID: uuid.New(), Role: auth.RoleProfessional}
	spoofed := uuid.New()

	f := Scope(patient, ListFilter{ProfessionalUserID: &spoofed})
	if f.PatientUserID == nil || *f.PatientUserID != patient.UserID || f.ProfessionalUserID != nil {
		t.Fatalf("patient scope not enforced: %+v", f)
	}

	f = Scope(pro, ListFilter{PatientUserID: &spoofed})
	if f.ProfessionalUserID == nil || *f.ProfessionalUserID != pro.UserID || f.PatientUserID != nil {
		t.Fatalf("professional scope not enforced: %+v", f)
	}

	f = Scope(auth.Caller{Role: auth.RoleAdmin}, ListFilter{PatientUserID: &spoofed})
	if f.PatientUserID == nil || *f.PatientUserID != spoofed {
		t.Fatalf("admin filter must pass through: %+v", f)
	}
}
