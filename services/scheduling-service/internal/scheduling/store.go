package scheduling

import (
	"context"

	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/model"
)

// Event types written alongside each committed change.
const (
	EventBooked       = "frontdesk.appointment.booked.v1"
	EventRescheduled  = "frontdesk.appointment.rescheduled.v1"
	EventCompleted    = "frontdesk.appointment.completed.v1"
	EventCancelled    = "frontdesk.appointment.cancelled.v1"
	EventNoShow       = "frontdesk.appointment.no_show.v1"
	EventMemoResolved = "frontdesk.appointment.memo_resolved.v1"
)

type PatientFinder interface {
	// FindPatient returns model.ErrNotFound when the patient does not exist.
	FindPatient(ctx context.Context, id string) (model.Patient, error)
}

type StaffAppointments interface {
	FindAppointmentsByStaff(ctx context.Context, staffID string, activeOnly bool) ([]model.Appointment, error)
}

// Reader is the read side of the appointment store. Reads are not serialized
// against writers.
type Reader interface {
	PatientFinder
	StaffAppointments
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context, q model.RangeQuery) ([]model.Appointment, error)
}

// Tx is a write transaction. Only the Manager holds one.
type Tx interface {
	Reader
	GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error)
	// InsertAppointment assigns ID, CreatedAt and UpdatedAt.
	InsertAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, id string, patch model.AppointmentPatch) (model.Appointment, error)
	RecordEvent(ctx context.Context, eventType string, appt model.Appointment) error
}

type Store interface {
	Reader
	// WithinStaffTx runs fn in a transaction that excludes every other writer
	// for staffKey until it commits or rolls back. An empty key takes no lock.
	WithinStaffTx(ctx context.Context, staffKey string, fn func(ctx context.Context, tx Tx) error) error
}
