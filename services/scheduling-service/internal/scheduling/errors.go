package scheduling

import (
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/model"
)

var ErrAppointmentNotFound = errors.New("appointment not found")

// ValidationError reports a malformed or dangling booking request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError reports that the staff member is already booked. The
// conflicting id is empty when the overlap was caught by the database
// constraint rather than by the detector.
type ConflictError struct {
	StaffID                  string
	ConflictingAppointmentID string
}

func (e *ConflictError) Error() string {
	if e.ConflictingAppointmentID == "" {
		return fmt.Sprintf("staff %s is already booked for this time", e.StaffID)
	}
	return fmt.Sprintf("staff %s is already booked for this time (appointment %s)", e.StaffID, e.ConflictingAppointmentID)
}

type InvalidTransitionError struct {
	AppointmentID string
	From          model.Status
	To            model.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("appointment %s cannot move from %s to %s", e.AppointmentID, e.From, e.To)
}

// StoreError wraps a failure of the appointment store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
