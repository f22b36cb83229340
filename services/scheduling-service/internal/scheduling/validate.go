package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/model"
)

const (
	MinDurationMinutes     = 15
	MaxDurationMinutes     = 480
	DefaultDurationMinutes = 60
)

// Request is the shape the Validator checks.
type Request struct {
	PatientID       string
	StartAt         time.Time
	DurationMinutes int
}

// Validator performs structural and referential checks only; conflicts are
// the Detector's job.
type Validator struct {
	clock Clock
	// horizon bounds how far in the past a booking may start. Zero allows any
	// past date for backfill.
	horizon time.Duration
}

func NewValidator(clock Clock, horizon time.Duration) Validator {
	return Validator{clock: clock, horizon: horizon}
}

// Validate checks patient, then duration, then start, stopping at the first
// failure.
func (v Validator) Validate(ctx context.Context, patients PatientFinder, req Request) error {
	patientID := strings.TrimSpace(req.PatientID)
	if patientID == "" {
		return &ValidationError{Field: "patient_id", Reason: "is required"}
	}
	if _, err := patients.FindPatient(ctx, patientID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return &ValidationError{Field: "patient_id", Reason: "unknown patient " + patientID}
		}
		return storeErr("find patient", err)
	}

	if req.DurationMinutes < MinDurationMinutes || req.DurationMinutes > MaxDurationMinutes {
		return &ValidationError{Field: "duration_minutes", Reason: "must be between 15 and 480"}
	}

	if req.StartAt.IsZero() {
		return &ValidationError{Field: "start_at", Reason: "is required"}
	}
	if v.horizon > 0 && v.clock != nil && req.StartAt.Before(v.clock.Now().Add(-v.horizon)) {
		return &ValidationError{Field: "start_at", Reason: "is earlier than the backfill horizon"}
	}
	return nil
}
