package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/model"
)

type patientSet map[string]bool

func (p patientSet) FindPatient(_ context.Context, id string) (model.Patient, error) {
	if !p[id] {
		return model.Patient{}, model.ErrNotFound
	}
	return model.Patient{ID: id}, nil
}

type brokenPatients struct{}

func (brokenPatients) FindPatient(context.Context, string) (model.Patient, error) {
	return model.Patient{}, errors.New("connection reset")
}

func validationField(t *testing.T, err error) string {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	return ve.Field
}

func TestValidateDurationBounds(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	v := NewValidator(FixedClock(now), 0)
	patients := patientSet{"p-1": true}

	for _, tc := range []struct {
		minutes int
		ok      bool
	}{
		{14, false}, {15, true}, {60, true}, {480, true}, {481, false}, {0, false}, {-30, false},
	} {
		err := v.Validate(context.Background(), patients, Request{PatientID: "p-1", StartAt: now, DurationMinutes: tc.minutes})
		if tc.ok && err != nil {
			t.Fatalf("%d minutes: unexpected error %v", tc.minutes, err)
		}
		if !tc.ok && validationField(t, err) != "duration_minutes" {
			t.Fatalf("%d minutes: wrong field", tc.minutes)
		}
	}
}

func TestValidateOrderAndFields(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	v := NewValidator(FixedClock(now), 0)
	ctx := context.Background()
	patients := patientSet{"p-1": true}

	// Unknown patient is reported before the bad duration.
	if f := validationField(t, v.Validate(ctx, patients, Request{PatientID: "p-9", StartAt: now, DurationMinutes: 5})); f != "patient_id" {
		t.Fatalf("field = %s", f)
	}
	if f := validationField(t, v.Validate(ctx, patients, Request{PatientID: " ", StartAt: now, DurationMinutes: 60})); f != "patient_id" {
		t.Fatalf("field = %s", f)
	}
	if f := validationField(t, v.Validate(ctx, patients, Request{PatientID: "p-1", DurationMinutes: 60})); f != "start_at" {
		t.Fatalf("field = %s", f)
	}
}

func TestValidateAllowsBackfill(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()
	patients := patientSet{"p-1": true}
	past := now.AddDate(-1, 0, 0)

	if err := NewValidator(FixedClock(now), 0).Validate(ctx, patients, Request{PatientID: "p-1", StartAt: past, DurationMinutes: 60}); err != nil {
		t.Fatalf("unlimited horizon should accept past start: %v", err)
	}

	limited := NewValidator(FixedClock(now), 30*24*time.Hour)
	if f := validationField(t, limited.Validate(ctx, patients, Request{PatientID: "p-1", StartAt: past, DurationMinutes: 60})); f != "start_at" {
		t.Fatalf("field = %s", f)
	}
	if err := limited.Validate(ctx, patients, Request{PatientID: "p-1", StartAt: now.AddDate(0, 0, -7), DurationMinutes: 60}); err != nil {
		t.Fatalf("start inside horizon rejected: %v", err)
	}
}

func TestValidateSurfacesStoreFailure(t *testing.T) {
	v := NewValidator(SystemClock{}, 0)
	err := v.Validate(context.Background(), brokenPatients{}, Request{PatientID: "p-1", StartAt: time.Now(), DurationMinutes: 60})
	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected StoreError, got %v", err)
	}
}
