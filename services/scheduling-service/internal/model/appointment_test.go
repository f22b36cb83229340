package model

import (
	"testing"
	"time"
)

func TestStatusActive(t *testing.T) {
	if !StatusScheduled.Active() {
		t.Fatal("scheduled must be active")
	}
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusNoShow} {
		if s.Active() {
			t.Fatalf("%s must be inactive", s)
		}
		if !s.Valid() {
			t.Fatalf("%s must be valid", s)
		}
	}
	if Status("booked").Valid() {
		t.Fatal("unknown status must be invalid")
	}
}

func TestPatchRecomputesEnd(t *testing.T) {
	start := time.Date(2026, 1, 15, 1, 0, 0, 0, time.UTC)
	appt := Appointment{StartAt: start, DurationMinutes: 60, EndAt: EndOf(start, 60), Status: StatusScheduled}

	newStart := start.Add(2 * time.Hour)
	dur := 30
	now := start.Add(-time.Hour)
	got := AppointmentPatch{StartAt: &newStart, DurationMinutes: &dur}.Apply(appt, now)

	if !got.EndAt.Equal(newStart.Add(30 * time.Minute)) {
		t.Fatalf("expected end %s, got %s", newStart.Add(30*time.Minute), got.EndAt)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated at %s, got %s", now, got.UpdatedAt)
	}
	if appt.DurationMinutes != 60 {
		t.Fatal("patch must not mutate the original")
	}
}
