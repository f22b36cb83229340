package outbox

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/model"
)

func TestAppointmentEventOmitsMemos(t *testing.T) {
	staff := "staff-1"
	start := time.Date(2026, 1, 15, 1, 0, 0, 0, time.UTC)
	appt := model.Appointment{
		ID:              "appt-1",
		PatientID:       "patient-1",
		StaffID:         &staff,
		StartAt:         start,
		EndAt:           model.EndOf(start, 60),
		DurationMinutes: 60,
		Status:          model.StatusScheduled,
		Memo:            "allergic to latex",
		AdminMemo:       "call back about invoice",
		UpdatedAt:       start,
	}

	evt, err := AppointmentEvent("frontdesk.appointment.booked.v1", appt)
	if err != nil {
		t.Fatalf("AppointmentEvent: %v", err)
	}
	if evt.AggregateID != "appt-1" || evt.EventType != "frontdesk.appointment.booked.v1" {
		t.Fatalf("unexpected envelope: %+v", evt)
	}
	if strings.Contains(string(evt.Payload), "latex") || strings.Contains(string(evt.Payload), "invoice") {
		t.Fatalf("payload leaks memo text: %s", evt.Payload)
	}

	var decoded map[string]any
	if err := json.Unmarshal(evt.Payload, &decoded); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if decoded["end_at"] != "2026-01-15T02:00:00Z" || decoded["staff_id"] != "staff-1" {
		t.Fatalf("unexpected payload: %v", decoded)
	}
}

func TestAppointmentEventUnassignedStaffIsNull(t *testing.T) {
	evt, err := AppointmentEvent("frontdesk.appointment.booked.v1", model.Appointment{ID: "a"})
	if err != nil {
		t.Fatalf("AppointmentEvent: %v", err)
	}
	if !strings.Contains(string(evt.Payload), `"staff_id":null`) {
		t.Fatalf("expected null staff id, got %s", evt.Payload)
	}
}
