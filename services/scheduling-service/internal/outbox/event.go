package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/model"
)

// Event is the envelope written to the outbox table. The Kafka topic equals
// EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type appointmentPayload struct {
	AppointmentID   string  `json:"appointment_id"`
	PatientID       string  `json:"patient_id"`
	StaffID         *string `json:"staff_id"`
	StartAt         string  `json:"start_at"`
	EndAt           string  `json:"end_at"`
	DurationMinutes int     `json:"duration_minutes"`
	Status          string  `json:"status"`
	IsMemoResolved  bool    `json:"is_memo_resolved"`
	OccurredAt      string  `json:"occurred_at"`
}

// AppointmentEvent builds the event for a committed appointment change. Memo
// texts stay out of the payload; downstream consumers only need the slot.
func AppointmentEvent(eventType string, appt model.Appointment) (Event, error) {
	occurred := appt.UpdatedAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	payload, err := json.Marshal(appointmentPayload{
		AppointmentID:   appt.ID,
		PatientID:       appt.PatientID,
		StaffID:         appt.StaffID,
		StartAt:         appt.StartAt.UTC().Format(time.RFC3339),
		EndAt:           appt.EndAt.UTC().Format(time.RFC3339),
		DurationMinutes: appt.DurationMinutes,
		Status:          string(appt.Status),
		IsMemoResolved:  appt.IsMemoResolved,
		OccurredAt:      occurred.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
