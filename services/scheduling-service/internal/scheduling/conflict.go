package scheduling

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/model"
)

// Interval is a half-open [Start, End) window.
type Interval struct {
	Start time.Time
	End   time.Time
}

func IntervalOf(start time.Time, durationMinutes int) Interval {
	return Interval{Start: start, End: model.EndOf(start, durationMinutes)}
}

// Overlaps treats touching intervals as disjoint: back-to-back bookings are fine.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

type Detector struct {
	appointments StaffAppointments
}

func NewDetector(appointments StaffAppointments) Detector {
	return Detector{appointments: appointments}
}

// FindConflict returns the id of the first active appointment of staffID that
// overlaps the candidate. Unassigned candidates never conflict.
func (d Detector) FindConflict(ctx context.Context, staffID *string, startAt time.Time, durationMinutes int, excludeID string) (string, bool, error) {
	if staffID == nil {
		return "", false, nil
	}
	existing, err := d.appointments.FindAppointmentsByStaff(ctx, *staffID, true)
	if err != nil {
		return "", false, err
	}

	candidate := IntervalOf(startAt, durationMinutes)
	for _, appt := range existing {
		if appt.ID == excludeID || !appt.Status.Active() {
			continue
		}
		if candidate.Overlaps(IntervalOf(appt.StartAt, appt.DurationMinutes)) {
			return appt.ID, true, nil
		}
	}
	return "", false, nil
}

func (d Detector) HasConflict(ctx context.Context, staffID *string, startAt time.Time, durationMinutes int, excludeID string) (bool, error) {
	_, found, err := d.FindConflict(ctx, staffID, startAt, durationMinutes, excludeID)
	return found, err
}
