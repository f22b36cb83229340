package model

import (
	"errors"
	"time"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Active reports whether the appointment still occupies its slot.
func (s Status) Active() bool {
	return s == StatusScheduled
}

type Appointment struct {
	ID              string
	PatientID       string
	StaffID         *string
	StartAt         time.Time
	EndAt           time.Time
	DurationMinutes int
	Status          Status
	Memo            string
	AdminMemo       string
	IsMemoResolved  bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Staff returns the staff id or "" when unassigned.
func (a Appointment) Staff() string {
	if a.StaffID == nil {
		return ""
	}
	return *a.StaffID
}

type Patient struct {
	ID        string
	Name      string
	Phone     string
	UpdatedAt time.Time
}

// AppointmentPatch lists the mutable columns; nil fields are left untouched.
// EndAt is not patchable on its own, stores derive it from StartAt and DurationMinutes.
type AppointmentPatch struct {
	StartAt         *time.Time
	DurationMinutes *int
	Status          *Status
	IsMemoResolved  *bool
}

// Apply returns a copy of appt with the patch applied and EndAt recomputed.
func (p AppointmentPatch) Apply(appt Appointment, now time.Time) Appointment {
	if p.StartAt != nil {
		appt.StartAt = p.StartAt.UTC()
	}
	if p.DurationMinutes != nil {
		appt.DurationMinutes = *p.DurationMinutes
	}
	if p.Status != nil {
		appt.Status = *p.Status
	}
	if p.IsMemoResolved != nil {
		appt.IsMemoResolved = *p.IsMemoResolved
	}
	appt.EndAt = EndOf(appt.StartAt, appt.DurationMinutes)
	appt.UpdatedAt = now
	return appt
}

// EndOf derives the end instant of a booking.
func EndOf(start time.Time, durationMinutes int) time.Time {
	return start.Add(time.Duration(durationMinutes) * time.Minute).UTC()
}

// RangeQuery selects appointments whose StartAt lies in [From, To], both inclusive.
type RangeQuery struct {
	StaffID    *string
	From       time.Time
	To         time.Time
	ActiveOnly bool
}

var (
	ErrNotFound  = errors.New("not found")
	ErrSlotTaken = errors.New("slot already taken")
)
