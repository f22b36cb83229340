package scheduling

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/model"
)

var tracer = otel.Tracer("github.com/md-rashed-zaman/frontdesk/scheduling")

type Config struct {
	Zone Zone
	// BackfillHorizon limits how far back bookings may start; zero means no limit.
	BackfillHorizon time.Duration
}

// Manager owns every write to appointment state.
type Manager struct {
	store     Store
	clock     Clock
	zone      Zone
	validator Validator
	logger    *slog.Logger
}

func NewManager(store Store, clock Clock, logger *slog.Logger, cfg Config) *Manager {
	if clock == nil {
		clock = SystemClock{}
	}
	zone := cfg.Zone
	if zone.Location() == nil {
		zone = JST
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		clock:     clock,
		zone:      zone,
		validator: NewValidator(clock, cfg.BackfillHorizon),
		logger:    logger,
	}
}

func (m *Manager) Zone() Zone          { return m.zone }
func (m *Manager) Now() time.Time      { return m.clock.Now() }
func (m *Manager) Today() CalendarDate { return m.zone.Today(m.clock) }

type CreateRequest struct {
	PatientID string
	StaffID   *string
	StartAt   time.Time
	// DurationMinutes defaults to DefaultDurationMinutes when nil.
	DurationMinutes *int
	Memo            string
	AdminMemo       string
}

// Create books a new appointment. StartAt is taken as an absolute instant;
// wall-clock input must already have gone through Zone.ParseInstant.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (appt model.Appointment, err error) {
	staffID := normalizeStaff(req.StaffID)
	ctx, span := tracer.Start(ctx, "appointments.create", trace.WithAttributes(
		attribute.String("patient.id", req.PatientID),
		attribute.String("staff.id", deref(staffID)),
	))
	defer func() { endSpan(span, err) }()

	duration := DefaultDurationMinutes
	if req.DurationMinutes != nil {
		duration = *req.DurationMinutes
	}
	start := req.StartAt.UTC()

	err = m.store.WithinStaffTx(ctx, deref(staffID), func(ctx context.Context, tx Tx) error {
		if err := m.validator.Validate(ctx, tx, Request{PatientID: req.PatientID, StartAt: start, DurationMinutes: duration}); err != nil {
			return err
		}
		if err := m.ensureFree(ctx, tx, staffID, start, duration, ""); err != nil {
			return err
		}

		adminMemo := strings.TrimSpace(req.AdminMemo)
		created, err := tx.InsertAppointment(ctx, model.Appointment{
			PatientID:       strings.TrimSpace(req.PatientID),
			StaffID:         staffID,
			StartAt:         start,
			EndAt:           model.EndOf(start, duration),
			DurationMinutes: duration,
			Status:          model.StatusScheduled,
			Memo:            strings.TrimSpace(req.Memo),
			AdminMemo:       adminMemo,
			IsMemoResolved:  adminMemo == "",
		})
		if err != nil {
			if errors.Is(err, model.ErrSlotTaken) {
				return &ConflictError{StaffID: deref(staffID)}
			}
			return storeErr("insert appointment", err)
		}
		if err := tx.RecordEvent(ctx, EventBooked, created); err != nil {
			return storeErr("record event", err)
		}
		appt = created
		return nil
	})
	if err != nil {
		return model.Appointment{}, classify("create", err)
	}

	span.SetAttributes(attribute.String("appointment.id", appt.ID))
	m.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"staff_id", appt.Staff(),
		"start_at", appt.StartAt.Format(time.RFC3339),
		"duration_minutes", appt.DurationMinutes,
	)
	return appt, nil
}

type RescheduleRequest struct {
	StartAt time.Time
	// DurationMinutes keeps the current duration when nil.
	DurationMinutes *int
}

// Reschedule moves a scheduled appointment, ignoring its own current slot
// when checking for conflicts.
func (m *Manager) Reschedule(ctx context.Context, id string, req RescheduleRequest) (appt model.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointments.reschedule", trace.WithAttributes(attribute.String("appointment.id", id)))
	defer func() { endSpan(span, err) }()

	current, err := m.get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	start := req.StartAt.UTC()

	err = m.store.WithinStaffTx(ctx, current.Staff(), func(ctx context.Context, tx Tx) error {
		locked, err := lockAppointment(ctx, tx, id)
		if err != nil {
			return err
		}
		if !locked.Status.Active() {
			return &InvalidTransitionError{AppointmentID: id, From: locked.Status, To: model.StatusScheduled}
		}

		duration := locked.DurationMinutes
		if req.DurationMinutes != nil {
			duration = *req.DurationMinutes
		}
		if err := m.validator.Validate(ctx, tx, Request{PatientID: locked.PatientID, StartAt: start, DurationMinutes: duration}); err != nil {
			return err
		}
		if err := m.ensureFree(ctx, tx, locked.StaffID, start, duration, id); err != nil {
			return err
		}

		updated, err := tx.UpdateAppointment(ctx, id, model.AppointmentPatch{StartAt: &start, DurationMinutes: &duration})
		if err != nil {
			if errors.Is(err, model.ErrSlotTaken) {
				return &ConflictError{StaffID: locked.Staff()}
			}
			return storeErr("update appointment", err)
		}
		if err := tx.RecordEvent(ctx, EventRescheduled, updated); err != nil {
			return storeErr("record event", err)
		}
		appt = updated
		return nil
	})
	if err != nil {
		return model.Appointment{}, classify("reschedule", err)
	}

	m.logger.Info("appointment rescheduled",
		"appointment_id", appt.ID,
		"staff_id", appt.Staff(),
		"start_at", appt.StartAt.Format(time.RFC3339),
		"duration_minutes", appt.DurationMinutes,
	)
	return appt, nil
}

var transitionEvents = map[model.Status]string{
	model.StatusCompleted: EventCompleted,
	model.StatusCancelled: EventCancelled,
	model.StatusNoShow:    EventNoShow,
}

// CanTransition reports whether the lifecycle allows from -> to. Only
// scheduled appointments move, and only to a terminal status.
func CanTransition(from, to model.Status) bool {
	if from != model.StatusScheduled {
		return false
	}
	_, ok := transitionEvents[to]
	return ok
}

func (m *Manager) Transition(ctx context.Context, id string, to model.Status) (appt model.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointments.transition", trace.WithAttributes(
		attribute.String("appointment.id", id),
		attribute.String("appointment.status", string(to)),
	))
	defer func() { endSpan(span, err) }()

	if !to.Valid() {
		return model.Appointment{}, &ValidationError{Field: "status", Reason: "unknown status " + string(to)}
	}
	current, err := m.get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}

	var from model.Status
	err = m.store.WithinStaffTx(ctx, current.Staff(), func(ctx context.Context, tx Tx) error {
		locked, err := lockAppointment(ctx, tx, id)
		if err != nil {
			return err
		}
		from = locked.Status
		if !CanTransition(from, to) {
			return &InvalidTransitionError{AppointmentID: id, From: from, To: to}
		}
		updated, err := tx.UpdateAppointment(ctx, id, model.AppointmentPatch{Status: &to})
		if err != nil {
			return storeErr("update appointment", err)
		}
		if err := tx.RecordEvent(ctx, transitionEvents[to], updated); err != nil {
			return storeErr("record event", err)
		}
		appt = updated
		return nil
	})
	if err != nil {
		return model.Appointment{}, classify("transition", err)
	}

	m.logger.Info("appointment status changed", "appointment_id", id, "from", from, "status", to)
	return appt, nil
}

func (m *Manager) Complete(ctx context.Context, id string) (model.Appointment, error) {
	return m.Transition(ctx, id, model.StatusCompleted)
}

func (m *Manager) Cancel(ctx context.Context, id string) (model.Appointment, error) {
	return m.Transition(ctx, id, model.StatusCancelled)
}

func (m *Manager) MarkNoShow(ctx context.Context, id string) (model.Appointment, error) {
	return m.Transition(ctx, id, model.StatusNoShow)
}

// ResolveAdminMemo marks the staff-internal note as handled.
func (m *Manager) ResolveAdminMemo(ctx context.Context, id string) (appt model.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointments.resolve_memo", trace.WithAttributes(attribute.String("appointment.id", id)))
	defer func() { endSpan(span, err) }()

	current, err := m.get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if current.IsMemoResolved {
		return current, nil
	}

	resolved := true
	changed := false
	err = m.store.WithinStaffTx(ctx, current.Staff(), func(ctx context.Context, tx Tx) error {
		locked, err := lockAppointment(ctx, tx, id)
		if err != nil {
			return err
		}
		if locked.IsMemoResolved {
			appt = locked
			return nil
		}
		updated, err := tx.UpdateAppointment(ctx, id, model.AppointmentPatch{IsMemoResolved: &resolved})
		if err != nil {
			return storeErr("update appointment", err)
		}
		if err := tx.RecordEvent(ctx, EventMemoResolved, updated); err != nil {
			return storeErr("record event", err)
		}
		appt = updated
		changed = true
		return nil
	})
	if err != nil {
		return model.Appointment{}, classify("resolve memo", err)
	}

	if changed {
		m.logger.Info("appointment memo resolved", "appointment_id", id, "staff_id", appt.Staff(), "status", appt.Status)
	}
	return appt, nil
}

func (m *Manager) Get(ctx context.Context, id string) (model.Appointment, error) {
	return m.get(ctx, id)
}

// ListForRange returns appointments starting in [from, to], both inclusive,
// ordered by start.
func (m *Manager) ListForRange(ctx context.Context, staffID *string, from, to time.Time, activeOnly bool) ([]model.Appointment, error) {
	if from.IsZero() || to.IsZero() {
		return nil, &ValidationError{Field: "range", Reason: "from and to are required"}
	}
	if to.Before(from) {
		return nil, &ValidationError{Field: "range", Reason: "to is before from"}
	}
	appts, err := m.store.ListAppointments(ctx, model.RangeQuery{
		StaffID:    normalizeStaff(staffID),
		From:       from.UTC(),
		To:         to.UTC(),
		ActiveOnly: activeOnly,
	})
	if err != nil {
		return nil, storeErr("list appointments", err)
	}
	return appts, nil
}

// ListForDays covers whole business-zone days from first to last inclusive.
// A zero last means the single day first.
func (m *Manager) ListForDays(ctx context.Context, staffID *string, first, last CalendarDate, activeOnly bool) ([]model.Appointment, error) {
	if last.IsZero() {
		last = first
	}
	if last.Before(first) {
		return nil, &ValidationError{Field: "to_date", Reason: "is before date"}
	}
	return m.ListForRange(ctx, staffID, m.zone.DayStart(first), m.zone.DayEnd(last), activeOnly)
}

func (m *Manager) ListForToday(ctx context.Context, staffID *string, activeOnly bool) ([]model.Appointment, error) {
	today := m.Today()
	return m.ListForDays(ctx, staffID, today, today, activeOnly)
}

func (m *Manager) ensureFree(ctx context.Context, tx Tx, staffID *string, start time.Time, duration int, excludeID string) error {
	conflictID, found, err := NewDetector(tx).FindConflict(ctx, staffID, start, duration, excludeID)
	if err != nil {
		return storeErr("find conflicts", err)
	}
	if found {
		return &ConflictError{StaffID: deref(staffID), ConflictingAppointmentID: conflictID}
	}
	return nil
}

func (m *Manager) get(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := m.store.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Appointment{}, notFound(id)
		}
		return model.Appointment{}, storeErr("get appointment", err)
	}
	return appt, nil
}

func lockAppointment(ctx context.Context, tx Tx, id string) (model.Appointment, error) {
	appt, err := tx.GetAppointmentForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Appointment{}, notFound(id)
		}
		return model.Appointment{}, storeErr("lock appointment", err)
	}
	return appt, nil
}

func notFound(id string) error {
	return &notFoundError{id: id}
}

type notFoundError struct{ id string }

func (e *notFoundError) Error() string { return "appointment " + e.id + ": not found" }
func (e *notFoundError) Unwrap() error { return ErrAppointmentNotFound }

// classify passes domain errors through untouched and wraps anything else
// (begin/commit failures) as a StoreError.
func classify(op string, err error) error {
	var (
		ve *ValidationError
		ce *ConflictError
		te *InvalidTransitionError
		se *StoreError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &ce), errors.As(err, &te), errors.As(err, &se):
		return err
	case errors.Is(err, ErrAppointmentNotFound):
		return err
	case errors.Is(err, model.ErrSlotTaken):
		return &ConflictError{}
	}
	return &StoreError{Op: op, Err: err}
}

func normalizeStaff(staffID *string) *string {
	if staffID == nil {
		return nil
	}
	s := strings.TrimSpace(*staffID)
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
