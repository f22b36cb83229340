package scheduling_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/scheduling"
	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/storage"
)

var day = scheduling.CalendarDate{Year: 2026, Month: time.January, Day: 15}

func newManager(t *testing.T) (*scheduling.Manager, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	for _, id := range []string{"p-1", "p-2", "p-3"} {
		if err := store.UpsertPatient(context.Background(), model.Patient{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	clock := scheduling.FixedClock(scheduling.JST.At(day, 9, 0))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return scheduling.NewManager(store, clock, logger, scheduling.Config{Zone: scheduling.JST}), store
}

func staff(s string) *string { return &s }
func minutes(n int) *int     { return &n }

func mustCreate(t *testing.T, m *scheduling.Manager, req scheduling.CreateRequest) model.Appointment {
	t.Helper()
	appt, err := m.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return appt
}

func TestCreateBackToBackAndOverlap(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	first := mustCreate(t, m, scheduling.CreateRequest{PatientID: "p-1", StaffID: staff("dr-a"), StartAt: scheduling.JST.At(day, 10, 0)})
	if first.DurationMinutes != 60 || !first.EndAt.Equal(scheduling.JST.At(day, 11, 0)) {
		t.Fatalf("unexpected defaults: %+v", first)
	}

	_, err := m.Create(ctx, scheduling.CreateRequest{PatientID: "p-2", StaffID: staff("dr-a"), StartAt: scheduling.JST.At(day, 10, 30)})
	var ce *scheduling.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if ce.ConflictingAppointmentID != first.ID || ce.StaffID != "dr-a" {
		t.Fatalf("unexpected conflict details: %+v", ce)
	}

	mustCreate(t, m, scheduling.CreateRequest{PatientID: "p-2", StaffID: staff("dr-a"), StartAt: scheduling.JST.At(day, 11, 0)})
	mustCreate(t, m, scheduling.CreateRequest{PatientID: "p-3", StaffID: staff("dr-b"), StartAt: scheduling.JST.At(day, 10, 30)})
}

func TestUnassignedNeverConflicts(t *testing.T) {
	m, _ := newManager(t)
	for i := 0; i < 3; i++ {
		appt := mustCreate(t, m, scheduling.CreateRequest{PatientID: "p-1", StaffID: staff("  "), StartAt: scheduling.JST.At(day, 10, 0)})
		if appt.StaffID != nil {
			t.Fatalf("blank staff should be stored as unassigned, got %q", *appt.StaffID)
		}
	}
}

func TestCreateRejectsExplicitZeroDuration(t *testing.T) {
	m, store := newManager(t)
	_, err := m.Create(context.Background(), scheduling.CreateRequest{PatientID: "p-1", StartAt: scheduling.JST.At(day, 10, 0), DurationMinutes: minutes(0)})
	var ve *scheduling.ValidationError
	if !errors.As(err, &ve) || ve.Field != "duration_minutes" {
		t.Fatalf("expected duration validation error, got %v", err)
	}
	if len(store.Events()) != 0 {
		t.Fatal("rejected booking must not emit events")
	}
}

func TestAdminMemoResolution(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	plain := mustCreate(t, m, scheduling.CreateRequest{PatientID: "p-1", StartAt: scheduling.JST.At(day, 10, 0), AdminMemo: "   "})
	if !plain.IsMemoResolved || plain.AdminMemo != "" {
		t.Fatalf("blank admin memo should be resolved: %+v", plain)
	}

	flagged := mustCreate(t, m, scheduling.CreateRequest{PatientID: "p-1", StartAt: scheduling.JST.At(day, 11, 0), AdminMemo: "verify insurance"})
	if flagged.IsMemoResolved {
		t.Fatal("admin memo should start unresolved")
	}
	resolved, err := m.ResolveAdminMemo(ctx, flagged.ID)
	if err != nil || !resolved.IsMemoResolved {
		t.Fatalf("resolve: %+v %v", resolved, err)
	}
	again, err := m.ResolveAdminMemo(ctx, flagged.ID)
	if err != nil || !again.IsMemoResolved {
		t.Fatalf("resolve should be idempotent: %v", err)
	}
}

func TestRescheduleExcludesItself(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	a := mustCreate(t, m, scheduling.CreateRequest{PatientID: "p-1", StaffID: staff("dr-a"), StartAt: scheduling.JST.At(day, 10, 0)})
	b := mustCreate(t, m, scheduling.CreateRequest{PatientID: "p-2", StaffID: staff("dr-a"), StartAt: scheduling.JST.At(day, 12, 0)})

	moved, err := m.Reschedule(ctx, a.ID, scheduling.RescheduleRequest{StartAt: scheduling.JST.At(day, 10, 30)})
	if err != nil {
		t.Fatalf("overlap with itself must be allowed: %v", err)
	}
	if !moved.EndAt.Equal(scheduling.JST.At(day, 11, 30)) || moved.DurationMinutes != 60 {
		t.Fatalf("unexpected moved appointment: %+v", moved)
	}

	_, err = m.Reschedule(ctx, a.ID, scheduling.RescheduleRequest{StartAt: scheduling.JST.At(day, 11, 0), DurationMinutes: minutes(90)})
	var ce *scheduling.ConflictError
	if !errors.As(err, &ce) || ce.ConflictingAppointmentID != b.ID {
		t.Fatalf("expected conflict with %s, got %v", b.ID, err)
	}

	got, err := m.Get(ctx, a.ID)
	if err != nil || !got.StartAt.Equal(moved.StartAt) {
		t.Fatalf("failed reschedule must leave the appointment untouched: %+v %v", got, err)
	}
}

func TestRescheduleRequiresScheduled(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	a := mustCreate(t, m, scheduling.CreateRequest{PatientID: "p-1", StartAt: scheduling.JST.At(day, 10, 0)})
	if _, err := m.Cancel(ctx, a.ID); err != nil {
		t.Fatal(err)
	}

	_, err := m.Reschedule(ctx, a.ID, scheduling.RescheduleRequest{StartAt: scheduling.JST.At(day, 14, 0)})
	var te *scheduling.InvalidTransitionError
	if !errors.As(err, &te) || te.From != model.StatusCancelled {
		t.Fatalf("expected InvalidTransitionError from cancelled, got %v", err)
	}
}

func TestTransitions(t *testing.T) {
	ctx := context.Background()
	terminal := []model.Status{model.StatusCompleted, model.StatusCancelled, model.StatusNoShow}

	for _, to := range terminal {
		m, _ := newManager(t)
		a := mustCreate(t, m, scheduling.CreateRequest{PatientID: "p-1", StartAt: scheduling.JST.At(day, 10, 0)})
		got, err := m.Transition(ctx, a.ID, to)
		if err != nil || got.Status != to {
			t.Fatalf("scheduled -> %s: %+v %v", to, got, err)
		}
		for _, next := range append(terminal, model.StatusScheduled) {
			_, err := m.Transition(ctx, a.ID, next)
			var te *scheduling.InvalidTransitionError
			if !errors.As(err, &te) {
				t.Fatalf("%s -> %s should be rejected, got %v", to, next, err)
			}
		}
	}

	if scheduling.CanTransition(model.StatusScheduled, model.StatusScheduled) {
		t.Fatal("scheduled -> scheduled is not a transition")
	}
}

func TestCancelledSlotIsFreed(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	a := mustCreate(t, m, scheduling.CreateRequest{PatientID: "p-1", StaffID: staff("dr-a"), StartAt: scheduling.JST.At(day, 10, 0)})
	if _, err := m.MarkNoShow(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	mustCreate(t, m, scheduling.CreateRequest{PatientID: "p-2", StaffID: staff("dr-a"), StartAt: scheduling.JST.At(day, 10, 0)})
}

func TestNotFound(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	if _, err := m.Get(ctx, "nope"); !errors.Is(err, scheduling.ErrAppointmentNotFound) {
		t.Fatalf("Get: %v", err)
	}
	if _, err := m.Complete(ctx, "nope"); !errors.Is(err, scheduling.ErrAppointmentNotFound) {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := m.Reschedule(ctx, "nope", scheduling.RescheduleRequest{StartAt: scheduling.JST.At(day, 10, 0)}); !errors.Is(err, scheduling.ErrAppointmentNotFound) {
		t.Fatalf("Reschedule: %v", err)
	}
}

func TestListForDaysUsesBusinessDayBoundaries(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	next := day.AddDays(1)

	late := mustCreate(t, m, scheduling.CreateRequest{PatientID: "p-1", StaffID: staff("dr-a"), StartAt: scheduling.JST.At(day, 23, 45), DurationMinutes: minutes(15)})
	early := mustCreate(t, m, scheduling.CreateRequest{PatientID: "p-1", StaffID: staff("dr-b"), StartAt: scheduling.JST.At(day, 0, 0)})
	nextDay := mustCreate(t, m, scheduling.CreateRequest{PatientID: "p-1", StaffID: staff("dr-a"), StartAt: scheduling.JST.At(next, 0, 0)})
	cancelled := mustCreate(t, m, scheduling.CreateRequest{PatientID: "p-2", StaffID: staff("dr-a"), StartAt: scheduling.JST.At(day, 12, 0)})
	if _, err := m.Cancel(ctx, cancelled.ID); err != nil {
		t.Fatal(err)
	}

	got, err := m.ListForDays(ctx, nil, day, scheduling.CalendarDate{}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].ID != early.ID || got[1].ID != cancelled.ID || got[2].ID != late.ID {
		t.Fatalf("unexpected single day list: %v", ids(got))
	}

	active, _ := m.ListForDays(ctx, staff("dr-a"), day, next, true)
	if len(active) != 2 || active[0].ID != late.ID || active[1].ID != nextDay.ID {
		t.Fatalf("unexpected active dr-a list: %v", ids(active))
	}

	today, _ := m.ListForToday(ctx, nil, true)
	if len(today) != 2 {
		t.Fatalf("expected 2 active today, got %v", ids(today))
	}

	_, err = m.ListForDays(ctx, nil, next, day, false)
	var ve *scheduling.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for reversed days, got %v", err)
	}
}

func TestConcurrentDoubleBooking(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	const workers = 16

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		booked    int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := scheduling.JST.At(day, 10, 0).Add(time.Duration(i%4) * 15 * time.Minute)
			_, err := m.Create(ctx, scheduling.CreateRequest{PatientID: "p-1", StaffID: staff("dr-a"), StartAt: start})
			mu.Lock()
			defer mu.Unlock()
			var ce *scheduling.ConflictError
			switch {
			case err == nil:
				booked++
			case errors.As(err, &ce):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if booked != 1 || conflicts != workers-1 {
		t.Fatalf("expected exactly one booking, got %d booked / %d conflicts", booked, conflicts)
	}
}

func TestEventsFollowCommittedWrites(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()

	a := mustCreate(t, m, scheduling.CreateRequest{PatientID: "p-1", StaffID: staff("dr-a"), StartAt: scheduling.JST.At(day, 10, 0), AdminMemo: "x"})
	if _, err := m.Reschedule(ctx, a.ID, scheduling.RescheduleRequest{StartAt: scheduling.JST.At(day, 13, 0)}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.ResolveAdminMemo(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Complete(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	_, _ = m.Cancel(ctx, a.ID)

	want := []string{scheduling.EventBooked, scheduling.EventRescheduled, scheduling.EventMemoResolved, scheduling.EventCompleted}
	events := store.Events()
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, evt := range events {
		if evt.EventType != want[i] || evt.AggregateID != a.ID {
			t.Fatalf("event %d = %s/%s", i, evt.EventType, evt.AggregateID)
		}
	}
}

func ids(appts []model.Appointment) []string {
	out := make([]string, 0, len(appts))
	for _, a := range appts {
		out = append(out, a.ID)
	}
	return out
}

// slowStore widens the window between locking a row and writing it.
type slowStore struct {
	*storage.Memory
}

func (s slowStore) WithinStaffTx(ctx context.Context, staffKey string, fn func(ctx context.Context, tx scheduling.Tx) error) error {
	return s.Memory.WithinStaffTx(ctx, staffKey, func(ctx context.Context, tx scheduling.Tx) error {
		return fn(ctx, slowTx{tx})
	})
}

type slowTx struct {
	scheduling.Tx
}

func (tx slowTx) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := tx.Tx.GetAppointmentForUpdate(ctx, id)
	time.Sleep(20 * time.Millisecond)
	return appt, err
}

func TestConcurrentTransitionsOnUnassignedAppointment(t *testing.T) {
	mem := storage.NewMemory()
	if err := mem.UpsertPatient(context.Background(), model.Patient{ID: "p-1"}); err != nil {
		t.Fatal(err)
	}
	clock := scheduling.FixedClock(scheduling.JST.At(day, 9, 0))
	m := scheduling.NewManager(slowStore{mem}, clock, slog.New(slog.NewTextHandler(io.Discard, nil)), scheduling.Config{Zone: scheduling.JST})
	appt := mustCreate(t, m, scheduling.CreateRequest{PatientID: "p-1", StartAt: scheduling.JST.At(day, 10, 0), AdminMemo: "call back"})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded []model.Status
		rejected  int
	)
	for _, to := range []model.Status{model.StatusCompleted, model.StatusCancelled} {
		wg.Add(1)
		go func(to model.Status) {
			defer wg.Done()
			_, err := m.Transition(context.Background(), appt.ID, to)
			mu.Lock()
			defer mu.Unlock()
			var ite *scheduling.InvalidTransitionError
			switch {
			case err == nil:
				succeeded = append(succeeded, to)
			case errors.As(err, &ite):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(to)
	}
	wg.Wait()

	if len(succeeded) != 1 || rejected != 1 {
		t.Fatalf("expected exactly one transition to win, got succeeded=%v rejected=%d", succeeded, rejected)
	}
	final, err := m.Get(context.Background(), appt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != succeeded[0] {
		t.Fatalf("expected final status %s, got %s", succeeded[0], final.Status)
	}

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.ResolveAdminMemo(context.Background(), appt.ID); err != nil {
				t.Errorf("resolve: %v", err)
			}
		}()
	}
	wg.Wait()

	statusEvents, memoEvents := 0, 0
	for _, evt := range mem.Events() {
		switch evt.EventType {
		case scheduling.EventCompleted, scheduling.EventCancelled:
			statusEvents++
		case scheduling.EventMemoResolved:
			memoEvents++
		}
	}
	if statusEvents != 1 || memoEvents != 1 {
		t.Fatalf("expected one status and one memo event, got %d and %d", statusEvents, memoEvents)
	}
}

func TestResolveAdminMemoLogsOnce(t *testing.T) {
	store := storage.NewMemory()
	if err := store.UpsertPatient(context.Background(), model.Patient{ID: "p-1"}); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	clock := scheduling.FixedClock(scheduling.JST.At(day, 9, 0))
	m := scheduling.NewManager(store, clock, slog.New(slog.NewJSONHandler(&buf, nil)), scheduling.Config{Zone: scheduling.JST})
	appt := mustCreate(t, m, scheduling.CreateRequest{PatientID: "p-1", StartAt: scheduling.JST.At(day, 10, 0), AdminMemo: "verify insurance"})

	for i := 0; i < 2; i++ {
		if _, err := m.ResolveAdminMemo(context.Background(), appt.ID); err != nil {
			t.Fatal(err)
		}
	}
	if n := strings.Count(buf.String(), `"msg":"appointment memo resolved"`); n != 1 {
		t.Fatalf("expected one memo resolved log line, got %d in %s", n, buf.String())
	}
	if !strings.Contains(buf.String(), `"appointment_id":"`+appt.ID+`"`) {
		t.Fatalf("log line should carry the appointment id: %s", buf.String())
	}
}
