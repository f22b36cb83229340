package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/scheduling"
)

// Memory is an in-process store for demo mode and tests. Writers for the same
// staff key are serialized by a per-staff mutex, and GetAppointmentForUpdate
// holds a per-appointment mutex until the transaction ends, so writers of an
// unassigned appointment are serialized too. A transaction's writes are
// staged and only become visible on commit.
type Memory struct {
	now func() time.Time

	mu       sync.RWMutex
	patients map[string]model.Patient
	appts    map[string]model.Appointment
	events   []outbox.Event

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{
		now:      func() time.Time { return time.Now().UTC() },
		patients: map[string]model.Patient{},
		appts:    map[string]model.Appointment{},
		locks:    map[string]*sync.Mutex{},
	}
}

func (m *Memory) UpsertPatient(_ context.Context, p model.Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = strings.TrimSpace(p.ID)
	p.UpdatedAt = m.now()
	m.patients[p.ID] = p
	return nil
}

// Events returns the committed outbox events in order.
func (m *Memory) Events() []outbox.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]outbox.Event, len(m.events))
	copy(out, m.events)
	return out
}

func (m *Memory) FindPatient(_ context.Context, id string) (model.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return model.Patient{}, model.ErrNotFound
	}
	return p, nil
}

func (m *Memory) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	appt, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	return appt, nil
}

func (m *Memory) FindAppointmentsByStaff(_ context.Context, staffID string, activeOnly bool) ([]model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterByStaff(m.appts, staffID, activeOnly), nil
}

func (m *Memory) ListAppointments(_ context.Context, q model.RangeQuery) ([]model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Appointment
	for _, appt := range m.appts {
		if q.StaffID != nil && appt.Staff() != *q.StaffID {
			continue
		}
		if q.ActiveOnly && !appt.Status.Active() {
			continue
		}
		if appt.StartAt.Before(q.From) || appt.StartAt.After(q.To) {
			continue
		}
		out = append(out, appt)
	}
	sortByStart(out)
	return out, nil
}

func (m *Memory) WithinStaffTx(ctx context.Context, staffKey string, fn func(ctx context.Context, tx scheduling.Tx) error) error {
	if staffKey != "" {
		l := m.lock("staff:" + staffKey)
		l.Lock()
		defer l.Unlock()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{Memory: m, staged: map[string]model.Appointment{}, held: map[string]*sync.Mutex{}}
	defer tx.release()
	if err := fn(ctx, tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, appt := range tx.staged {
		m.appts[id] = appt
	}
	m.events = append(m.events, tx.events...)
	return nil
}

func (m *Memory) lock(key string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

type memoryTx struct {
	*Memory
	staged map[string]model.Appointment
	events []outbox.Event
	held   map[string]*sync.Mutex
}

func (tx *memoryTx) release() {
	for _, l := range tx.held {
		l.Unlock()
	}
}

func (tx *memoryTx) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	if appt, ok := tx.staged[id]; ok {
		return appt, nil
	}
	return tx.Memory.GetAppointment(ctx, id)
}

// GetAppointmentForUpdate locks the row until the transaction ends, like
// SELECT ... FOR UPDATE. The read happens after the lock is taken so it sees
// the previous holder's commit.
func (tx *memoryTx) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	if _, ok := tx.held[id]; !ok {
		l := tx.lock("appt:" + id)
		l.Lock()
		tx.held[id] = l
	}
	return tx.GetAppointment(ctx, id)
}

func (tx *memoryTx) FindAppointmentsByStaff(_ context.Context, staffID string, activeOnly bool) ([]model.Appointment, error) {
	tx.mu.RLock()
	merged := make(map[string]model.Appointment, len(tx.appts)+len(tx.staged))
	for id, appt := range tx.appts {
		merged[id] = appt
	}
	tx.mu.RUnlock()
	for id, appt := range tx.staged {
		merged[id] = appt
	}
	return filterByStaff(merged, staffID, activeOnly), nil
}

func (tx *memoryTx) InsertAppointment(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	now := tx.now()
	appt.ID = uuid.NewString()
	appt.StartAt = appt.StartAt.UTC()
	appt.EndAt = model.EndOf(appt.StartAt, appt.DurationMinutes)
	appt.CreatedAt = now
	appt.UpdatedAt = now
	tx.staged[appt.ID] = appt
	return appt, nil
}

func (tx *memoryTx) UpdateAppointment(ctx context.Context, id string, patch model.AppointmentPatch) (model.Appointment, error) {
	current, err := tx.GetAppointmentForUpdate(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	updated := patch.Apply(current, tx.now())
	tx.staged[id] = updated
	return updated, nil
}

func (tx *memoryTx) RecordEvent(_ context.Context, eventType string, appt model.Appointment) error {
	evt, err := outbox.AppointmentEvent(eventType, appt)
	if err != nil {
		return err
	}
	tx.events = append(tx.events, evt)
	return nil
}

func filterByStaff(appts map[string]model.Appointment, staffID string, activeOnly bool) []model.Appointment {
	var out []model.Appointment
	for _, appt := range appts {
		if appt.StaffID == nil || *appt.StaffID != staffID {
			continue
		}
		if activeOnly && !appt.Status.Active() {
			continue
		}
		out = append(out, appt)
	}
	sortByStart(out)
	return out
}

func sortByStart(appts []model.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].StartAt.Equal(appts[j].StartAt) {
			return appts[i].ID < appts[j].ID
		}
		return appts[i].StartAt.Before(appts[j].StartAt)
	})
}

var _ scheduling.Store = (*Memory)(nil)
