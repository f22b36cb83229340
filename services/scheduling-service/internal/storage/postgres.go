package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/md-rashed-zaman/frontdesk/libs/db"
	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/scheduling"
)

//go:embed schema.sql
var schemaSQL string

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the production appointment store.
type Postgres struct {
	pgReader
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{
		pgReader: pgReader{q: pool},
		pool:     pool,
		outbox:   outbox.NewRepository(pool),
	}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (r *Postgres) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schemaSQL)
	return err
}

// UpsertPatient joins the transaction carried by ctx when there is one, so
// the patient sync commits the patient row together with its inbox record.
func (r *Postgres) UpsertPatient(ctx context.Context, p model.Patient) error {
	if tx, ok := db.TxFromContext(ctx); ok {
		return upsertPatient(ctx, tx, p)
	}
	return upsertPatient(ctx, r.pool, p)
}

func upsertPatient(ctx context.Context, q querier, p model.Patient) error {
	_, err := q.Exec(ctx, `
		INSERT INTO patients (id, name, phone)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			updated_at = now()
	`, strings.TrimSpace(p.ID), p.Name, p.Phone)
	return err
}

// WithinStaffTx serializes writers per staff member with a transaction-scoped
// advisory lock. The exclusion constraint on appointments backs it up.
func (r *Postgres) WithinStaffTx(ctx context.Context, staffKey string, fn func(ctx context.Context, tx scheduling.Tx) error) error {
	return r.pool.InTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if staffKey != "" {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "staff:"+staffKey); err != nil {
				return fmt.Errorf("lock staff %s: %w", staffKey, err)
			}
		}
		return fn(ctx, &pgTx{pgReader: pgReader{q: tx}, tx: tx, outbox: r.outbox})
	})
}

type pgTx struct {
	pgReader
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, model.ErrNotFound
	}
	return scanAppointment(t.q.QueryRow(ctx, selectAppointment+` WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) InsertAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	appt.ID = uuid.NewString()
	appt.StartAt = appt.StartAt.UTC()
	appt.EndAt = model.EndOf(appt.StartAt, appt.DurationMinutes)
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, patient_id, staff_id, start_at, end_at, duration_minutes, status, memo, admin_memo, is_memo_resolved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, appt.ID, appt.PatientID, appt.StaffID, appt.StartAt, appt.EndAt, appt.DurationMinutes,
		string(appt.Status), appt.Memo, appt.AdminMemo, appt.IsMemoResolved).Scan(&appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		if IsConflict(err) {
			return model.Appointment{}, model.ErrSlotTaken
		}
		return model.Appointment{}, err
	}
	return appt, nil
}

func (t *pgTx) UpdateAppointment(ctx context.Context, id string, patch model.AppointmentPatch) (model.Appointment, error) {
	current, err := t.GetAppointmentForUpdate(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	updated := patch.Apply(current, current.UpdatedAt)
	err = t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET start_at = $2,
			end_at = $3,
			duration_minutes = $4,
			status = $5,
			is_memo_resolved = $6,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, id, updated.StartAt, updated.EndAt, updated.DurationMinutes, string(updated.Status), updated.IsMemoResolved).Scan(&updated.UpdatedAt)
	if err != nil {
		if IsConflict(err) {
			return model.Appointment{}, model.ErrSlotTaken
		}
		return model.Appointment{}, err
	}
	return updated, nil
}

func (t *pgTx) RecordEvent(ctx context.Context, eventType string, appt model.Appointment) error {
	evt, err := outbox.AppointmentEvent(eventType, appt)
	if err != nil {
		return err
	}
	return t.outbox.Insert(ctx, t.tx, evt)
}

// pgReader implements the read side against either the pool or a transaction.
type pgReader struct {
	q querier
}

const selectAppointment = `
	SELECT id::text, patient_id, staff_id, start_at, end_at, duration_minutes, status,
		memo, admin_memo, is_memo_resolved, created_at, updated_at
	FROM appointments`

func (r pgReader) FindPatient(ctx context.Context, id string) (model.Patient, error) {
	var p model.Patient
	err := r.q.QueryRow(ctx, `
		SELECT id, name, phone, updated_at
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Phone, &p.UpdatedAt)
	if err != nil {
		if IsNotFound(err) {
			return model.Patient{}, model.ErrNotFound
		}
		return model.Patient{}, err
	}
	return p, nil
}

func (r pgReader) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, model.ErrNotFound
	}
	return scanAppointment(r.q.QueryRow(ctx, selectAppointment+` WHERE id = $1`, id))
}

func (r pgReader) FindAppointmentsByStaff(ctx context.Context, staffID string, activeOnly bool) ([]model.Appointment, error) {
	rows, err := r.q.Query(ctx, selectAppointment+`
		WHERE staff_id = $1
			AND ($2::boolean = false OR status = 'scheduled')
		ORDER BY start_at ASC, id ASC
	`, staffID, activeOnly)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r pgReader) ListAppointments(ctx context.Context, q model.RangeQuery) ([]model.Appointment, error) {
	rows, err := r.q.Query(ctx, selectAppointment+`
		WHERE start_at >= $1
			AND start_at <= $2
			AND ($3::text IS NULL OR staff_id = $3)
			AND ($4::boolean = false OR status = 'scheduled')
		ORDER BY start_at ASC, id ASC
	`, q.From, q.To, q.StaffID, q.ActiveOnly)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		appt   model.Appointment
		status string
	)
	err := row.Scan(
		&appt.ID,
		&appt.PatientID,
		&appt.StaffID,
		&appt.StartAt,
		&appt.EndAt,
		&appt.DurationMinutes,
		&status,
		&appt.Memo,
		&appt.AdminMemo,
		&appt.IsMemoResolved,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		if IsNotFound(err) {
			return model.Appointment{}, model.ErrNotFound
		}
		return model.Appointment{}, err
	}
	appt.Status = model.Status(status)
	appt.StartAt = appt.StartAt.UTC()
	appt.EndAt = appt.EndAt.UTC()
	return appt, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// IsConflict matches the exclusion constraint violation raised when two
// scheduled appointments of one staff member overlap.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// ReadyCheck verifies the schema is in place, not only that the pool answers.
func (r *Postgres) ReadyCheck(ctx context.Context) error {
	var ok bool
	if err := r.pool.QueryRow(ctx, `SELECT to_regclass('appointments') IS NOT NULL`).Scan(&ok); err != nil {
		return err
	}
	if !ok {
		return errors.New("appointments table missing (run migrations)")
	}
	return nil
}

var (
	_ scheduling.Store = (*Postgres)(nil)
	_ scheduling.Tx    = (*pgTx)(nil)
)
