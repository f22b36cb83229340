package inbox

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/frontdesk/libs/db"
)

// Repository dedupes consumed events by event_id. The inbox row and the
// handler's writes commit in one transaction.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Process runs fn once per event id and reports false for an event that was
// already processed. fn receives a context carrying the transaction (see
// db.TxFromContext); an error from fn rolls back the inbox row with it.
func (r *Repository) Process(ctx context.Context, eventID, eventType string, fn func(ctx context.Context) error) (bool, error) {
	fresh := false
	err := r.pool.InTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO inbox_events (event_id, event_type)
			VALUES ($1, $2)
			ON CONFLICT (event_id) DO NOTHING
		`, eventID, eventType)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		fresh = true
		return fn(db.WithTx(ctx, tx))
	})
	if err != nil {
		return false, err
	}
	return fresh, nil
}

// Memory is the in-process inbox used when no database is configured.
type Memory struct {
	mu   sync.Mutex
	seen map[string]string
}

func NewMemory() *Memory {
	return &Memory{seen: map[string]string{}}
}

func (m *Memory) Process(ctx context.Context, eventID, eventType string, fn func(ctx context.Context) error) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[eventID]; ok {
		return false, nil
	}
	if err := fn(ctx); err != nil {
		return false, err
	}
	m.seen[eventID] = eventType
	return true, nil
}
