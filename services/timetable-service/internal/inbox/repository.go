package inbox

import (
	"context"
	"sync"

	"github.com/medportal/timetable/libs/db"
)

// Recorder remembers consumed event ids. Record reports false for an id it
// has already seen.
type Recorder interface {
	Record(ctx context.Context, eventID string, eventType string) (bool, error)
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if db.IsUniqueViolation(err) {
		return false, nil
	}
	return false, err
}

// MemoryRecorder keeps the last capacity ids in process memory for
// deployments without Postgres.
type MemoryRecorder struct {
	capacity int

	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

func NewMemoryRecorder(capacity int) *MemoryRecorder {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryRecorder{capacity: capacity, seen: map[string]struct{}{}}
}

func (m *MemoryRecorder) Record(_ context.Context, eventID string, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[eventID]; ok {
		return false, nil
	}
	m.seen[eventID] = struct{}{}
	m.order = append(m.order, eventID)
	if len(m.order) > m.capacity {
		delete(m.seen, m.order[0])
		m.order = m.order[1:]
	}
	return true, nil
}
