package audit

import (
	"context"
	"time"

	"github.com/go-pg/pg/v10"
)

// LogModel is the durable row shape, grounded on the teacher's
// session/repo.SessionModel pg-tag conventions.
type LogModel struct {
	ID       int64     `pg:"id,pk"`
	Kind     string    `pg:"kind,notnull"`
	NodeIDs  string    `pg:"node_ids"`
	PoolSize int       `pg:"pool_size,notnull"`
	Detail   string    `pg:"detail"`
	At       time.Time `pg:"at,notnull"`
}

// Repository persists Events for later inspection. It is write-only
// from the balancer's perspective — Pool never queries it back, per
// the spec's no-persisted-pool-state non-goal.
type Repository struct {
	db *pg.DB
}

func NewRepository(db *pg.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, e Event) error {
	model := &LogModel{
		Kind:     string(e.Kind),
		NodeIDs:  joinIDs(e.NodeIDs),
		PoolSize: e.PoolSize,
		Detail:   e.Detail,
		At:       e.At,
	}
	_, err := r.db.Model(model).Insert()
	return err
}

func joinIDs(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += id
	}
	return out
}
