package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo appends to audit_events. It never updates or deletes.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const insertAuditEvent = `
INSERT INTO audit_events (id, tenant_id, session_id, call_sid, type, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)`

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	if r.db == nil {
		return errors.New("audit: db not configured")
	}
	_, err := r.db.ExecContext(ctx, insertAuditEvent,
		e.ID, e.TenantID, e.SessionID, e.CallSID, string(e.Type), e.Metadata, e.CreatedAt)
	return err
}

const listAuditEvents = `
SELECT id, tenant_id, session_id, call_sid, type, metadata::text, created_at
FROM audit_events
WHERE created_at >= $1 AND created_at < $2 AND ($3::boolean OR tenant_id = $4)
ORDER BY created_at, id`

// ListEvents returns events in [from, to) for one tenant, or every tenant
// when allTenants is set.
func (r *PostgresRepo) ListEvents(ctx context.Context, tenantID string, allTenants bool, from, to time.Time) ([]Event, error) {
	if r.db == nil {
		return nil, errors.New("audit: db not configured")
	}
	rows, err := r.db.QueryContext(ctx, listAuditEvents, from, to, allTenants, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var (
			e   Event
			typ string
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.SessionID, &e.CallSID, &typ, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
