package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresRepo reads tenants from the tenants table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const selectTenantByKey = `
SELECT id, routing_key, name, callback_number, ai_instructions, voice, greeting
FROM tenants
WHERE routing_key = $1`

func (r *PostgresRepo) GetTenantByRoutingKey(ctx context.Context, key string) (Tenant, error) {
	if r.db == nil {
		return Tenant{}, errors.New("tenants: db not configured")
	}
	var t Tenant
	err := r.db.QueryRowContext(ctx, selectTenantByKey, key).Scan(
		&t.ID,
		&t.RoutingKey,
		&t.Name,
		&t.CallbackNumber,
		&t.AIInstructions,
		&t.Voice,
		&t.Greeting,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Tenant{}, ErrNotFound
	}
	if err != nil {
		return Tenant{}, fmt.Errorf("tenants: lookup %q: %w", key, err)
	}
	return t, nil
}
