package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clinic-voice-bridge/pkg/utils"

	"github.com/google/uuid"
)

// PostgresRepo writes appointments to the appointments table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const insertAppointment = `
INSERT INTO appointments (
    id, tenant_id, patient_name, patient_phone, patient_email,
    start_time, appointment_type, notes, source_call_sid, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func (r *PostgresRepo) CreateAppointment(ctx context.Context, a Appointment) (string, error) {
	if r.db == nil {
		return "", errors.New("booking: db not configured")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, insertAppointment,
			a.ID,
			a.TenantID,
			a.PatientName,
			a.PatientPhone,
			a.PatientEmail,
			a.StartTime,
			a.AppointmentType,
			a.Notes,
			a.SourceCallSID,
			a.CreatedAt,
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("booking: insert appointment: %w", err)
	}
	return a.ID, nil
}
