package repository

import (
	"context"
	"fmt"

	"github.com/hass-uconnect/hass-uconnect/internal/models"
)

// CommandRepository is the append-only command log.
type CommandRepository struct {
	db *DB
}

func NewCommandRepository(db *DB) *CommandRepository {
	return &CommandRepository{db: db}
}

// Save appends one dispatch record.
func (r *CommandRepository) Save(ctx context.Context, req *models.CommandRequest) error {
	query := `
		INSERT INTO command_requests (vin, command, request_id, outcome, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.Pool.QueryRow(ctx, query,
		req.VIN, req.Command, req.RequestID, string(req.Outcome), req.SubmittedAt,
	).Scan(&req.ID)
	if err != nil {
		return fmt.Errorf("insert command request: %w", err)
	}
	return nil
}

// ListByVIN returns the newest dispatch records for a vehicle.
func (r *CommandRepository) ListByVIN(ctx context.Context, vin string, limit int) ([]models.CommandRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, vin, command, request_id, outcome, submitted_at
		FROM command_requests
		WHERE vin = $1
		ORDER BY submitted_at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, vin, limit)
	if err != nil {
		return nil, fmt.Errorf("list command requests: %w", err)
	}
	defer rows.Close()

	var out []models.CommandRequest
	for rows.Next() {
		var req models.CommandRequest
		var outcome string
		if err := rows.Scan(&req.ID, &req.VIN, &req.Command, &req.RequestID, &outcome, &req.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan command request: %w", err)
		}
		req.Outcome = models.CommandOutcome(outcome)
		out = append(out, req)
	}
	return out, nil
}
