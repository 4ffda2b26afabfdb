package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hass-uconnect/hass-uconnect/internal/models"
)

// VehicleRepository persists the catalog and the latest state snapshot per
// VIN.
type VehicleRepository struct {
	db *DB
}

func NewVehicleRepository(db *DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

// Upsert inserts or refreshes one catalog entry keyed on VIN.
func (r *VehicleRepository) Upsert(ctx context.Context, v *models.Vehicle) error {
	caps, err := json.Marshal(v.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}

	query := `
		INSERT INTO vehicles (vin, make, model, year, nickname, color, capabilities, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (vin) DO UPDATE SET
			make = EXCLUDED.make,
			model = EXCLUDED.model,
			year = EXCLUDED.year,
			nickname = EXCLUDED.nickname,
			color = EXCLUDED.color,
			capabilities = EXCLUDED.capabilities,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.Pool.Exec(ctx, query,
		v.VIN, v.Make, v.Model, v.Year, v.Nickname, v.Color, caps, time.Now(),
	); err != nil {
		return fmt.Errorf("upsert vehicle: %w", err)
	}
	return nil
}

// List returns the stored catalog ordered by insertion.
func (r *VehicleRepository) List(ctx context.Context) ([]models.Vehicle, error) {
	query := `
		SELECT vin, make, model, year, nickname, color, capabilities
		FROM vehicles ORDER BY id
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []models.Vehicle
	for rows.Next() {
		var v models.Vehicle
		var caps []byte
		if err := rows.Scan(&v.VIN, &v.Make, &v.Model, &v.Year, &v.Nickname, &v.Color, &caps); err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		if err := json.Unmarshal(caps, &v.Capabilities); err != nil {
			return nil, fmt.Errorf("decode capabilities: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}

// SaveState replaces the latest snapshot for the VIN.
func (r *VehicleRepository) SaveState(ctx context.Context, s *models.VehicleState) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	query := `
		INSERT INTO vehicle_states (vin, state, recorded_at, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (vin) DO UPDATE SET
			state = EXCLUDED.state,
			recorded_at = EXCLUDED.recorded_at,
			updated_at = NOW()
	`
	if _, err := r.db.Pool.Exec(ctx, query, s.VIN, payload, s.Timestamp); err != nil {
		return fmt.Errorf("save vehicle state: %w", err)
	}
	return nil
}

// GetState returns the stored snapshot for a VIN, or nil when none exists.
func (r *VehicleRepository) GetState(ctx context.Context, vin string) (*models.VehicleState, error) {
	query := `SELECT state FROM vehicle_states WHERE vin = $1`

	var payload []byte
	err := r.db.Pool.QueryRow(ctx, query, vin).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle state: %w", err)
	}

	var state models.VehicleState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("decode vehicle state: %w", err)
	}
	return &state, nil
}
