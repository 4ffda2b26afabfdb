package repository

import (
	"context"

	"github.com/hass-uconnect/hass-uconnect/internal/models"
)

// Store bundles the repositories behind the persistence interface the
// service layer consumes.
type Store struct {
	Vehicles *VehicleRepository
	Commands *CommandRepository
}

func NewStore(db *DB) *Store {
	return &Store{
		Vehicles: NewVehicleRepository(db),
		Commands: NewCommandRepository(db),
	}
}

func (s *Store) UpsertVehicle(ctx context.Context, v *models.Vehicle) error {
	return s.Vehicles.Upsert(ctx, v)
}

func (s *Store) SaveState(ctx context.Context, st *models.VehicleState) error {
	return s.Vehicles.SaveState(ctx, st)
}

func (s *Store) SaveCommand(ctx context.Context, r *models.CommandRequest) error {
	return s.Commands.Save(ctx, r)
}
