package repository

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/mpapenbr/ams2-telemetry-go/pkg/model"
)

var ErrNoRows = errors.New("no rows in result set")

type RaceRepository interface {
	Create(ctx context.Context, race *model.Race) error
	LoadByID(ctx context.Context, id uuid.UUID) (*model.Race, error)
	LoadAll(ctx context.Context) ([]*model.RaceInfo, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
	// UpdateStatus performs an atomic conditional status transition.
	// It reports true when the row was in the expected current status and
	// was updated, false when a concurrent writer got there first.
	UpdateStatus(ctx context.Context, id uuid.UUID,
		current, next model.RaceStatus) (bool, error)
	// LoadStuck returns races still in Processing whose last update is
	// older than the given instant. Used by the reconciliation sweep.
	LoadStuck(ctx context.Context, before time.Time, limit int) ([]*model.Race, error)
	DeleteByID(ctx context.Context, id uuid.UUID) (int, error)
}

type LapRepository interface {
	Create(ctx context.Context, lap *model.Lap) error
	CountByRace(ctx context.Context, raceID uuid.UUID) (int, error)
	LoadByRace(ctx context.Context, raceID uuid.UUID) ([]*model.Lap, error)
	LoadByNumber(ctx context.Context, raceID uuid.UUID, lapNumber int) (*model.Lap, error)
	LoadByNumbers(ctx context.Context, raceID uuid.UUID,
		lapNumbers []int) ([]*model.Lap, error)
}
