// Package memstore provides in-memory repository implementations for
// tests that don't need a database.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/mpapenbr/ams2-telemetry-go/pkg/model"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/repository"
)

type RaceStore struct {
	mu    sync.Mutex
	races map[uuid.UUID]*model.Race
	// when set, Create fails with this error
	CreateErr error
}

var _ repository.RaceRepository = (*RaceStore)(nil)

func NewRaceStore() *RaceStore {
	return &RaceStore{races: map[uuid.UUID]*model.Race{}}
}

func (s *RaceStore) Create(_ context.Context, race *model.Race) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.races[race.ID]; ok {
		return fmt.Errorf("duplicate race %s", race.ID)
	}
	race.CreatedAt = time.Now().UTC()
	race.UpdatedAt = race.CreatedAt
	clone := *race
	s.races[race.ID] = &clone
	return nil
}

func (s *RaceStore) LoadByID(_ context.Context, id uuid.UUID) (*model.Race, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	race, ok := s.races[id]
	if !ok {
		return nil, repository.ErrNoRows
	}
	clone := *race
	return &clone, nil
}

func (s *RaceStore) LoadAll(ctx context.Context) ([]*model.RaceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]*model.RaceInfo, 0, len(s.races))
	for _, race := range s.races {
		clone := *race
		ret = append(ret, &model.RaceInfo{Race: clone})
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].CreatedAt.After(ret[j].CreatedAt)
	})
	return ret, nil
}

func (s *RaceStore) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	infos, _ := s.LoadAll(ctx)
	ret := make([]uuid.UUID, len(infos))
	for i, info := range infos {
		ret[i] = info.ID
	}
	return ret, nil
}

//nolint:whitespace // can't make the linters happy
func (s *RaceStore) UpdateStatus(
	_ context.Context,
	id uuid.UUID,
	current, next model.RaceStatus,
) (bool, error) {
	if !current.CanTransitionTo(next) {
		return false, fmt.Errorf("invalid status transition %s -> %s", current, next)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	race, ok := s.races[id]
	if !ok || race.Status != current {
		return false, nil
	}
	race.Status = next
	race.UpdatedAt = time.Now().UTC()
	return true, nil
}

//nolint:whitespace // can't make the linters happy
func (s *RaceStore) LoadStuck(
	_ context.Context,
	before time.Time,
	limit int,
) ([]*model.Race, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := []*model.Race{}
	for _, race := range s.races {
		if race.Status == model.StatusProcessing && race.UpdatedAt.Before(before) {
			clone := *race
			ret = append(ret, &clone)
		}
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].UpdatedAt.Before(ret[j].UpdatedAt)
	})
	if len(ret) > limit {
		ret = ret[:limit]
	}
	return ret, nil
}

func (s *RaceStore) DeleteByID(_ context.Context, id uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.races[id]; !ok {
		return 0, nil
	}
	delete(s.races, id)
	return 1, nil
}

type LapStore struct {
	mu     sync.Mutex
	nextID int
	laps   []*model.Lap
	// when set, Create fails with this error
	CreateErr error
}

var _ repository.LapRepository = (*LapStore)(nil)

func NewLapStore() *LapStore {
	return &LapStore{}
}

func (s *LapStore) Create(_ context.Context, lap *model.Lap) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	lap.ID = s.nextID
	clone := *lap
	s.laps = append(s.laps, &clone)
	return nil
}

func (s *LapStore) CountByRace(_ context.Context, raceID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, lap := range s.laps {
		if lap.RaceID == raceID {
			count++
		}
	}
	return count, nil
}

//nolint:whitespace // can't make the linters happy
func (s *LapStore) LoadByRace(
	_ context.Context,
	raceID uuid.UUID,
) ([]*model.Lap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := []*model.Lap{}
	for _, lap := range s.laps {
		if lap.RaceID == raceID {
			clone := *lap
			ret = append(ret, &clone)
		}
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].LapNumber < ret[j].LapNumber
	})
	return ret, nil
}

//nolint:whitespace // can't make the linters happy
func (s *LapStore) LoadByNumber(
	ctx context.Context,
	raceID uuid.UUID,
	lapNumber int,
) (*model.Lap, error) {
	laps, _ := s.LoadByRace(ctx, raceID)
	for _, lap := range laps {
		if lap.LapNumber == lapNumber {
			return lap, nil
		}
	}
	return nil, repository.ErrNoRows
}

//nolint:whitespace // can't make the linters happy
func (s *LapStore) LoadByNumbers(
	ctx context.Context,
	raceID uuid.UUID,
	lapNumbers []int,
) ([]*model.Lap, error) {
	wanted := map[int]bool{}
	for _, num := range lapNumbers {
		wanted[num] = true
	}
	laps, _ := s.LoadByRace(ctx, raceID)
	ret := []*model.Lap{}
	for _, lap := range laps {
		if wanted[lap.LapNumber] {
			ret = append(ret, lap)
		}
	}
	return ret, nil
}
