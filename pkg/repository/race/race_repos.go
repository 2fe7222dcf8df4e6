package race

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/mpapenbr/ams2-telemetry-go/pkg/model"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/repository"
)

type raceRepo struct {
	conn repository.Querier
}

func NewRaceRepository(conn repository.Querier) repository.RaceRepository {
	return &raceRepo{conn: conn}
}

func (r *raceRepo) Create(ctx context.Context, race *model.Race) error {
	row := r.conn.QueryRow(ctx, `
	insert into races (race_id, status, raw_data_path)
	values ($1,$2,$3)
	returning created_at, updated_at
	`, race.ID, race.Status, race.RawDataPath)

	return row.Scan(&race.CreatedAt, &race.UpdatedAt)
}

func (r *raceRepo) LoadByID(ctx context.Context, id uuid.UUID) (*model.Race, error) {
	row := r.conn.QueryRow(ctx, fmt.Sprintf("%s where race_id=$1", selector), id)
	var race model.Race
	if err := scan(&race, row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNoRows
		}
		return nil, err
	}
	return &race, nil
}

func (r *raceRepo) LoadAll(ctx context.Context) (ret []*model.RaceInfo, err error) {
	var rows pgx.Rows
	if rows, err = r.conn.Query(ctx, `
	select r.race_id, r.status, r.created_at, r.updated_at, r.raw_data_path,
	       count(l.id)
	from races r left join laps l on l.race_id = r.race_id
	group by r.race_id
	order by r.created_at desc
	`); err != nil {
		return nil, err
	}

	ret, err = pgx.CollectRows[*model.RaceInfo](rows,
		func(row pgx.CollectableRow) (*model.RaceInfo, error) {
			var info model.RaceInfo
			if err := row.Scan(&info.ID, &info.Status, &info.CreatedAt,
				&info.UpdatedAt, &info.RawDataPath, &info.LapsCount); err != nil {
				return nil, err
			}
			return &info, nil
		})
	return ret, err
}

func (r *raceRepo) ListIDs(ctx context.Context) (ret []uuid.UUID, err error) {
	var rows pgx.Rows
	if rows, err = r.conn.Query(ctx,
		"select race_id from races order by created_at desc"); err != nil {
		return nil, err
	}
	ret, err = pgx.CollectRows[uuid.UUID](rows,
		func(row pgx.CollectableRow) (uuid.UUID, error) {
			var id uuid.UUID
			err := row.Scan(&id)
			return id, err
		})
	return ret, err
}

// UpdateStatus is the single place where write contention can occur:
// a compare-and-swap on the current status keeps stale worker retries from
// clobbering a terminal state.
//
//nolint:whitespace // can't make the linters happy
func (r *raceRepo) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	current, next model.RaceStatus,
) (bool, error) {
	if !current.CanTransitionTo(next) {
		return false, fmt.Errorf("invalid status transition %s -> %s", current, next)
	}
	cmdTag, err := r.conn.Exec(ctx, `
	update races set status=$3, updated_at=current_timestamp
	where race_id=$1 and status=$2
	`, id, current, next)
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() == 1, nil
}

//nolint:whitespace // can't make the linters happy
func (r *raceRepo) LoadStuck(
	ctx context.Context,
	before time.Time,
	limit int,
) (ret []*model.Race, err error) {
	var rows pgx.Rows
	if rows, err = r.conn.Query(ctx,
		fmt.Sprintf("%s where status=$1 and updated_at < $2 order by updated_at limit $3",
			selector),
		model.StatusProcessing, before, limit); err != nil {
		return nil, err
	}
	ret, err = pgx.CollectRows[*model.Race](rows,
		func(row pgx.CollectableRow) (*model.Race, error) {
			var race model.Race
			err := scan(&race, row)
			return &race, err
		})
	return ret, err
}

// deletes a race, returns number of rows deleted. Laps go with it (cascade).
func (r *raceRepo) DeleteByID(ctx context.Context, id uuid.UUID) (int, error) {
	cmdTag, err := r.conn.Exec(ctx, "delete from races where race_id=$1", id)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

// little helper
const selector = string(`
select race_id, status, created_at, updated_at, raw_data_path from races
`)

func scan(r *model.Race, row pgx.Row) error {
	return row.Scan(&r.ID, &r.Status, &r.CreatedAt, &r.UpdatedAt, &r.RawDataPath)
}
