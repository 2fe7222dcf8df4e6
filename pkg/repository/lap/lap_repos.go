package lap

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/mpapenbr/ams2-telemetry-go/pkg/model"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/repository"
)

type lapRepo struct {
	conn repository.Querier
}

func NewLapRepository(conn repository.Querier) repository.LapRepository {
	return &lapRepo{conn: conn}
}

func (r *lapRepo) Create(ctx context.Context, lap *model.Lap) error {
	row := r.conn.QueryRow(ctx, `
	insert into laps (lap_uuid, race_id, lap_number, raw_data_path, processed_data_path)
	values ($1,$2,$3,nullif($4,''),$5)
	returning id
	`, lap.LapUUID, lap.RaceID, lap.LapNumber, lap.RawDataPath, lap.ProcessedDataPath)

	return row.Scan(&lap.ID)
}

func (r *lapRepo) CountByRace(ctx context.Context, raceID uuid.UUID) (int, error) {
	row := r.conn.QueryRow(ctx,
		"select count(*) from laps where race_id=$1", raceID)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

//nolint:whitespace // can't make the linters happy
func (r *lapRepo) LoadByRace(
	ctx context.Context,
	raceID uuid.UUID,
) (ret []*model.Lap, err error) {
	var rows pgx.Rows
	if rows, err = r.conn.Query(ctx,
		fmt.Sprintf("%s where race_id=$1 order by lap_number", selector),
		raceID); err != nil {
		return nil, err
	}
	return collect(rows)
}

//nolint:whitespace // can't make the linters happy
func (r *lapRepo) LoadByNumber(
	ctx context.Context,
	raceID uuid.UUID,
	lapNumber int,
) (*model.Lap, error) {
	row := r.conn.QueryRow(ctx,
		fmt.Sprintf("%s where race_id=$1 and lap_number=$2", selector),
		raceID, lapNumber)
	var lap model.Lap
	if err := scan(&lap, row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNoRows
		}
		return nil, err
	}
	return &lap, nil
}

//nolint:whitespace // can't make the linters happy
func (r *lapRepo) LoadByNumbers(
	ctx context.Context,
	raceID uuid.UUID,
	lapNumbers []int,
) (ret []*model.Lap, err error) {
	var rows pgx.Rows
	if rows, err = r.conn.Query(ctx,
		fmt.Sprintf("%s where race_id=$1 and lap_number=any($2) order by lap_number",
			selector),
		raceID, lapNumbers); err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]*model.Lap, error) {
	return pgx.CollectRows[*model.Lap](rows,
		func(row pgx.CollectableRow) (*model.Lap, error) {
			var lap model.Lap
			err := scan(&lap, row)
			return &lap, err
		})
}

// little helper
const selector = string(`
select id, lap_uuid, race_id, lap_number, coalesce(raw_data_path,''),
       processed_data_path from laps
`)

func scan(l *model.Lap, row pgx.Row) error {
	return row.Scan(&l.ID, &l.LapUUID, &l.RaceID, &l.LapNumber,
		&l.RawDataPath, &l.ProcessedDataPath)
}
