//nolint:funlen,errcheck //ok for this test code
package lap

import (
	"context"
	"fmt"
	"log"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"

	"github.com/mpapenbr/ams2-telemetry-go/pkg/model"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/repository"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/repository/race"
	tcpg "github.com/mpapenbr/ams2-telemetry-go/testsupport/tcpostgres"
)

func initTestDb() *pgxpool.Pool {
	pool := tcpg.SetupTestDb()
	tcpg.ClearAllTables(pool)
	return pool
}

func createSampleRace(db *pgxpool.Pool) *model.Race {
	id := uuid.Must(uuid.NewV4())
	entry := &model.Race{
		ID:          id,
		Status:      model.StatusProcessing,
		RawDataPath: fmt.Sprintf("races/%s/raw_data.deflate", id),
	}
	if err := race.NewRaceRepository(db).Create(
		context.Background(), entry); err != nil {
		log.Fatalf("createSampleRace: %v\n", err)
	}
	return entry
}

func createSampleLap(db *pgxpool.Pool, raceID uuid.UUID, number int) *model.Lap {
	lapUUID := uuid.Must(uuid.NewV4())
	entry := &model.Lap{
		LapUUID:           lapUUID,
		RaceID:            raceID,
		LapNumber:         number,
		ProcessedDataPath: fmt.Sprintf("races/%s/laps/%s.npy", raceID, lapUUID),
	}
	if err := NewLapRepository(db).Create(context.Background(), entry); err != nil {
		log.Fatalf("createSampleLap: %v\n", err)
	}
	return entry
}

func TestLapRepository_Create(t *testing.T) {
	db := initTestDb()
	sampleRace := createSampleRace(db)
	r := NewLapRepository(db)

	lapUUID := uuid.Must(uuid.NewV4())
	lap := &model.Lap{
		LapUUID:           lapUUID,
		RaceID:            sampleRace.ID,
		LapNumber:         1,
		ProcessedDataPath: fmt.Sprintf("races/%s/laps/%s.npy", sampleRace.ID, lapUUID),
	}
	err := r.Create(context.Background(), lap)
	assert.NoError(t, err)
	assert.Greater(t, lap.ID, 0)

	// a lap for an unknown race violates the foreign key
	orphan := &model.Lap{
		LapUUID:           uuid.Must(uuid.NewV4()),
		RaceID:            uuid.Must(uuid.NewV4()),
		LapNumber:         1,
		ProcessedDataPath: "races/unknown/laps/x.npy",
	}
	err = r.Create(context.Background(), orphan)
	assert.Error(t, err)
}

func TestLapRepository_LoadByRace(t *testing.T) {
	db := initTestDb()
	sampleRace := createSampleRace(db)
	otherRace := createSampleRace(db)
	r := NewLapRepository(db)

	// insert out of order, LoadByRace must return them sorted by lap number
	createSampleLap(db, sampleRace.ID, 3)
	createSampleLap(db, sampleRace.ID, 1)
	createSampleLap(db, sampleRace.ID, 2)
	createSampleLap(db, otherRace.ID, 1)

	got, err := r.LoadByRace(context.Background(), sampleRace.ID)
	assert.NoError(t, err)
	assert.Len(t, got, 3)
	for i, lap := range got {
		assert.Equal(t, i+1, lap.LapNumber)
		assert.Equal(t, sampleRace.ID, lap.RaceID)
	}

	count, err := r.CountByRace(context.Background(), sampleRace.ID)
	assert.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestLapRepository_LoadByNumber(t *testing.T) {
	db := initTestDb()
	sampleRace := createSampleRace(db)
	sample := createSampleLap(db, sampleRace.ID, 4)
	r := NewLapRepository(db)

	got, err := r.LoadByNumber(context.Background(), sampleRace.ID, 4)
	assert.NoError(t, err)
	assert.Equal(t, sample.LapUUID, got.LapUUID)
	assert.Equal(t, sample.ProcessedDataPath, got.ProcessedDataPath)

	_, err = r.LoadByNumber(context.Background(), sampleRace.ID, 99)
	assert.ErrorIs(t, err, repository.ErrNoRows)
}

func TestLapRepository_LoadByNumbers(t *testing.T) {
	db := initTestDb()
	sampleRace := createSampleRace(db)
	r := NewLapRepository(db)
	for i := 1; i <= 5; i++ {
		createSampleLap(db, sampleRace.ID, i)
	}

	got, err := r.LoadByNumbers(context.Background(), sampleRace.ID, []int{2, 4, 99})
	assert.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, got[0].LapNumber)
	assert.Equal(t, 4, got[1].LapNumber)
}
