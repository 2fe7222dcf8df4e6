//nolint:funlen,errcheck //ok for this test code
package race

import (
	"context"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"

	"github.com/mpapenbr/ams2-telemetry-go/pkg/model"
	"github.com/mpapenbr/ams2-telemetry-go/pkg/repository"
	tcpg "github.com/mpapenbr/ams2-telemetry-go/testsupport/tcpostgres"
)

func initTestDb() *pgxpool.Pool {
	pool := tcpg.SetupTestDb()
	tcpg.ClearAllTables(pool)
	return pool
}

func createSampleEntry(db *pgxpool.Pool) *model.Race {
	id := uuid.Must(uuid.NewV4())
	race := &model.Race{
		ID:          id,
		Status:      model.StatusProcessing,
		RawDataPath: fmt.Sprintf("races/%s/raw_data.deflate", id),
	}
	r := NewRaceRepository(db)
	if err := r.Create(context.Background(), race); err != nil {
		log.Fatalf("createSampleEntry: %v\n", err)
	}
	return race
}

func TestRaceRepository_Create(t *testing.T) {
	db := initTestDb()
	r := NewRaceRepository(db)

	id := uuid.Must(uuid.NewV4())
	race := &model.Race{
		ID:          id,
		Status:      model.StatusProcessing,
		RawDataPath: fmt.Sprintf("races/%s/raw_data.deflate", id),
	}
	err := r.Create(context.Background(), race)
	assert.NoError(t, err)
	assert.False(t, race.CreatedAt.IsZero())
	assert.False(t, race.UpdatedAt.IsZero())

	// a second insert with the same id must fail (primary key)
	err = r.Create(context.Background(), race)
	assert.Error(t, err)
}

func TestRaceRepository_LoadByID(t *testing.T) {
	db := initTestDb()
	sample := createSampleEntry(db)
	r := NewRaceRepository(db)

	type args struct {
		id uuid.UUID
	}
	tests := []struct {
		name    string
		args    args
		want    *model.Race
		wantErr error
	}{
		{
			name: "load_existing",
			args: args{id: sample.ID},
			want: sample,
		},
		{
			name:    "load_unknown",
			args:    args{id: uuid.Must(uuid.NewV4())},
			wantErr: repository.ErrNoRows,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.LoadByID(context.Background(), tt.args.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want.ID, got.ID)
			assert.Equal(t, tt.want.Status, got.Status)
			assert.Equal(t, tt.want.RawDataPath, got.RawDataPath)
		})
	}
}

func TestRaceRepository_UpdateStatus(t *testing.T) {
	db := initTestDb()
	sample := createSampleEntry(db)
	r := NewRaceRepository(db)

	type args struct {
		current model.RaceStatus
		next    model.RaceStatus
	}
	tests := []struct {
		name    string
		args    args
		want    bool
		wantErr bool
	}{
		{
			name: "processing_to_ready",
			args: args{current: model.StatusProcessing, next: model.StatusReady},
			want: true,
		},
		{
			// the row is Ready by now, the guard must reject the swap
			name: "stale_processing_to_failed",
			args: args{current: model.StatusProcessing, next: model.StatusFailed},
			want: false,
		},
		{
			name:    "terminal_regression",
			args:    args{current: model.StatusReady, next: model.StatusProcessing},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.UpdateStatus(context.Background(), sample.ID,
				tt.args.current, tt.args.next)
			if (err != nil) != tt.wantErr {
				t.Errorf("RaceRepository.UpdateStatus() error = %v, wantErr %v",
					err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("RaceRepository.UpdateStatus() = %v, want %v", got, tt.want)
			}
		})
	}

	// status must still be Ready after all the rejected attempts above
	check, err := r.LoadByID(context.Background(), sample.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusReady, check.Status)
}

func TestRaceRepository_LoadAll(t *testing.T) {
	db := initTestDb()
	first := createSampleEntry(db)
	second := createSampleEntry(db)
	r := NewRaceRepository(db)

	got, err := r.LoadAll(context.Background())
	assert.NoError(t, err)
	assert.Len(t, got, 2)
	for _, info := range got {
		assert.Contains(t, []uuid.UUID{first.ID, second.ID}, info.ID)
		assert.Equal(t, 0, info.LapsCount)
	}

	ids, err := r.ListIDs(context.Background())
	assert.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestRaceRepository_LoadStuck(t *testing.T) {
	db := initTestDb()
	sample := createSampleEntry(db)
	r := NewRaceRepository(db)

	// nothing is older than an instant in the past
	got, err := r.LoadStuck(context.Background(),
		time.Now().Add(-time.Hour), 10)
	assert.NoError(t, err)
	assert.Len(t, got, 0)

	got, err = r.LoadStuck(context.Background(),
		time.Now().Add(time.Hour), 10)
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, sample.ID, got[0].ID)

	// terminal races are never reported as stuck
	_, err = r.UpdateStatus(context.Background(), sample.ID,
		model.StatusProcessing, model.StatusFailed)
	assert.NoError(t, err)
	got, err = r.LoadStuck(context.Background(),
		time.Now().Add(time.Hour), 10)
	assert.NoError(t, err)
	assert.Len(t, got, 0)
}

func TestRaceRepository_DeleteByID(t *testing.T) {
	db := initTestDb()
	sample := createSampleEntry(db)
	r := NewRaceRepository(db)

	type args struct {
		id uuid.UUID
	}
	tests := []struct {
		name string
		args args
		want int
	}{
		{
			name: "delete_existing",
			args: args{id: sample.ID},
			want: 1,
		},
		{
			name: "delete_non_existing",
			args: args{id: uuid.Must(uuid.NewV4())},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.DeleteByID(context.Background(), tt.args.id)
			assert.NoError(t, err)
			if got != tt.want {
				t.Errorf("RaceRepository.DeleteByID() = %v, want %v", got, tt.want)
			}
		})
	}
}
