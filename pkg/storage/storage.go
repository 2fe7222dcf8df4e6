package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/gofrs/uuid/v5"
)

// ObjectStorage abstracts the blob store holding raw uploads and
// per-lap telemetry files.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object below the given key prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	Exists(ctx context.Context, key string) (bool, error)
	EnsureBucket(ctx context.Context) error
}

// object key layout below the bucket root

func RacePrefix(raceID uuid.UUID) string {
	return fmt.Sprintf("races/%s/", raceID)
}

func RawDataPath(raceID uuid.UUID) string {
	return fmt.Sprintf("races/%s/raw_data.deflate", raceID)
}

func LapDataPath(raceID, lapUUID uuid.UUID) string {
	return fmt.Sprintf("races/%s/laps/%s.npy", raceID, lapUUID)
}
