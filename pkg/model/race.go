package model

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
)

// RaceStatus is the lifecycle state of an uploaded race.
// A race starts in Processing and moves exactly once into one of the
// terminal states Ready or Failed.
type RaceStatus string

const (
	StatusProcessing RaceStatus = "Processing"
	StatusReady      RaceStatus = "Ready"
	StatusFailed     RaceStatus = "Failed"
)

var validTransitions = map[RaceStatus][]RaceStatus{
	StatusProcessing: {StatusReady, StatusFailed},
	StatusReady:      {},
	StatusFailed:     {},
}

func (s RaceStatus) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

func (s RaceStatus) CanTransitionTo(target RaceStatus) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func ParseRaceStatus(text string) (RaceStatus, error) {
	switch RaceStatus(text) {
	case StatusProcessing, StatusReady, StatusFailed:
		return RaceStatus(text), nil
	}
	return "", fmt.Errorf("unknown race status %q", text)
}

// Race is one uploaded telemetry session.
type Race struct {
	ID          uuid.UUID  `json:"race_id"`
	Status      RaceStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	RawDataPath string     `json:"raw_data_path"`
}

// Lap is one segment of a race, extracted by the processing worker.
// Lap records are written only after their processed blob is durable.
type Lap struct {
	ID                int       `json:"id"`
	LapUUID           uuid.UUID `json:"lap_uuid"`
	RaceID            uuid.UUID `json:"race_id"`
	LapNumber         int       `json:"lap_number"`
	RawDataPath       string    `json:"raw_data_path,omitempty"`
	ProcessedDataPath string    `json:"processed_data_path"`
}

// RaceInfo is the read model used for listings and status queries.
type RaceInfo struct {
	Race
	LapsCount int `json:"laps_count"`
}
