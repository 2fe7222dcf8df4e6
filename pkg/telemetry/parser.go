// Package telemetry decodes raw AMS2 UDP capture streams and prepares
// per-lap data for storage.
package telemetry

import (
	"encoding/binary"
	"math"
)

// packet types of interest within a capture stream
const (
	packetCarPhysics = 0
	packetTimings    = 3
)

// minimum packet sizes covering every field we read
const (
	physicsMinLen = 559
	timingsMinLen = 59
)

// PhysicsSample holds the fields extracted from an eCarPhysics packet.
type PhysicsSample struct {
	Throttle            float64
	Brake               float64
	Steering            float64
	Speed               float64
	RPM                 float64
	MaxRPM              float64
	Gear                int
	Yaw                 float64
	PosX                float64
	PosY                float64
	PosZ                float64
	TickCount           uint32
	FuelCapacity        float64
	FuelLevelPercentage float64
	FuelLiters          float64
	// position within the capture stream
	Seq int
	// assigned later by bracketing timing samples
	LapDistance float64
}

// TimingSample holds the fields extracted from an eTimings packet
// for the first participant.
type TimingSample struct {
	CurrentLap  int
	CurrentTime float64
	LapDistance float64
	Timestamp   uint32
	// position within the capture stream
	Seq int
}

// LapData groups the samples recorded while one lap was the current one.
type LapData struct {
	LapNumber int
	Physics   []*PhysicsSample
	Timings   []*TimingSample
}

// Parse splits a capture stream into packets and groups the decoded
// samples into laps. A lap opens when a timing packet reports a higher
// current lap than the open one; samples seen before the first lap
// boundary are discarded. Truncated or short packets are skipped.
func Parse(data []byte) []*LapData {
	laps := []*LapData{}
	currentLap := 0
	seq := 0

	offset := 0
	for offset+4 <= len(data) {
		packetLen := int(binary.LittleEndian.Uint32(data[offset:]))
		offset += 4
		if offset+packetLen > len(data) {
			break
		}
		packet := data[offset : offset+packetLen]
		offset += packetLen

		if len(packet) < 12 {
			continue
		}
		switch packet[10] {
		case packetCarPhysics:
			if sample := parsePhysics(packet); sample != nil && len(laps) > 0 {
				sample.Seq = seq
				seq++
				last := laps[len(laps)-1]
				last.Physics = append(last.Physics, sample)
			}
		case packetTimings:
			sample := parseTimings(packet)
			if sample == nil {
				continue
			}
			sample.Seq = seq
			seq++
			if sample.CurrentLap > currentLap {
				currentLap = sample.CurrentLap
				laps = append(laps, &LapData{LapNumber: currentLap})
			}
			if len(laps) > 0 {
				last := laps[len(laps)-1]
				last.Timings = append(last.Timings, sample)
			}
		}
	}
	return laps
}

//nolint:funlen // offset bookkeeping reads best in one piece
func parsePhysics(data []byte) *PhysicsSample {
	if len(data) < physicsMinLen {
		return nil
	}

	// skip header (12), viewed participant, raw inputs, car flags and
	// the temperature/pressure block
	offset := 12 + 6 + 10

	fuelCapacity := float64(data[offset])
	offset++
	brake := float64(data[offset]) / 255.0
	offset++
	throttle := float64(data[offset]) / 255.0
	offset += 2 // value + clutch

	fuelLevel := float64(f32(data, offset))
	offset += 4
	speed := float64(f32(data, offset))
	offset += 4
	rpm := float64(binary.LittleEndian.Uint16(data[offset:]))
	offset += 2
	maxRpm := float64(binary.LittleEndian.Uint16(data[offset:]))
	offset += 2
	steering := float64(int8(data[offset])) / 127.0
	offset++
	gear := int(data[offset] & 0x0f)
	offset++

	offset += 2 // boost, crash state
	offset += 4 // odometer

	yaw := float64(f32(data, offset))
	// orientation, velocities, accelerations, extents (7 vectors)
	offset += 7 * 12
	// tyre and suspension block up to the world position
	offset += 80 + 64 + 80 + 182

	posX := float64(f32(data, offset))
	offset += 4
	posY := float64(f32(data, offset))
	offset += 4
	posZ := float64(f32(data, offset))
	offset += 5 // value + brake bias

	tickCount := binary.LittleEndian.Uint32(data[offset:])

	return &PhysicsSample{
		Throttle:            throttle,
		Brake:               brake,
		Steering:            steering,
		Speed:               speed,
		RPM:                 rpm,
		MaxRPM:              maxRpm,
		Gear:                gear,
		Yaw:                 yaw,
		PosX:                posX,
		PosY:                posY,
		PosZ:                posZ,
		TickCount:           tickCount,
		FuelCapacity:        fuelCapacity,
		FuelLevelPercentage: fuelLevel,
		FuelLiters:          fuelLevel * fuelCapacity,
	}
}

func parseTimings(data []byte) *TimingSample {
	if len(data) < timingsMinLen {
		return nil
	}

	offset := 13 // header + participant count
	timestamp := binary.LittleEndian.Uint32(data[offset:])
	// event time remaining, splits, first participant position and
	// orientation
	offset += 4 + 4 + 12 + 6 + 6

	lapDistance := float64(binary.LittleEndian.Uint16(data[offset:]))
	// race position, sector, flag, pit schedule, car index, race state
	offset += 2 + 7

	currentLap := int(data[offset])
	offset++
	currentTime := float64(f32(data, offset))

	return &TimingSample{
		CurrentLap:  currentLap,
		CurrentTime: currentTime,
		LapDistance: lapDistance,
		Timestamp:   timestamp,
	}
}

func f32(data []byte, offset int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[offset:]))
}
