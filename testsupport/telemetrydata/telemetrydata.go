// Package telemetrydata builds synthetic AMS2 capture streams for tests.
package telemetrydata

import (
	"bytes"
	"encoding/binary"
	"log"
	"math"

	"github.com/klauspost/compress/zlib"
)

// PhysicsValues holds the channel values placed into a physics packet.
type PhysicsValues struct {
	ThrottleRaw  uint8 // 0..255
	BrakeRaw     uint8 // 0..255
	SteeringRaw  int8  // -127..127
	Speed        float32
	RPM          uint16
	MaxRPM       uint16
	Gear         uint8
	Yaw          float32
	PosX         float32
	PosY         float32
	PosZ         float32
	TickCount    uint32
	FuelCapacity uint8
	FuelLevel    float32 // fraction 0..1
}

// PhysicsPacket builds a minimal eCarPhysics packet carrying the
// given values.
func PhysicsPacket(v PhysicsValues) []byte {
	data := make([]byte, 560)
	data[10] = 0 // eCarPhysics

	data[28] = v.FuelCapacity
	data[29] = v.BrakeRaw
	data[30] = v.ThrottleRaw
	putF32(data, 32, v.FuelLevel)
	putF32(data, 36, v.Speed)
	binary.LittleEndian.PutUint16(data[40:], v.RPM)
	binary.LittleEndian.PutUint16(data[42:], v.MaxRPM)
	data[44] = uint8(v.SteeringRaw)
	data[45] = v.Gear & 0x0f
	putF32(data, 52, v.Yaw)
	putF32(data, 542, v.PosX)
	putF32(data, 546, v.PosY)
	putF32(data, 550, v.PosZ)
	binary.LittleEndian.PutUint32(data[555:], v.TickCount)
	return data
}

// TimingsPacket builds a minimal eTimings packet for the first
// participant.
func TimingsPacket(currentLap uint8, lapDistance uint16, currentTime float32) []byte {
	data := make([]byte, 60)
	data[10] = 3 // eTimings

	binary.LittleEndian.PutUint16(data[45:], lapDistance)
	data[54] = currentLap
	putF32(data, 55, currentTime)
	return data
}

// Stream frames the given packets with their length prefixes.
func Stream(packets ...[]byte) []byte {
	var buf bytes.Buffer
	var lenPrefix [4]byte
	for _, packet := range packets {
		binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(packet)))
		buf.Write(lenPrefix[:])
		buf.Write(packet)
	}
	return buf.Bytes()
}

// SampleCapture produces a capture of the given number of laps with
// alternating timing and physics packets. Values vary per sample so
// interpolation results are non-trivial.
func SampleCapture(laps, samplesPerLap int) []byte {
	packets := [][]byte{}
	tick := uint32(0)
	for lap := 1; lap <= laps; lap++ {
		for i := 0; i < samplesPerLap; i++ {
			dist := uint16(i * 1000 / samplesPerLap)
			packets = append(packets, TimingsPacket(
				uint8(lap), dist, float32(i)*0.5))
			tick++
			packets = append(packets, PhysicsPacket(PhysicsValues{
				ThrottleRaw:  uint8(100 + i%100),
				BrakeRaw:     uint8(i % 50),
				SteeringRaw:  int8(i%100 - 50),
				Speed:        50 + float32(i),
				RPM:          uint16(4000 + i*10),
				MaxRPM:       8000,
				Gear:         uint8(i%6 + 1),
				Yaw:          float32(i) * 0.01,
				PosX:         float32(i),
				PosZ:         float32(i) * 2,
				TickCount:    tick,
				FuelCapacity: 80,
				FuelLevel:    1 - float32(lap*samplesPerLap+i)*0.0001,
			}))
			tick++
		}
	}
	return Stream(packets...)
}

// Compress deflates a capture the way clients upload it.
func Compress(data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		log.Fatalf("compress: %v\n", err)
	}
	if err := w.Close(); err != nil {
		log.Fatalf("compress: %v\n", err)
	}
	return buf.Bytes()
}

func putF32(data []byte, offset int, v float32) {
	binary.LittleEndian.PutUint32(data[offset:], math.Float32bits(v))
}
