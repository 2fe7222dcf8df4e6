package telemetry

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
)

// npy codec for 2-D float32 arrays (format version 1.0). Lap files are
// written in this format so downstream analysis tooling can load them
// with numpy directly.

var npyMagic = []byte("\x93NUMPY")

const npyAlign = 64

func EncodeNpy(data [][]float32) ([]byte, error) {
	rows := len(data)
	cols := 0
	if rows > 0 {
		cols = len(data[0])
	}
	for _, row := range data {
		if len(row) != cols {
			return nil, fmt.Errorf("ragged rows: %d vs %d", len(row), cols)
		}
	}

	header := fmt.Sprintf(
		"{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }",
		rows, cols)
	// pad with spaces so the data section starts 64-byte aligned
	padded := len(npyMagic) + 2 + 2 + len(header) + 1
	for padded%npyAlign != 0 {
		header += " "
		padded++
	}
	header += "\n"

	buf := bytes.NewBuffer(make([]byte, 0, padded+rows*cols*4))
	buf.Write(npyMagic)
	buf.WriteByte(1) // major
	buf.WriteByte(0) // minor
	var hlen [2]byte
	binary.LittleEndian.PutUint16(hlen[:], uint16(len(header)))
	buf.Write(hlen[:])
	buf.WriteString(header)

	var scratch [4]byte
	for _, row := range data {
		for _, v := range row {
			binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(v))
			buf.Write(scratch[:])
		}
	}
	return buf.Bytes(), nil
}

var npyShapeRe = regexp.MustCompile(`'shape':\s*\((\d+),\s*(\d+)\)`)

//nolint:gocritic // sequential validation
func DecodeNpy(raw []byte) ([][]float32, error) {
	if len(raw) < 10 || !bytes.Equal(raw[:6], npyMagic) {
		return nil, fmt.Errorf("not an npy file")
	}
	if raw[6] != 1 {
		return nil, fmt.Errorf("unsupported npy version %d.%d", raw[6], raw[7])
	}
	hlen := int(binary.LittleEndian.Uint16(raw[8:10]))
	if len(raw) < 10+hlen {
		return nil, fmt.Errorf("truncated npy header")
	}
	header := string(raw[10 : 10+hlen])
	if !bytes.Contains([]byte(header), []byte("'<f4'")) {
		return nil, fmt.Errorf("unsupported dtype in header %q", header)
	}
	if bytes.Contains([]byte(header), []byte("'fortran_order': True")) {
		return nil, fmt.Errorf("fortran order not supported")
	}
	m := npyShapeRe.FindStringSubmatch(header)
	if m == nil {
		return nil, fmt.Errorf("no 2-D shape in header %q", header)
	}
	var rows, cols int
	fmt.Sscanf(m[1], "%d", &rows) //nolint:errcheck // regexp guarantees digits
	fmt.Sscanf(m[2], "%d", &cols) //nolint:errcheck // regexp guarantees digits

	payload := raw[10+hlen:]
	if len(payload) != rows*cols*4 {
		return nil, fmt.Errorf("payload size %d does not match shape (%d, %d)",
			len(payload), rows, cols)
	}
	ret := make([][]float32, rows)
	offset := 0
	for i := range ret {
		row := make([]float32, cols)
		for j := range row {
			row[j] = math.Float32frombits(
				binary.LittleEndian.Uint32(payload[offset:]))
			offset += 4
		}
		ret[i] = row
	}
	return ret, nil
}
