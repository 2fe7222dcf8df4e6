package telemetry

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Compress deflates a capture stream for upload storage.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress inflates a stored capture. A corrupt stream is a data
// error, not an infrastructure one.
func Decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("corrupt deflate stream: %w", err)
	}
	defer r.Close()
	ret, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("corrupt deflate stream: %w", err)
	}
	return ret, nil
}
