package protocol

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// Compressed frames carry the standard gzip header, so no out-of-band
// signaling is needed: the receiver sniffs the first two bytes.

const gzipMagic0, gzipMagic1 = 0x1f, 0x8b

// IsCompressed reports whether data starts with the gzip magic number.
func IsCompressed(data []byte) bool {
	return len(data) >= 2 && data[0] == gzipMagic0 && data[1] == gzipMagic1
}

// Compress gzips data when it is at least min bytes long and the result is
// strictly smaller than the input. It returns the bytes to put on the wire
// and whether compression was applied; on any failure the original data is
// returned unchanged.
func Compress(data []byte, min int) ([]byte, bool) {
	if min <= 0 || len(data) < min {
		return data, false
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return data, false
	}
	if err := zw.Close(); err != nil {
		return data, false
	}
	if buf.Len() >= len(data) {
		return data, false
	}
	return buf.Bytes(), true
}

// Decompress inflates a gzip frame.
func Decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip header: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gzip body: %w", err)
	}
	return out, nil
}

// MaybeDecompress inflates data only when it carries the gzip signature,
// so uncompressed frames pass through untouched.
func MaybeDecompress(data []byte) ([]byte, error) {
	if !IsCompressed(data) {
		return data, nil
	}
	return Decompress(data)
}
