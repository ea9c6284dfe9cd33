package persistence

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

const (
	codecRaw    byte = 0
	codecBrotli byte = 1

	// compressThreshold is the payload size above which content is compressed
	compressThreshold = 1024
)

// ContentID returns the identifier of data: the hex SHA-256 of its bytes.
func ContentID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ValidContentID reports whether cid has the shape ContentID produces:
// 64 lowercase hex digits.
func ValidContentID(cid string) bool {
	if len(cid) != 2*sha256.Size {
		return false
	}
	for i := 0; i < len(cid); i++ {
		c := cid[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// EncodeContent wraps data for storage with a one byte codec tag. Payloads
// over the threshold are brotli compressed when that makes them smaller.
func EncodeContent(data []byte) ([]byte, error) {
	if len(data) > compressThreshold {
		var buf bytes.Buffer
		buf.WriteByte(codecBrotli)
		w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("failed to compress content: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("failed to compress content: %w", err)
		}
		if buf.Len() < len(data)+1 {
			return buf.Bytes(), nil
		}
	}

	out := make([]byte, 1+len(data))
	out[0] = codecRaw
	copy(out[1:], data)
	return out, nil
}

// DecodeContent reverses EncodeContent and checks the bytes against cid.
func DecodeContent(cid string, stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, fmt.Errorf("content %s is empty", cid)
	}

	var data []byte
	switch stored[0] {
	case codecRaw:
		data = append([]byte{}, stored[1:]...)
	case codecBrotli:
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(stored[1:])))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress content %s: %w", cid, err)
		}
		data = decompressed
	default:
		return nil, fmt.Errorf("content %s has unknown codec %d", cid, stored[0])
	}

	if ContentID(data) != cid {
		return nil, fmt.Errorf("content %s failed integrity check", cid)
	}
	return data, nil
}
