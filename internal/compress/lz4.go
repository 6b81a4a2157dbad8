// ============================================================================
// Blockpress LZ4 Transforms
// ============================================================================
//
// Package: internal/compress
// File: lz4.go
// Purpose: The three block transforms consumed by the dispatcher: fast LZ4
// compression, high-compression LZ4, and decompression.
//
// All three are pure functions from byte block to byte block. The LZ4 frame
// format is used so compressed blocks are self-describing and incompressible
// input round-trips without special casing. Codec errors propagate verbatim;
// they are never wrapped or retried here.
//
// ============================================================================

package compress

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"
)

// Compress applies fast LZ4 compression to one block.
func Compress(block []byte) ([]byte, error) {
	return frameCompress(block, lz4.Fast)
}

// CompressHC applies high-compression LZ4 to one block. Slower, smaller
// output; the mode used for cold data.
func CompressHC(block []byte) ([]byte, error) {
	return frameCompress(block, lz4.Level9)
}

// Decompress restores one block compressed by Compress or CompressHC.
func Decompress(block []byte) ([]byte, error) {
	zr := lz4.NewReader(bytes.NewReader(block))
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func frameCompress(block []byte, level lz4.CompressionLevel) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if err := zw.Apply(lz4.CompressionLevelOption(level)); err != nil {
		return nil, err
	}
	if _, err := zw.Write(block); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
