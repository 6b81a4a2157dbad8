// ============================================================================
// Blockpress Container Format
// ============================================================================
//
// Package: internal/cli
// File: container.go
// Purpose: The on-disk framing the CLI uses to store a batch of compressed
// blocks: a magic header, the block count, and one CRC-checked record per
// block. The CRC covers the compressed bytes so corruption is caught before
// decompression is attempted.
//
// Layout (all integers little-endian):
//   [4]  magic "BPC1"
//   [4]  uint32 block count
//   per block:
//     [4]  uint32 payload length
//     [4]  uint32 CRC-32 (IEEE) of the payload
//     [n]  payload
//
// ============================================================================

package cli

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

var containerMagic = [4]byte{'B', 'P', 'C', '1'}

var (
	// ErrBadMagic is returned when the input is not a blockpress container.
	ErrBadMagic = errors.New("not a blockpress container")
	// ErrChecksum is returned when a block's CRC does not match its payload.
	ErrChecksum = errors.New("block checksum mismatch")
	// ErrBlockTooLarge is returned when a block header declares a length
	// beyond the allowed maximum.
	ErrBlockTooLarge = errors.New("block exceeds maximum size")
)

// maxBlockBytes caps the per-block length a container header may declare.
// Header fields are untrusted input; nothing is allocated from them beyond
// this bound.
const maxBlockBytes = 64 << 20

// writeContainer frames the blocks onto w.
func writeContainer(w io.Writer, blocks [][]byte) error {
	if _, err := w.Write(containerMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(blocks))); err != nil {
		return err
	}
	for _, block := range blocks {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(block))); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, crc32.ChecksumIEEE(block)); err != nil {
			return err
		}
		if _, err := w.Write(block); err != nil {
			return err
		}
	}
	return nil
}

// readContainer parses a container from r, verifying every block's CRC.
func readContainer(r io.Reader) ([][]byte, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if magic != containerMagic {
		return nil, ErrBadMagic
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("failed to read block count: %w", err)
	}

	// count and length come from untrusted input: allocations grow with the
	// data actually read, never from the declared values alone.
	blocks := [][]byte{}
	for i := uint32(0); i < count; i++ {
		var length, sum uint32
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			return nil, fmt.Errorf("failed to read block %d header: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &sum); err != nil {
			return nil, fmt.Errorf("failed to read block %d header: %w", i, err)
		}
		if length > maxBlockBytes {
			return nil, fmt.Errorf("block %d: declared %d bytes: %w", i, length, ErrBlockTooLarge)
		}
		block := make([]byte, length)
		if _, err := io.ReadFull(r, block); err != nil {
			return nil, fmt.Errorf("failed to read block %d: %w", i, err)
		}
		if crc32.ChecksumIEEE(block) != sum {
			return nil, fmt.Errorf("block %d: %w", i, ErrChecksum)
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// chunk splits data into blocks of at most blockSize bytes.
func chunk(data []byte, blockSize int) [][]byte {
	if len(data) == 0 {
		return [][]byte{}
	}
	blocks := make([][]byte, 0, (len(data)+blockSize-1)/blockSize)
	for off := 0; off < len(data); off += blockSize {
		end := off + blockSize
		if end > len(data) {
			end = len(data)
		}
		blocks = append(blocks, data[off:end])
	}
	return blocks
}
