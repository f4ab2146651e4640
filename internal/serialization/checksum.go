package serialization

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// ComputeChecksum returns the SHA-256 of data.
func ComputeChecksum(data []byte) [ChecksumSize]byte {
	return sha256.Sum256(data)
}

// ComputeChecksumSection hashes n bytes of r starting at off without
// loading them into memory at once.
func ComputeChecksumSection(r io.ReaderAt, off, n int64) ([ChecksumSize]byte, error) {
	h := sha256.New()
	copied, err := io.Copy(h, io.NewSectionReader(r, off, n))
	if err != nil {
		return [ChecksumSize]byte{}, err
	}
	if copied != n {
		return [ChecksumSize]byte{}, fmt.Errorf("%w: data section has %d of %d bytes", io.ErrUnexpectedEOF, copied, n)
	}
	var sum [ChecksumSize]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// ValidateChecksum returns ErrChecksumMismatch unless computed equals stored.
func ValidateChecksum(computed, stored [ChecksumSize]byte) error {
	if computed != stored {
		return fmt.Errorf("%w: stored %s, computed %s", ErrChecksumMismatch,
			hex.EncodeToString(stored[:4]), hex.EncodeToString(computed[:4]))
	}
	return nil
}

// checksumWriter hashes everything written to it.
type checksumWriter struct {
	h hash.Hash
}

func newChecksumWriter() *checksumWriter {
	return &checksumWriter{h: sha256.New()}
}

func (c *checksumWriter) Write(p []byte) (int, error) {
	return c.h.Write(p)
}

// Sum returns the checksum of the bytes written so far.
func (c *checksumWriter) Sum() [ChecksumSize]byte {
	var sum [ChecksumSize]byte
	copy(sum[:], c.h.Sum(nil))
	return sum
}
