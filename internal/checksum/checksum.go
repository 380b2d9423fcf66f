// Package checksum computes and compares content digests used to detect
// transfer corruption. Digests are hex-encoded SHA-256.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultChunkSize is the read size used when none is configured.
const DefaultChunkSize = 4096

// Engine streams sources through SHA-256 in fixed-size chunks so whole
// files are never held in memory.
type Engine struct {
	chunkSize int
}

// New creates an Engine with the given chunk size; non-positive values
// fall back to DefaultChunkSize.
func New(chunkSize int) *Engine {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return &Engine{chunkSize: chunkSize}
}

// Digest reads r to EOF and returns the hex SHA-256 of its contents.
// A zero-byte source yields the hash of the empty input, not an error.
func (e *Engine) Digest(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, e.chunkSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}

		if err == io.EOF {
			break
		}

		if err != nil {
			return "", fmt.Errorf("reading source: %w", err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestFile opens path and digests its contents.
func (e *Engine) DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	sum, err := e.Digest(f)
	if err != nil {
		return "", fmt.Errorf("digesting %s: %w", path, err)
	}

	return sum, nil
}

// Verify reports whether two digests match. Mismatches are for the caller
// to report, never to silently accept.
func (e *Engine) Verify(source, destination string) bool {
	if source == "" || destination == "" {
		return false
	}

	return strings.EqualFold(source, destination)
}
