package chunk

import (
	"crypto/sha256"
	"dfs/internal/types"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"strings"
	"sync"
)

// Checksummer computes a digest over a chunk payload. Sum results are
// prefixed with Name() so a stored checksum names the algorithm that made it.
type Checksummer interface {
	Name() string
	Sum(data []byte) string
}

type crc32Sum struct{}

func (crc32Sum) Name() string { return "crc32" }

func (crc32Sum) Sum(data []byte) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(data))
}

type sha256Sum struct{}

func (sha256Sum) Name() string { return "sha256" }

func (sha256Sum) Sum(data []byte) string {
	s := sha256.Sum256(data)
	return hex.EncodeToString(s[:])
}

var (
	CRC32  Checksummer = crc32Sum{}
	SHA256 Checksummer = sha256Sum{}
)

var (
	regMu    sync.RWMutex
	registry = map[string]Checksummer{
		CRC32.Name():  CRC32,
		SHA256.Name(): SHA256,
	}
)

// Register makes a checksum algorithm available to Lookup and Verify.
func Register(c Checksummer) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[c.Name()] = c
}

func Lookup(name string) (Checksummer, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	c, ok := registry[name]
	return c, ok
}

// Checksum returns "<algo>:<digest>" for data.
func Checksum(c Checksummer, data []byte) string {
	return c.Name() + ":" + c.Sum(data)
}

// Verify recomputes sum's algorithm over data. An empty sum verifies.
func Verify(data []byte, sum string) error {
	if sum == "" {
		return nil
	}
	name, digest, ok := strings.Cut(sum, ":")
	if !ok {
		return fmt.Errorf("%w: malformed checksum %q", types.ErrInvalidArgument, sum)
	}
	c, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("%w: unknown checksum algorithm %q", types.ErrInvalidArgument, name)
	}
	if got := c.Sum(data); got != digest {
		return fmt.Errorf("%w: want %v got %v:%v", types.ErrChecksumMismatch, sum, name, got)
	}
	return nil
}
