package chunk

import (
	"dfs/internal/types"
	"fmt"
)

// Piece is one chunk cut out of a byte sequence. Payload aliases the input.
type Piece struct {
	Index    int
	Payload  []byte
	Checksum string
}

type Codec struct {
	sum Checksummer
}

func NewCodec(sum Checksummer) *Codec {
	if sum == nil {
		sum = CRC32
	}
	return &Codec{sum: sum}
}

func (c *Codec) Checksummer() Checksummer {
	return c.sum
}

// Count is ceil(size/chunkSize), zero for an empty input.
func Count(size, chunkSize int64) int {
	if size <= 0 {
		return 0
	}
	return int((size-1)/chunkSize + 1)
}

// Split cuts data into ceil(len/chunkSize) pieces; the last holds the remainder.
func (c *Codec) Split(data []byte, chunkSize int64) ([]Piece, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d", types.ErrInvalidArgument, chunkSize)
	}
	n := Count(int64(len(data)), chunkSize)
	pieces := make([]Piece, 0, n)
	for i := 0; i < n; i++ {
		start := int64(i) * chunkSize
		end := start + chunkSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		payload := data[start:end]
		pieces = append(pieces, Piece{
			Index:    i,
			Payload:  payload,
			Checksum: Checksum(c.sum, payload),
		})
	}
	return pieces, nil
}
