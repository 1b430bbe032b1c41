package transfer

import (
	"fmt"

	"example.com/inklink/internal/protocol"
)

// pageReassembler accumulates a single page image from offset-addressed
// chunks into a fixed-capacity buffer.
//
// Invariant: every accepted chunk satisfies offset+len(payload) <=
// capacity. A violating chunk is rejected without mutating the buffer.
// The page is complete only when the session sees PAGE_END; the high-water
// mark, not the capacity, bounds the final image, since the format permits
// a page smaller than the buffer.
type pageReassembler struct {
	capacity  int
	data      []byte
	highWater int
}

// newPageReassembler allocates a zero-filled buffer of capacity bytes.
func newPageReassembler(capacity int) *pageReassembler {
	return &pageReassembler{
		capacity: capacity,
		data:     make([]byte, capacity),
	}
}

// write copies payload into data[offset:offset+len(payload)] and raises
// the high-water mark. Overlapping writes overwrite, so a retransmitted
// chunk is idempotent. Fails with KindChunkOutOfBounds if the chunk does
// not fit; the buffer is untouched in that case.
func (r *pageReassembler) write(offset uint32, payload []byte) error {
	end := uint64(offset) + uint64(len(payload))
	if end > uint64(r.capacity) {
		return protocol.NewError(protocol.KindChunkOutOfBounds,
			fmt.Sprintf("chunk [%d, %d) exceeds page capacity %d", offset, end, r.capacity))
	}
	copy(r.data[offset:end], payload)
	if int(end) > r.highWater {
		r.highWater = int(end)
	}
	return nil
}

// finish returns the final page image: bytes 0 up to the high-water mark.
func (r *pageReassembler) finish() []byte {
	return r.data[:r.highWater]
}
