package tailer

import (
	"bytes"
)

// LineBuffer decodes an ordered sequence of byte chunks into complete
// newline-terminated lines, carrying any unterminated suffix over to the
// next chunk. The emitted line sequence is identical regardless of where
// chunk boundaries fall.
type LineBuffer struct {
	carry []byte
}

func NewLineBuffer() *LineBuffer {
	return &LineBuffer{}
}

// Feed appends chunk to the carry buffer and invokes emit once per
// complete line, in order, with the trailing newline stripped.
// Whitespace-only lines are dropped. The incomplete tail, if any, is
// retained for the next call.
func (b *LineBuffer) Feed(chunk []byte, emit func(line []byte)) {
	b.carry = append(b.carry, chunk...)

	for {
		i := bytes.IndexByte(b.carry, '\n')
		if i < 0 {
			return
		}
		line := bytes.TrimSpace(b.carry[:i])
		b.carry = b.carry[i+1:]
		if len(line) == 0 {
			continue
		}
		// The carry slice is re-sliced above; hand out a copy so callers
		// may retain the line.
		out := make([]byte, len(line))
		copy(out, line)
		emit(out)
	}
}

// Pending returns the number of buffered bytes awaiting a newline.
func (b *LineBuffer) Pending() int {
	return len(b.carry)
}

// Reset discards any carried partial line. Used when the underlying file
// is truncated and the buffered tail no longer corresponds to file bytes.
func (b *LineBuffer) Reset() {
	b.carry = nil
}
