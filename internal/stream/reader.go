// Package stream presents a channel of Binary chunks as a flat byte stream.
package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/glizzus/au-stream/internal/channel"
	"github.com/glizzus/au-stream/internal/media"
)

// ErrUnexpectedEndOfStream is returned when the final chunk has been consumed
// before a read could be satisfied.
var ErrUnexpectedEndOfStream = errors.New("unexpected end of stream")

// Reader reads the concatenated bytes of every Binary chunk received from a
// Source, independent of chunk boundaries. At most one partially consumed
// chunk is held; exhausted chunks are recycled to the Source.
type Reader struct {
	ctx    context.Context
	source *channel.Source[media.Binary]

	cur    media.Binary
	off    int
	final  bool
	offset int64
}

func NewReader(ctx context.Context, source *channel.Source[media.Binary]) *Reader {
	return &Reader{ctx: ctx, source: source}
}

// fill makes sure the current chunk has unread bytes. It returns io.EOF after
// the final chunk has been consumed.
func (r *Reader) fill() error {
	for r.off >= len(r.cur.Data) {
		if r.final {
			return io.EOF
		}
		if r.cur.Data != nil {
			r.source.Recycle(r.cur)
			r.cur = media.Binary{}
		}

		chunk, err := r.source.Recv(r.ctx)
		if errors.Is(err, io.EOF) {
			return media.ErrTruncated
		}
		if err != nil {
			return err
		}
		r.cur, r.off, r.final = chunk, 0, chunk.Final
	}
	return nil
}

// Read implements io.Reader. It returns io.EOF once the final chunk has been
// consumed, and media.ErrTruncated if the Source ended without one.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := r.fill(); err != nil {
		return 0, err
	}
	n := copy(p, r.cur.Data[r.off:])
	r.off += n
	r.offset += int64(n)
	return n, nil
}

// ReadFull fills buf completely. If the stream ends first it returns the
// number of bytes read together with ErrUnexpectedEndOfStream.
func (r *Reader) ReadFull(buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := r.Read(buf[read:])
		read += n
		if errors.Is(err, io.EOF) {
			return read, fmt.Errorf("%w: read %d of %d bytes", ErrUnexpectedEndOfStream, read, len(buf))
		}
		if err != nil {
			return read, err
		}
	}
	return read, nil
}

// ReadUint32 reads a big-endian unsigned 32-bit integer.
func (r *Reader) ReadUint32() (uint32, error) {
	var b [4]byte
	if _, err := r.ReadFull(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// Skip discards the next n bytes without copying them.
func (r *Reader) Skip(n int64) error {
	for n > 0 {
		if err := r.fill(); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: %d bytes left to skip", ErrUnexpectedEndOfStream, n)
			}
			return err
		}
		step := min(int64(len(r.cur.Data)-r.off), n)
		r.off += int(step)
		r.offset += step
		n -= step
	}
	return nil
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 {
	return r.offset
}
