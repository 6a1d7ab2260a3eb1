package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/glizzus/au-stream/internal/channel"
	"github.com/glizzus/au-stream/internal/media"
)

// Output appends the bytes of every Binary chunk, in order, to a writer.
type Output struct {
	source  *channel.Source[media.Binary]
	w       io.Writer
	written int64
}

func NewOutput(source *channel.Source[media.Binary], w io.Writer) *Output {
	return &Output{source: source, w: w}
}

// Written returns the number of bytes written so far.
func (o *Output) Written() int64 {
	return o.written
}

// Run writes chunks until the final one has been written and flushed.
func (o *Output) Run(ctx context.Context) error {
	defer o.source.Close()

	bw := bufio.NewWriter(o.w)
	for {
		b, err := o.source.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("output: %w", media.ErrTruncated)
		}
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}

		n, err := bw.Write(b.Data)
		o.written += int64(n)
		if err != nil {
			return fmt.Errorf("output: failed to write: %w", err)
		}
		final := b.Final
		o.source.Recycle(b)

		if final {
			if err := bw.Flush(); err != nil {
				return fmt.Errorf("output: failed to flush: %w", err)
			}
			return nil
		}
	}
}
